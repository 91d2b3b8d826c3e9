// Package analysis inspects the interval records of a stored run.
//
//   - [Component]: one state component of one node over time
//   - [Series.Resample]: the same signal on a uniform grid
//   - [Spectrum], [DominantFrequency]: power spectrum of a series
//   - [NewPortrait], [Portrait.ASCII]: 2D phase space of a node
//   - [Poincare]: crossings of a component through a threshold
//
// Records only exist at accepted interval boundaries, so every result is
// as coarse as the interval widths of the run.
package analysis
