// Package viz renders a running work loop in the terminal.
//
// The live view is a Bubble Tea program fed by controller hooks:
//
//   - [Feed]: interval.Hook that forwards controller events as tea messages
//   - [Model]: progress, flag history, residual sparkline and a plot of
//     the selected node
//   - Theme selection with 3 built-in color schemes
//
// # Key Bindings
//
//	N/P   - Next/previous node
//	C     - Next state component
//	T     - Cycle color themes
//	?     - Show help overlay
//	Q     - Quit, canceling the run if it is still going
package viz
