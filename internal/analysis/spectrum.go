package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Spectrum returns the magnitude of the first half of the DFT of x, with
// the mean removed so bin 0 does not dominate.
func Spectrum(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}

	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))

	centered := make([]float64, len(x))
	for i, v := range x {
		centered[i] = v - mean
	}

	coeffs := fft.FFTReal(centered)
	ps := make([]float64, len(coeffs)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(coeffs[i])
	}
	return ps
}

// DominantFrequency resamples s onto n points and returns the frequency
// of the strongest non-zero bin, in cycles per unit time.
func DominantFrequency(s Series, n int) float64 {
	if s.Len() < 2 || n < 4 {
		return 0
	}
	u := s.Resample(n)
	ps := Spectrum(u.X)

	best := 1
	for i := 2; i < len(ps); i++ {
		if ps[i] > ps[best] {
			best = i
		}
	}
	span := u.T[n-1] - u.T[0]
	// n samples cover n-1 steps; bin k is k/(n*step).
	step := span / float64(n-1)
	return float64(best) / (float64(n) * step)
}
