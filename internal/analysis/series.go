package analysis

import (
	"sort"

	"github.com/san-kum/cosim/internal/storage"
)

// Series is a sampled signal. T is strictly increasing.
type Series struct {
	T []float64
	X []float64
}

func (s Series) Len() int { return len(s.T) }

// Component extracts value[node][component] from every record that has it.
func Component(records []storage.Record, node, component int) Series {
	s := Series{
		T: make([]float64, 0, len(records)),
		X: make([]float64, 0, len(records)),
	}
	for _, rec := range records {
		if node < len(rec.Value) && component < len(rec.Value[node]) {
			s.T = append(s.T, rec.Time)
			s.X = append(s.X, rec.Value[node][component])
		}
	}
	return s
}

// Resample linearly interpolates s onto n evenly spaced times spanning
// [T[0], T[len-1]]. Adaptive widths leave the stored samples uneven.
func (s Series) Resample(n int) Series {
	if s.Len() < 2 || n < 2 {
		return s
	}

	t0, t1 := s.T[0], s.T[s.Len()-1]
	step := (t1 - t0) / float64(n-1)
	out := Series{T: make([]float64, n), X: make([]float64, n)}

	for i := 0; i < n; i++ {
		t := t0 + float64(i)*step
		if i == n-1 {
			t = t1
		}
		out.T[i] = t
		out.X[i] = s.At(t)
	}
	return out
}

// At interpolates the signal at t, holding the end values outside the
// sampled range.
func (s Series) At(t float64) float64 {
	n := s.Len()
	if n == 0 {
		return 0
	}
	j := sort.SearchFloat64s(s.T, t)
	switch {
	case j == 0:
		return s.X[0]
	case j >= n:
		return s.X[n-1]
	}
	t0, t1 := s.T[j-1], s.T[j]
	frac := (t - t0) / (t1 - t0)
	return s.X[j-1] + frac*(s.X[j]-s.X[j-1])
}
