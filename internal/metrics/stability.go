package metrics

import (
	"math"

	"github.com/san-kum/cosim/internal/dynamo"
)

// Stability is the fraction of outcomes whose nodes all stay finite and
// within bound. FirstViolation is the end time of the first outcome that
// did not, or NaN.
type Stability struct {
	bound     float64
	bad       int
	outcomes  int
	firstTime float64
}

func NewStability(bound float64) *Stability {
	return &Stability{bound: bound, firstTime: math.NaN()}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) Observe(sample Sample) {
	s.outcomes++
	if s.stable(sample.Value) {
		return
	}
	if s.bad == 0 {
		s.firstTime = sample.Time
	}
	s.bad++
}

func (s *Stability) stable(v dynamo.Value) bool {
	return v.IsValid() && v.MaxDiff(nil) <= s.bound
}

func (s *Stability) Value() float64 {
	if s.outcomes == 0 {
		return 1.0
	}
	return float64(s.outcomes-s.bad) / float64(s.outcomes)
}

func (s *Stability) FirstViolation() float64 { return s.firstTime }

func (s *Stability) Reset() {
	s.bad, s.outcomes = 0, 0
	s.firstTime = math.NaN()
}
