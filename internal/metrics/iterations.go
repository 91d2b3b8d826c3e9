package metrics

import "math"

// Iterations is the mean sweep count of successful intervals.
type Iterations struct {
	name    string
	sum     int
	max     int
	samples int
}

func NewIterations() *Iterations {
	return &Iterations{
		name: "iterations",
	}
}

func (it *Iterations) Name() string {
	return it.name
}

func (it *Iterations) Observe(s Sample) {
	if !s.Flag.Success() {
		return
	}
	it.sum += s.Iterations
	it.max = max(it.max, s.Iterations)
	it.samples++
}

func (it *Iterations) Value() float64 {
	if it.samples == 0 {
		return 0
	}
	return float64(it.sum) / float64(it.samples)
}

func (it *Iterations) Max() int { return it.max }

func (it *Iterations) Reset() {
	it.sum = 0
	it.max = 0
	it.samples = 0
}

// Residual is the largest final residual of any successful interval.
type Residual struct {
	worst float64
}

func NewResidual() *Residual { return &Residual{} }

func (r *Residual) Name() string { return "residual" }

func (r *Residual) Observe(s Sample) {
	if s.Flag.Success() {
		r.worst = math.Max(r.worst, s.Residual)
	}
}

func (r *Residual) Value() float64 { return r.worst }
func (r *Residual) Reset()         { r.worst = 0 }
