package metrics

import (
	"math"

	"github.com/san-kum/cosim/internal/dynamo"
)

// EnergyDrift is the largest relative energy change against the initial
// value of the problem, over successful intervals.
type EnergyDrift struct {
	name          string
	initialEnergy float64
	currentEnergy float64
	maxDrift      float64
	samples       int
	h             dynamo.Hamiltonian
}

// NewEnergyDrift returns a drift metric. Problems without an energy
// function always report zero.
func NewEnergyDrift(p dynamo.Problem) *EnergyDrift {
	e := &EnergyDrift{name: "energy_drift"}
	if h, ok := p.(dynamo.Hamiltonian); ok {
		e.h = h
		e.initialEnergy = h.Energy(p.Initial())
	}
	return e
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(s Sample) {
	if e.h == nil || !s.Flag.Success() {
		return
	}

	energy := e.h.Energy(s.Value)
	e.currentEnergy = energy
	e.samples++

	if e.initialEnergy != 0 {
		drift := math.Abs(energy-e.initialEnergy) / math.Abs(e.initialEnergy)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Current() float64 {
	return e.currentEnergy
}

func (e *EnergyDrift) Reset() {
	e.currentEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}

// ExactError is the largest deviation from the closed-form solution at
// interval ends.
type ExactError struct {
	exact dynamo.Exact
	worst float64
}

func NewExactError(p dynamo.Problem) *ExactError {
	e := &ExactError{}
	e.exact, _ = p.(dynamo.Exact)
	return e
}

func (e *ExactError) Name() string { return "exact_error" }

func (e *ExactError) Observe(s Sample) {
	if e.exact == nil || !s.Flag.Success() {
		return
	}
	e.worst = math.Max(e.worst, s.Value.MaxDiff(e.exact.Exact(s.Time)))
}

func (e *ExactError) Value() float64 { return e.worst }
func (e *ExactError) Reset()         { e.worst = 0 }
