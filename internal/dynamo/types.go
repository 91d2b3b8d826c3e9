package dynamo

import (
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// MaxAbs is the infinity norm.
func (s State) MaxAbs() float64 {
	m := 0.0
	for _, v := range s {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Value holds one State per node of a problem.
type Value []State

func (v Value) Clone() Value {
	if v == nil {
		return nil
	}
	c := make(Value, len(v))
	for i, s := range v {
		c[i] = s.Clone()
	}
	return c
}

func (v Value) IsValid() bool {
	for _, s := range v {
		if !s.IsValid() {
			return false
		}
	}
	return true
}

// MaxDiff returns the largest infinity-norm difference between matching
// nodes. Nodes missing from other count as a full difference.
func (v Value) MaxDiff(other Value) float64 {
	m := 0.0
	for i, s := range v {
		if i >= len(other) {
			m = math.Max(m, s.MaxAbs())
			continue
		}
		m = math.Max(m, s.Sub(other[i]).MaxAbs())
	}
	return m
}

// Flatten concatenates all node states, node 0 first.
func (v Value) Flatten() []float64 {
	n := 0
	for _, s := range v {
		n += len(s)
	}
	out := make([]float64, 0, n)
	for _, s := range v {
		out = append(out, s...)
	}
	return out
}

// Problem is a system of coupled nodes, dX_i/dt = f_i(t, X_i, X).
// Coupling is the frozen value of every node the caller wants f_i to see.
type Problem interface {
	Name() string
	Nodes() int
	Initial() Value
	Derive(node int, t float64, x State, coupling Value) State
}

// Exact is implemented by problems with a closed-form solution.
type Exact interface {
	Exact(t float64) Value
}

type Hamiltonian interface {
	Energy(v Value) float64
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// Node is everything an integrator needs to advance one node by one step.
type Node struct {
	Index    int
	Time     float64
	Width    float64
	State    State
	Coupling Value
}

type Integrator interface {
	Advance(p Problem, n Node) (State, error)
}
