package physics

import (
	"fmt"

	"github.com/san-kum/cosim/internal/dynamo"
)

const (
	DefaultMass      = 1.0
	DefaultStiffness = 100.0
	DefaultDamping   = 0.0
)

// SpringChain is a chain of masses between two fixed walls, one node per
// mass. Node state: [x, v] where x is displacement and v is velocity.
// Neighbor displacements are read from the coupling value.
type SpringChain struct {
	n       int
	k       float64
	m       float64
	damping float64
}

func NewSpringChain(n int) *SpringChain {
	if n < 1 {
		n = 1
	}
	return &SpringChain{
		n:       n,
		k:       DefaultStiffness,
		m:       DefaultMass,
		damping: DefaultDamping,
	}
}

func (sc *SpringChain) Name() string { return "spring_chain" }
func (sc *SpringChain) Nodes() int   { return sc.n }

func (sc *SpringChain) Initial() dynamo.Value {
	v := make(dynamo.Value, sc.n)
	for i := range v {
		v[i] = dynamo.State{0, 0}
	}
	// Initial pulse on the first masses
	v[0][0] = 1.0
	if sc.n > 2 {
		v[1][0] = 0.5
	}
	return v
}

func (sc *SpringChain) Derive(node int, _ float64, x dynamo.State, coupling dynamo.Value) dynamo.State {
	pos, vel := x[0], x[1]

	xLeft, xRight := 0.0, 0.0 // fixed walls
	if node > 0 {
		xLeft = coupling[node-1][0]
	}
	if node < sc.n-1 {
		xRight = coupling[node+1][0]
	}

	force := sc.k*(xLeft-pos) + sc.k*(xRight-pos) - sc.damping*vel
	return dynamo.State{vel, force / sc.m}
}

// Energy implements dynamo.Hamiltonian
func (sc *SpringChain) Energy(v dynamo.Value) float64 {
	e := 0.0
	prev := 0.0
	for i := 0; i < sc.n; i++ {
		x, vel := v[i][0], v[i][1]
		e += 0.5*sc.m*vel*vel + 0.5*sc.k*(x-prev)*(x-prev)
		prev = x
	}
	e += 0.5 * sc.k * prev * prev
	return e
}

// GetParams implements dynamo.Configurable
func (sc *SpringChain) GetParams() map[string]float64 {
	return map[string]float64{
		"k":       sc.k,
		"m":       sc.m,
		"damping": sc.damping,
	}
}

// SetParam implements dynamo.Configurable
func (sc *SpringChain) SetParam(name string, value float64) error {
	switch name {
	case "k":
		sc.k = value
	case "m":
		if value <= 0 {
			return fmt.Errorf("m=%g: %w", value, dynamo.ErrParameterBounds)
		}
		sc.m = value
	case "damping":
		sc.damping = value
	default:
		return fmt.Errorf("%s: %w", name, dynamo.ErrUnknownParam)
	}
	return nil
}
