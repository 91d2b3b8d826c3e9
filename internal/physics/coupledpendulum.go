package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/cosim/internal/dynamo"
)

// CoupledPendulums implements two pendulums connected by a spring, one node
// per pendulum. Node state: [theta, omega].
// Demonstrates energy transfer between the nodes.
type CoupledPendulums struct {
	l float64 // Pendulum length
	g float64 // Gravity
	k float64 // Spring constant (coupling strength)
	m float64 // Mass of each bob
}

func NewCoupledPendulums() *CoupledPendulums {
	return &CoupledPendulums{
		l: 1.0,
		g: 9.81,
		k: 2.0,
		m: 1.0,
	}
}

func (c *CoupledPendulums) Name() string { return "coupled_pendulum" }
func (c *CoupledPendulums) Nodes() int   { return 2 }

func (c *CoupledPendulums) Initial() dynamo.Value {
	return dynamo.Value{{0.5, 0.0}, {0.0, 0.0}} // One pendulum displaced
}

func (c *CoupledPendulums) Derive(node int, _ float64, x dynamo.State, coupling dynamo.Value) dynamo.State {
	theta, omega := x[0], x[1]
	other := coupling[1-node][0]

	// Small angle spring: force proportional to the angle difference
	spring := c.k * (other - theta) / c.m
	alpha := -c.g/c.l*math.Sin(theta) + spring/c.l

	return dynamo.State{omega, alpha}
}

// Energy implements dynamo.Hamiltonian
func (c *CoupledPendulums) Energy(v dynamo.Value) float64 {
	e := 0.0
	for _, s := range v {
		theta, omega := s[0], s[1]
		e += 0.5*c.m*c.l*c.l*omega*omega + c.m*c.g*c.l*(1-math.Cos(theta))
	}
	d := v[1][0] - v[0][0]
	e += 0.5 * c.k * c.l * d * d
	return e
}

// GetParams implements dynamo.Configurable
func (c *CoupledPendulums) GetParams() map[string]float64 {
	return map[string]float64{
		"l": c.l,
		"g": c.g,
		"k": c.k,
	}
}

// SetParam implements dynamo.Configurable
func (c *CoupledPendulums) SetParam(name string, value float64) error {
	switch name {
	case "l":
		if value <= 0 {
			return fmt.Errorf("l=%g: %w", value, dynamo.ErrParameterBounds)
		}
		c.l = value
	case "g":
		c.g = value
	case "k":
		c.k = value
	default:
		return fmt.Errorf("%s: %w", name, dynamo.ErrUnknownParam)
	}
	return nil
}
