package physics

import (
	"fmt"

	"github.com/san-kum/cosim/internal/dynamo"
)

// Lorenz is a single three-dimensional node; it ignores coupling.
type Lorenz struct{ sigma, rho, beta float64 }

func NewLorenz() *Lorenz               { return &Lorenz{10.0, 28.0, 8.0 / 3.0} }
func (l *Lorenz) Name() string          { return "lorenz" }
func (l *Lorenz) Nodes() int            { return 1 }
func (l *Lorenz) Initial() dynamo.Value { return dynamo.Value{{1.0, 1.0, 1.0}} }

// Derive calculates the Lorenz attractor derivatives.
func (l *Lorenz) Derive(_ int, _ float64, s dynamo.State, _ dynamo.Value) dynamo.State {
	return dynamo.State{l.sigma * (s[1] - s[0]), s[0]*(l.rho-s[2]) - s[1], s[0]*s[1] - l.beta*s[2]}
}

func (l *Lorenz) GetParams() map[string]float64 {
	return map[string]float64{"sigma": l.sigma, "rho": l.rho, "beta": l.beta}
}

func (l *Lorenz) SetParam(n string, v float64) error {
	switch n {
	case "sigma":
		l.sigma = v
	case "rho":
		l.rho = v
	case "beta":
		l.beta = v
	default:
		return fmt.Errorf("%s: %w", n, dynamo.ErrUnknownParam)
	}
	return nil
}
