// Package integrators advances a single node of a dynamo.Problem across one
// time step. Coupling is held frozen for the whole advance and no
// integrator keeps state between calls.
package integrators

import (
	"fmt"

	"github.com/san-kum/cosim/internal/dynamo"
)

// derive evaluates the node derivative and checks its dimension.
func derive(p dynamo.Problem, n dynamo.Node, t float64, x dynamo.State) (dynamo.State, error) {
	dx := p.Derive(n.Index, t, x, n.Coupling)
	if len(dx) != len(x) {
		return nil, fmt.Errorf("node %d: derivative has %d entries, state %d: %w",
			n.Index, len(dx), len(x), dynamo.ErrDimensionMismatch)
	}
	return dx, nil
}

func checked(x dynamo.State) (dynamo.State, error) {
	if !x.IsValid() {
		return nil, dynamo.ErrInvalidState
	}
	return x, nil
}
