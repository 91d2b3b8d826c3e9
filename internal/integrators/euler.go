package integrators

import "github.com/san-kum/cosim/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Advance(p dynamo.Problem, n dynamo.Node) (dynamo.State, error) {
	dx, err := derive(p, n, n.Time, n.State)
	if err != nil {
		return nil, err
	}
	result := make(dynamo.State, len(n.State))
	for i := range n.State {
		result[i] = n.State[i] + n.Width*dx[i]
	}
	return checked(result)
}
