package integrators

import "github.com/san-kum/cosim/internal/dynamo"

type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Advance(p dynamo.Problem, node dynamo.Node) (dynamo.State, error) {
	x, t, dt := node.State, node.Time, node.Width
	n := len(x)
	scratch := make(dynamo.State, n)

	k1, err := derive(p, node, t, x)
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*0.5*k1[i]
	}
	k2, err := derive(p, node, t+dt*0.5, scratch)
	if err != nil {
		return nil, err
	}

	scratch = make(dynamo.State, n)
	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*0.5*k2[i]
	}
	k3, err := derive(p, node, t+dt*0.5, scratch)
	if err != nil {
		return nil, err
	}

	scratch = make(dynamo.State, n)
	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*k3[i]
	}
	k4, err := derive(p, node, t+dt, scratch)
	if err != nil {
		return nil, err
	}

	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}

	return checked(result)
}
