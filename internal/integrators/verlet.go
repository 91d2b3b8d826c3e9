package integrators

import "github.com/san-kum/cosim/internal/dynamo"

// Verlet is velocity Verlet for node states laid out as [pos..., vel...].
type Verlet struct{}

func NewVerlet() *Verlet {
	return &Verlet{}
}

func (v *Verlet) Advance(p dynamo.Problem, node dynamo.Node) (dynamo.State, error) {
	x, t, dt := node.State, node.Time, node.Width
	n := len(x)
	if n%2 != 0 {
		return nil, dynamo.ErrDimensionMismatch
	}
	half := n / 2

	result := make(dynamo.State, n)
	dx, err := derive(p, node, t, x)
	if err != nil {
		return nil, err
	}
	dt2 := dt * dt

	for i := 0; i < half; i++ {
		result[i] = x[i] + x[half+i]*dt + 0.5*dx[half+i]*dt2
	}

	scratch := make(dynamo.State, n)
	for i := 0; i < half; i++ {
		scratch[i] = result[i]
		scratch[half+i] = x[half+i]
	}

	dxNew, err := derive(p, node, t+dt, scratch)
	if err != nil {
		return nil, err
	}

	halfDt := 0.5 * dt
	for i := 0; i < half; i++ {
		result[half+i] = x[half+i] + (dx[half+i]+dxNew[half+i])*halfDt
	}

	return checked(result)
}
