package physics

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/cosim/internal/dynamo"
)

// NBody is planar gravitation with one node per body. Node state:
// [x, y, vx, vy]. Forces use Plummer softening eps.
type NBody struct {
	masses []float64
	g      float64
	eps    float64
}

func NewNBody(n int) *NBody {
	if n < 2 {
		n = 3
	}
	masses := make([]float64, n)
	for i := range masses {
		masses[i] = 1.0
	}
	return &NBody{masses: masses, g: 1.0, eps: 1e-3}
}

func (nb *NBody) Name() string { return "nbody" }
func (nb *NBody) Nodes() int   { return len(nb.masses) }

// Initial places equal bodies on the unit circle with the tangential
// speed of a rigidly rotating ring.
func (nb *NBody) Initial() dynamo.Value {
	n := len(nb.masses)
	sum := 0.0
	for k := 1; k < n; k++ {
		sum += 1 / math.Sin(math.Pi*float64(k)/float64(n))
	}
	speed := math.Sqrt(nb.g * nb.masses[0] * sum / 4)

	v := make(dynamo.Value, n)
	for i := range v {
		a := 2 * math.Pi * float64(i) / float64(n)
		v[i] = dynamo.State{math.Cos(a), math.Sin(a), -speed * math.Sin(a), speed * math.Cos(a)}
	}
	return v
}

func (nb *NBody) Derive(node int, _ float64, x dynamo.State, coupling dynamo.Value) dynamo.State {
	ax, ay := 0.0, 0.0
	for j, other := range coupling {
		if j == node {
			continue
		}
		rx, ry := other[0]-x[0], other[1]-x[1]
		r2 := rx*rx + ry*ry + nb.eps*nb.eps
		f := nb.g * nb.masses[j] / (r2 * math.Sqrt(r2))
		ax += f * rx
		ay += f * ry
	}
	return dynamo.State{x[2], x[3], ax, ay}
}

// Energy implements dynamo.Hamiltonian
func (nb *NBody) Energy(v dynamo.Value) float64 {
	e := 0.0
	for i, s := range v {
		e += 0.5 * nb.masses[i] * (s[2]*s[2] + s[3]*s[3])
		for j := i + 1; j < len(v); j++ {
			rx, ry := v[j][0]-s[0], v[j][1]-s[1]
			e -= nb.g * nb.masses[i] * nb.masses[j] / math.Sqrt(rx*rx+ry*ry+nb.eps*nb.eps)
		}
	}
	return e
}

// GetParams exposes g, eps and one "mass<i>" entry per body.
func (nb *NBody) GetParams() map[string]float64 {
	params := map[string]float64{"g": nb.g, "eps": nb.eps}
	for i, m := range nb.masses {
		params["mass"+strconv.Itoa(i)] = m
	}
	return params
}

func (nb *NBody) SetParam(name string, value float64) error {
	switch name {
	case "g":
		nb.g = value
		return nil
	case "eps":
		if value < 0 {
			return fmt.Errorf("eps=%g: %w", value, dynamo.ErrParameterBounds)
		}
		nb.eps = value
		return nil
	}

	idx, err := strconv.Atoi(strings.TrimPrefix(name, "mass"))
	if !strings.HasPrefix(name, "mass") || err != nil {
		return fmt.Errorf("%s: %w", name, dynamo.ErrUnknownParam)
	}
	if idx < 0 || idx >= len(nb.masses) || value <= 0 {
		return fmt.Errorf("%s=%g: %w", name, value, dynamo.ErrParameterBounds)
	}
	nb.masses[idx] = value
	return nil
}
