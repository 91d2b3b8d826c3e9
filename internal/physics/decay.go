package physics

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/cosim/internal/dynamo"
)

// Decay is a set of independent first-order nodes, x_i' = -rate_i * x_i,
// with x_i(0) = 1. It has a closed-form solution and is the reference
// problem for convergence checks.
type Decay struct {
	rates []float64
}

func NewDecay(n int) *Decay {
	if n < 1 {
		n = 1
	}
	rates := make([]float64, n)
	for i := range rates {
		rates[i] = float64(i + 1)
	}
	return &Decay{rates: rates}
}

func (d *Decay) Name() string { return "decay" }
func (d *Decay) Nodes() int   { return len(d.rates) }

func (d *Decay) Initial() dynamo.Value {
	v := make(dynamo.Value, len(d.rates))
	for i := range v {
		v[i] = dynamo.State{1.0}
	}
	return v
}

func (d *Decay) Derive(node int, _ float64, x dynamo.State, _ dynamo.Value) dynamo.State {
	return dynamo.State{-d.rates[node] * x[0]}
}

// Exact implements dynamo.Exact
func (d *Decay) Exact(t float64) dynamo.Value {
	v := make(dynamo.Value, len(d.rates))
	for i, r := range d.rates {
		v[i] = dynamo.State{math.Exp(-r * t)}
	}
	return v
}

// GetParams exposes one "rate<i>" entry per node.
func (d *Decay) GetParams() map[string]float64 {
	params := make(map[string]float64, len(d.rates))
	for i, r := range d.rates {
		params["rate"+strconv.Itoa(i)] = r
	}
	return params
}

func (d *Decay) SetParam(name string, value float64) error {
	idx, err := strconv.Atoi(strings.TrimPrefix(name, "rate"))
	if !strings.HasPrefix(name, "rate") || err != nil {
		return fmt.Errorf("%s: %w", name, dynamo.ErrUnknownParam)
	}
	if idx < 0 || idx >= len(d.rates) {
		return fmt.Errorf("%s: node out of range: %w", name, dynamo.ErrParameterBounds)
	}
	d.rates[idx] = value
	return nil
}
