// Package experiment assembles runs from configuration: it maps names to
// problems and integrators and wires a controller to its peer.
package experiment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/integrators"
	"github.com/san-kum/cosim/internal/physics"
)

var ErrUnknown = errors.New("experiment: unknown name")

// ProblemFactory builds a problem with the requested node count. Problems
// with a fixed node count ignore it.
type ProblemFactory func(nodes int) dynamo.Problem

type Registry struct {
	problems    map[string]ProblemFactory
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		problems:    make(map[string]ProblemFactory),
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.problems["decay"] = func(n int) dynamo.Problem { return physics.NewDecay(n) }
	r.problems["spring_chain"] = func(n int) dynamo.Problem { return physics.NewSpringChain(n) }
	r.problems["coupled_pendulum"] = func(int) dynamo.Problem { return physics.NewCoupledPendulums() }
	r.problems["lorenz"] = func(int) dynamo.Problem { return physics.NewLorenz() }
	r.problems["nbody"] = func(n int) dynamo.Problem { return physics.NewNBody(n) }

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }
	r.integrators["verlet"] = func() dynamo.Integrator { return integrators.NewVerlet() }

	return r
}

func (r *Registry) RegisterProblem(name string, fn ProblemFactory) {
	r.problems[name] = fn
}

func (r *Registry) RegisterIntegrator(name string, fn func() dynamo.Integrator) {
	r.integrators[name] = fn
}

// Problem builds the named problem and applies params in name order.
func (r *Registry) Problem(name string, nodes int, params map[string]float64) (dynamo.Problem, error) {
	fn, ok := r.problems[name]
	if !ok {
		return nil, fmt.Errorf("%w: problem %q", ErrUnknown, name)
	}
	if nodes < 1 {
		nodes = 1
	}
	p := fn(nodes)
	if len(params) == 0 {
		return p, nil
	}

	c, ok := p.(dynamo.Configurable)
	if !ok {
		return nil, fmt.Errorf("problem %s takes no parameters: %w", name, dynamo.ErrUnknownParam)
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.SetParam(k, params[k]); err != nil {
			return nil, fmt.Errorf("problem %s: %s=%g: %w", name, k, params[k], err)
		}
	}
	return p, nil
}

func (r *Registry) Integrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("%w: integrator %q", ErrUnknown, name)
	}
	return fn(), nil
}

func (r *Registry) Problems() []string {
	return sortedKeys(r.problems)
}

func (r *Registry) Integrators() []string {
	return sortedKeys(r.integrators)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
