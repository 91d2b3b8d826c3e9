// Package physics provides coupled node problems for the interval work loop.
//
// Each model implements the [dynamo.Problem] interface; every node is
// advanced on its own and reads the other nodes only through the frozen
// coupling value:
//
//   - [Decay]: independent exponential decays with an exact solution
//   - [SpringChain]: masses between fixed walls, coupled by springs
//   - [CoupledPendulums]: two pendulums linked by a spring
//   - [Lorenz]: butterfly attractor on a single node
//   - [NBody]: planar gravitation, one body per node
//
// All models implement [dynamo.Configurable] for parameter overrides from
// config files; the oscillators also implement [dynamo.Hamiltonian].
//
// # Energy Conservation
//
// For Hamiltonian systems, use [dynamo.Hamiltonian] to monitor energy drift:
//
//	p := physics.NewSpringChain(4)
//	if h, ok := dynamo.Problem(p).(dynamo.Hamiltonian); ok {
//	    energy := h.Energy(value)
//	}
package physics
