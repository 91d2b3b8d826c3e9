// Package dynamo provides the numerical primitives shared by problems,
// integrators and the interval work loop.
//
//   - [State]: vector state of one node
//   - [Value]: the states of all nodes of a problem
//   - [Problem]: coupled node system (dX_i/dt = f_i(t, X_i, X))
//   - [Integrator]: advances one node across one time step
//   - [ForEachNode]: fan-out/fan-in over the nodes of a step
//
// # Example
//
//	p := physics.NewSpringChain(4)
//	integ := integrators.NewRK4()
//	x, err := integ.Advance(p, dynamo.Node{
//	    Index: 0, Time: 0, Width: 0.01,
//	    State: p.Initial()[0], Coupling: p.Initial(),
//	})
//
// # Thread Safety
//
// Problems and integrators must tolerate concurrent calls for different
// nodes when the executor runs in parallel mode. The integrators in this
// module keep no per-call state.
package dynamo
