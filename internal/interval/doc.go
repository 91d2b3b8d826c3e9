// Package interval implements the interval-controlled work loop.
//
// A Controller receives one control message per turn from its
// communicator and answers with at most one message. The choice of what to
// do with a message is the pure function [Decide]; the numerical work of a
// turn is done by the [Executor], which never sees the communicator.
//
//	ctrl := interval.NewController(interval.WithLogger(logger))
//	report, err := ctrl.Run(ctx, interval.Core{
//	    Problem:    physics.NewDecay(2),
//	    Integrator: integrators.NewRK4(),
//	    Comm:       endpoint,
//	}, 0.1)
//
// The run ends once a failed message has been sent, or when the channel
// closes.
package interval
