package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for node integration.
var (
	// ErrInvalidState indicates a state vector containing NaN or Inf.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrNotConverged indicates an iteration that did not reach its tolerance.
	ErrNotConverged = errors.New("dynamo: iteration did not converge")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrDimensionMismatch indicates mismatched state and derivative dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrUnknownParam is returned by Configurable.SetParam.
	ErrUnknownParam = errors.New("dynamo: unknown parameter")
)

// StepError wraps an integrator error with its position in the solver loop.
type StepError struct {
	Node    int
	Step    int
	Time    float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("node %d step %d (t=%.4f): %v", e.Node, e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
