package interval

import (
	"fmt"
	"math"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/protocol"
)

const (
	DefaultSteps         = 1
	DefaultTolerance     = 1e-9
	DefaultMaxIterations = 5
)

// Options configures the step executor. Zero fields take the defaults.
type Options struct {
	Steps         int
	Tolerance     float64
	MaxIterations int
	// SweepsPerTurn caps the sweeps of a single turn. An attempt that runs
	// out of sweeps below MaxIterations reports iterating and is resumed on
	// the next plain message.
	SweepsPerTurn int
	Parallel      bool
	// EndTime, when positive, turns a converged attempt that reaches it
	// into a finished one.
	EndTime float64
}

func (o Options) withDefaults() Options {
	if o.Steps <= 0 {
		o.Steps = DefaultSteps
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.SweepsPerTurn <= 0 || o.SweepsPerTurn > o.MaxIterations {
		o.SweepsPerTurn = o.MaxIterations
	}
	return o
}

// Point is one step boundary of an attempt.
type Point struct {
	Time  float64
	Value dynamo.Value
}

// Outcome is what one Execute call produced.
type Outcome struct {
	Value      dynamo.Value
	Flag       protocol.Flag
	Iterations int
	Residual   float64
	Err        error
	Trajectory []Point
}

// Attempt is the per-step, per-node iteration state of one interval.
type Attempt struct {
	Start, End float64

	times  []float64
	traj   []dynamo.Value // current iterate at every step boundary
	sweeps int
	res    float64 // residual of the last sweep
	done   *Outcome
}

func (a *Attempt) Sweeps() int { return a.sweeps }

// Executor runs Jacobi waveform relaxation sweeps over the steps and nodes
// of an interval. It never talks to a communicator.
type Executor struct {
	problem    dynamo.Problem
	integrator dynamo.Integrator
	opts       Options
	dims       []int // state length of every node
}

func NewExecutor(problem dynamo.Problem, integrator dynamo.Integrator, opts Options) *Executor {
	init := problem.Initial()
	dims := make([]int, len(init))
	for i, x := range init {
		dims[i] = len(x)
	}
	return &Executor{
		problem:    problem,
		integrator: integrator,
		opts:       opts.withDefaults(),
		dims:       dims,
	}
}

// checkShape rejects values that do not have one state of the problem's
// dimension per node, such as a malformed hand-off from the peer.
func (e *Executor) checkShape(v dynamo.Value) error {
	if len(v) != len(e.dims) {
		return fmt.Errorf("value has %d nodes, problem %d: %w",
			len(v), len(e.dims), dynamo.ErrDimensionMismatch)
	}
	for i, x := range v {
		if len(x) != e.dims[i] {
			return fmt.Errorf("node %d has %d components, problem %d: %w",
				i, len(x), e.dims[i], dynamo.ErrDimensionMismatch)
		}
	}
	return nil
}

func (e *Executor) Options() Options { return e.opts }

// Begin prepares a fresh attempt over [start, end]. The initial guess holds
// the initial value at every step boundary.
func (e *Executor) Begin(start, end float64, initial dynamo.Value) *Attempt {
	steps := e.opts.Steps
	a := &Attempt{
		Start: start,
		End:   end,
		times: make([]float64, steps+1),
		traj:  make([]dynamo.Value, steps+1),
	}
	h := (end - start) / float64(steps)
	for k := 0; k <= steps; k++ {
		a.times[k] = start + float64(k)*h
		a.traj[k] = initial.Clone()
	}
	a.times[steps] = end
	return a
}

// Execute continues the attempt for up to SweepsPerTurn sweeps. The first
// integrator error aborts the attempt.
func (e *Executor) Execute(a *Attempt) Outcome {
	if a.done != nil {
		return *a.done
	}

	for n := 0; n < e.opts.SweepsPerTurn; n++ {
		next, res, err := e.sweep(a)
		if err != nil {
			return e.finish(a, protocol.FlagFailed, err)
		}
		a.traj = next
		a.res = res
		a.sweeps++

		if res <= e.opts.Tolerance {
			flag := protocol.FlagConverged
			if e.reachesEnd(a.End) {
				flag = protocol.FlagFinished
			}
			return e.finish(a, flag, nil)
		}
		if a.sweeps >= e.opts.MaxIterations {
			err := fmt.Errorf("%d sweeps, residual %.3g > %.3g: %w",
				a.sweeps, res, e.opts.Tolerance, dynamo.ErrNotConverged)
			return e.finish(a, protocol.FlagFailed, err)
		}
	}

	return e.outcome(a, protocol.FlagIterating, nil)
}

func (e *Executor) reachesEnd(end float64) bool {
	if e.opts.EndTime <= 0 {
		return false
	}
	eps := 1e-12 * math.Max(1, math.Abs(e.opts.EndTime))
	return end >= e.opts.EndTime-eps
}

func (e *Executor) finish(a *Attempt, flag protocol.Flag, err error) Outcome {
	out := e.outcome(a, flag, err)
	a.done = &out
	return out
}

func (e *Executor) outcome(a *Attempt, flag protocol.Flag, err error) Outcome {
	traj := make([]Point, len(a.traj))
	for k, v := range a.traj {
		traj[k] = Point{Time: a.times[k], Value: v.Clone()}
	}
	res := a.res
	if a.sweeps == 0 {
		res = 0
	}
	return Outcome{
		Value:      a.traj[len(a.traj)-1].Clone(),
		Flag:       flag,
		Iterations: a.sweeps,
		Residual:   res,
		Err:        err,
		Trajectory: traj,
	}
}

// sweep computes the next iterate. Within a step every node advances from
// its own new state while reading the previous iterate of all nodes at the
// step start as coupling.
func (e *Executor) sweep(a *Attempt) ([]dynamo.Value, float64, error) {
	steps := len(a.traj) - 1
	nodes := len(e.dims)
	if err := e.checkShape(a.traj[0]); err != nil {
		return nil, 0, err
	}

	next := make([]dynamo.Value, steps+1)
	next[0] = a.traj[0].Clone()
	res := 0.0

	for k := 0; k < steps; k++ {
		t, h := a.times[k], a.times[k+1]-a.times[k]
		cur, coupling := next[k], a.traj[k]
		out := make(dynamo.Value, nodes)

		err := dynamo.ForEachNode(nodes, e.opts.Parallel, func(i int) error {
			x, err := e.integrator.Advance(e.problem, dynamo.Node{
				Index:    i,
				Time:     t,
				Width:    h,
				State:    cur[i],
				Coupling: coupling,
			})
			if err != nil {
				return &dynamo.StepError{Node: i, Step: k, Time: t, Wrapped: err}
			}
			out[i] = x
			return nil
		})
		if err != nil {
			return nil, 0, err
		}

		next[k+1] = out
		res = math.Max(res, out.MaxDiff(a.traj[k+1]))
	}
	return next, res, nil
}
