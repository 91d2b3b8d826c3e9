package interval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/san-kum/cosim/internal/comm"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/protocol"
)

var (
	ErrIncompleteCore = errors.New("interval: core needs a problem, an integrator and a communicator")
	ErrInvalidWidth   = errors.New("interval: width must be positive")
)

// Core bundles the collaborators of one run.
type Core struct {
	Problem    dynamo.Problem
	Integrator dynamo.Integrator
	Comm       comm.Communicator
	Executor   Options
}

// RunReport summarizes a finished run.
type RunReport struct {
	Final     protocol.Flag
	Intervals int
	Turns     int
	Sent      int
	Received  int
	Closed    bool
	Value     dynamo.Value
	Time      float64
	// Cause is the executor error behind a locally detected failure.
	Cause error
}

type Option func(*Controller)

// WithLogger routes START/FINISHED and per-turn lines to l.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller owns the work loop: one receive per turn, at most one send.
type Controller struct {
	*HookableBase
	logger *log.Logger
}

func NewController(opts ...Option) *Controller {
	c := &Controller{
		HookableBase: NewHookableBase(),
		logger:       log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drives the work loop until a failure has been sent or the channel
// closes. Protocol failures are reported through RunReport.Final; the error
// is reserved for an invalid core and transport problems. A non-positive dt
// is rejected before the first receive as a caller error; widths from the
// peer are never validated this way (see Decide).
func (c *Controller) Run(ctx context.Context, core Core, dt float64) (*RunReport, error) {
	if core.Problem == nil || core.Integrator == nil || core.Comm == nil {
		return nil, ErrIncompleteCore
	}
	if dt <= 0 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidWidth, dt)
	}

	exec := NewExecutor(core.Problem, core.Integrator, core.Executor)
	st := NewState(dt, core.Problem.Initial())
	rep := &RunReport{}
	var attempt *Attempt

	c.logger.Printf("interval: START problem=%s width=%g nodes=%d", core.Problem.Name(), dt, core.Problem.Nodes())
	defer func() {
		rep.Final, rep.Intervals, rep.Value, rep.Time = st.Flag, st.Intervals, st.Value.Clone(), st.Time
		c.logger.Printf("interval: FINISHED flag=%s intervals=%d turns=%d t=%g", rep.Final, rep.Intervals, rep.Turns, rep.Time)
	}()

	for {
		msg, err := core.Comm.Receive(ctx)
		if errors.Is(err, comm.ErrClosed) {
			rep.Closed = true
			return rep, nil
		}
		if err != nil {
			return rep, fmt.Errorf("interval: receive: %w", err)
		}
		rep.Received++
		c.InvokeHook(HookCtx{Domain: c, Pos: HookPosMsgRecv, Item: msg})

		var action Action
		st, action = Decide(st, msg)

		switch action {
		case EchoFailure:
			c.logger.Printf("interval: peer failed at t=%g, echoing", msg.Time)
			out := protocol.Message{
				Flag:   protocol.FlagFailed,
				Time:   st.Time,
				Result: &protocol.Result{Value: st.Value.Clone()},
			}
			if err := c.send(ctx, core.Comm, out, rep); err != nil {
				return rep, err
			}
			st, _ = Settle(st)
			return rep, nil

		case AdjustWidth:
			c.logger.Printf("interval: width now %g", st.Width)
			c.InvokeHook(HookCtx{Domain: c, Pos: HookPosWidthAdjusted, Item: st})
			continue

		case BeginInterval:
			attempt = exec.Begin(st.Start, st.Time, st.Value)
			c.InvokeHook(HookCtx{Domain: c, Pos: HookPosIntervalBegin, Item: st})

		case ResumeInterval:
			if attempt == nil {
				attempt = exec.Begin(st.Start, st.Time, st.Value)
			}
			c.InvokeHook(HookCtx{Domain: c, Pos: HookPosIntervalResume, Item: st})
		}

		rep.Turns++
		out := exec.Execute(attempt)
		st.Flag, st.Value = out.Flag, out.Value
		if out.Err != nil {
			rep.Cause = out.Err
			c.logger.Printf("interval: [%g, %g] failed: %v", st.Start, st.Time, out.Err)
		} else {
			c.logger.Printf("interval: [%g, %g] %s iter=%d res=%.3g", st.Start, st.Time, out.Flag, out.Iterations, out.Residual)
		}
		c.InvokeHook(HookCtx{Domain: c, Pos: HookPosIntervalOutcome, Item: out, Detail: st})

		reply := protocol.Message{
			Flag: out.Flag,
			Time: st.Time,
			Result: &protocol.Result{
				Value:      out.Value.Clone(),
				Iterations: out.Iterations,
				Residual:   out.Residual,
			},
		}
		if err := c.send(ctx, core.Comm, reply, rep); err != nil {
			return rep, err
		}

		var done bool
		if st, done = Settle(st); done {
			return rep, nil
		}
	}
}

func (c *Controller) send(ctx context.Context, ch comm.Communicator, msg protocol.Message, rep *RunReport) error {
	sent, err := comm.Send(ctx, ch, msg)
	if err != nil {
		return fmt.Errorf("interval: send %s: %w", msg.Flag, err)
	}
	rep.Sent++
	c.InvokeHook(HookCtx{Domain: c, Pos: HookPosMsgSend, Item: sent})
	return nil
}
