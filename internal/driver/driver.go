// Package driver is the peer side of the interval protocol. It opens
// intervals, hands converged boundary values to the next interval and
// adapts the interval width to how hard the controller had to iterate.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/san-kum/cosim/internal/comm"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/protocol"
)

var ErrInvalidPolicy = errors.New("driver: invalid policy")

// Policy decides widths. Zero SlowIterations or FastIterations disables
// shrinking or growing.
type Policy struct {
	Start    float64
	End      float64
	Width    float64
	MinWidth float64
	MaxWidth float64

	SlowIterations int
	FastIterations int
	Shrink         float64
	Grow           float64
}

func (p Policy) Validate() error {
	if p.End <= p.Start {
		return fmt.Errorf("%w: end %g must be after start %g", ErrInvalidPolicy, p.End, p.Start)
	}
	if p.Width <= 0 {
		return fmt.Errorf("%w: width %g", ErrInvalidPolicy, p.Width)
	}
	if p.MaxWidth > 0 && p.MinWidth > p.MaxWidth {
		return fmt.Errorf("%w: min width %g above max width %g", ErrInvalidPolicy, p.MinWidth, p.MaxWidth)
	}
	if p.SlowIterations > 0 && (p.Shrink <= 0 || p.Shrink >= 1) {
		return fmt.Errorf("%w: shrink factor %g", ErrInvalidPolicy, p.Shrink)
	}
	if p.FastIterations > 0 && p.Grow <= 1 {
		return fmt.Errorf("%w: grow factor %g", ErrInvalidPolicy, p.Grow)
	}
	return nil
}

// next returns the width to use for the interval that starts at t.
func (p Policy) next(width, t float64, iterations int) float64 {
	w := width
	switch {
	case p.SlowIterations > 0 && iterations >= p.SlowIterations:
		w *= p.Shrink
	case p.FastIterations > 0 && iterations <= p.FastIterations:
		w *= p.Grow
	}
	if p.MinWidth > 0 {
		w = math.Max(w, p.MinWidth)
	}
	if p.MaxWidth > 0 {
		w = math.Min(w, p.MaxWidth)
	}
	if rest := p.End - t; w > rest {
		w = rest
	}
	return w
}

// Summary describes a finished drive.
type Summary struct {
	Intervals     int
	Adjustments   int
	Continuations int
	Final         protocol.Flag
	Time          float64
	Value         dynamo.Value
}

type Option func(*Driver)

func WithLogger(l *log.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// Driver runs one drive over a communicator.
type Driver struct {
	comm   comm.Communicator
	policy Policy
	logger *log.Logger
}

func New(c comm.Communicator, policy Policy, opts ...Option) *Driver {
	d := &Driver{
		comm:   c,
		policy: policy,
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drives the controller from Start to End. It announces its width,
// opens the first interval and closes the channel once
// the end is reached and returns when the controller reports failure or
// the channel closes.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	if err := d.policy.Validate(); err != nil {
		return nil, err
	}

	p := d.policy
	width := p.Width
	if rest := p.End - p.Start; width > rest {
		width = rest
	}
	sum := &Summary{Time: p.Start}

	// The controller may have been started with another width.
	if err := d.adjust(ctx, sum, p.Start, width); err != nil {
		return sum, err
	}
	if err := d.send(ctx, protocol.Message{Flag: protocol.FlagNone, Time: p.Start}); err != nil {
		return sum, err
	}
	sum.Intervals++

	for {
		msg, err := d.comm.Receive(ctx)
		if errors.Is(err, comm.ErrClosed) {
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("driver: receive: %w", err)
		}

		sum.Final = msg.Flag
		if v := msg.Value(); v != nil {
			sum.Value = v.Clone()
		}

		switch msg.Flag {
		case protocol.FlagFailed:
			d.logger.Printf("driver: controller failed at t=%g", msg.Time)
			sum.Time = msg.Time
			return sum, nil

		case protocol.FlagIterating:
			sum.Continuations++
			if err := d.send(ctx, protocol.Message{Flag: protocol.FlagNone, Time: msg.Time}); err != nil {
				return sum, err
			}
			continue

		case protocol.FlagConverged, protocol.FlagFinished:
			sum.Time = msg.Time

		default:
			return sum, fmt.Errorf("driver: unexpected %s reply", msg.Flag)
		}

		if msg.Flag == protocol.FlagFinished || msg.Time >= p.End-1e-12*math.Max(1, math.Abs(p.End)) {
			d.logger.Printf("driver: reached t=%g after %d intervals", msg.Time, sum.Intervals)
			return sum, d.comm.Close()
		}

		iterations := 0
		if msg.Result != nil {
			iterations = msg.Result.Iterations
		}
		if next := p.next(width, msg.Time, iterations); next != width {
			if err := d.adjust(ctx, sum, msg.Time, next); err != nil {
				return sum, err
			}
			width = next
		}

		handoff := protocol.Message{Flag: protocol.FlagNone, Time: msg.Time}
		if msg.Result != nil {
			handoff.Result = &protocol.Result{Value: msg.Result.Value}
		}
		if err := d.send(ctx, handoff); err != nil {
			return sum, err
		}
		sum.Intervals++
	}
}

func (d *Driver) adjust(ctx context.Context, sum *Summary, t, width float64) error {
	d.logger.Printf("driver: width %g at t=%g", width, t)
	sum.Adjustments++
	return d.send(ctx, protocol.Message{Flag: protocol.FlagTimeAdjusted, Time: t, Width: width})
}

func (d *Driver) send(ctx context.Context, msg protocol.Message) error {
	if err := d.comm.Send(ctx, msg); err != nil {
		return fmt.Errorf("driver: send %s: %w", msg.Flag, err)
	}
	return nil
}
