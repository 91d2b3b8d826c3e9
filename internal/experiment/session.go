package experiment

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/cosim/internal/comm"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/driver"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/interval"
	"github.com/san-kum/cosim/internal/metrics"
	"github.com/san-kum/cosim/internal/protocol"
	"github.com/san-kum/cosim/internal/storage"
	"github.com/san-kum/cosim/internal/tracing"
)

const pipeBuffer = 16

// Result is what one run produced on the controller side, plus the
// driver summary when the driver ran in-process.
type Result struct {
	Report   *interval.RunReport
	Summary  *driver.Summary
	Records  []storage.Record
	Metrics  map[string]float64
	Duration time.Duration
}

// Failed reports whether the run ended with a failure.
func (r *Result) Failed() bool {
	return r.Report != nil && r.Report.Final == protocol.FlagFailed
}

type SessionOption func(*Session)

func WithLogger(l *log.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithHook attaches an extra observer to the controller.
func WithHook(h interval.Hook) SessionOption {
	return func(s *Session) { s.hooks = append(s.hooks, h) }
}

// Session is one configured run.
type Session struct {
	cfg        *config.Config
	problem    dynamo.Problem
	integrator dynamo.Integrator
	logger     *log.Logger
	hooks      []interval.Hook
}

func NewSession(cfg *config.Config, reg *Registry, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := reg.Problem(cfg.Problem, cfg.Nodes, cfg.Params)
	if err != nil {
		return nil, err
	}
	integ, err := reg.Integrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:        cfg,
		problem:    p,
		integrator: integ,
		logger:     log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) Config() *config.Config        { return s.cfg }
func (s *Session) Problem() dynamo.Problem       { return s.problem }
func (s *Session) Integrator() dynamo.Integrator { return s.integrator }

func (s *Session) ExecutorOptions() interval.Options {
	e := s.cfg.Executor
	return interval.Options{
		Steps:         e.Steps,
		Tolerance:     e.Tolerance,
		MaxIterations: e.MaxIterations,
		SweepsPerTurn: e.SweepsPerTurn,
		Parallel:      e.Parallel,
		EndTime:       s.cfg.End,
	}
}

func (s *Session) Policy() driver.Policy {
	d := s.cfg.Driver
	return driver.Policy{
		Start:          s.cfg.Start,
		End:            s.cfg.End,
		Width:          s.cfg.Dt,
		MinWidth:       d.MinWidth,
		MaxWidth:       d.MaxWidth,
		SlowIterations: d.SlowIterations,
		FastIterations: d.FastIterations,
		Shrink:         d.Shrink,
		Grow:           d.Grow,
	}
}

func (s *Session) Core(c comm.Communicator) interval.Core {
	return interval.Core{
		Problem:    s.problem,
		Integrator: s.integrator,
		Comm:       c,
		Executor:   s.ExecutorOptions(),
	}
}

// Serve runs only the controller side over c, for a remote driver.
func (s *Session) Serve(ctx context.Context, c comm.Communicator) (*Result, error) {
	ctrl, collect := s.controller()

	began := time.Now()
	rep, err := ctrl.Run(ctx, s.Core(c), s.cfg.Dt)
	return collect(rep, time.Since(began)), err
}

// Drive runs only the driver side over c.
func (s *Session) Drive(ctx context.Context, c comm.Communicator) (*driver.Summary, error) {
	return driver.New(c, s.Policy(), driver.WithLogger(s.logger)).Run(ctx)
}

// RunLocal runs the controller and the driver over an in-process pipe.
func (s *Session) RunLocal(ctx context.Context) (*Result, error) {
	ctrlEnd, driverEnd := comm.NewPipe(pipeBuffer)
	ctrl, collect := s.controller()

	var (
		rep *interval.RunReport
		sum *driver.Summary
	)
	began := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer ctrlEnd.Close()
		var err error
		rep, err = ctrl.Run(gctx, s.Core(ctrlEnd), s.cfg.Dt)
		return err
	})
	g.Go(func() error {
		defer driverEnd.Close()
		var err error
		sum, err = s.Drive(gctx, driverEnd)
		return err
	})
	err := g.Wait()

	res := collect(rep, time.Since(began))
	res.Summary = sum
	if err != nil {
		return res, fmt.Errorf("experiment: %s: %w", s.cfg.Problem, err)
	}
	return res, nil
}

// controller builds a controller with the session hooks and returns a
// function that turns its report into a Result.
func (s *Session) controller() (*interval.Controller, func(*interval.RunReport, time.Duration) *Result) {
	ctrl := interval.NewController(interval.WithLogger(s.logger))

	records := storage.NewCollector()
	ms := metrics.NewCollector(metrics.ForProblem(s.problem)...)
	ctrl.AcceptHook(records)
	ctrl.AcceptHook(ms)
	for _, h := range s.hooks {
		ctrl.AcceptHook(h)
	}

	return ctrl, func(rep *interval.RunReport, d time.Duration) *Result {
		return &Result{
			Report:   rep,
			Records:  records.Records(),
			Metrics:  ms.Results(),
			Duration: d,
		}
	}
}

// Metadata describes the result for the run store.
func (s *Session) Metadata(res *Result) storage.RunMetadata {
	meta := storage.RunMetadata{
		Problem:    s.cfg.Problem,
		Integrator: s.cfg.Integrator,
		Start:      s.cfg.Start,
		End:        s.cfg.End,
		Dt:         s.cfg.Dt,
		Metrics:    res.Metrics,
	}
	for _, x := range s.problem.Initial() {
		meta.Dims = append(meta.Dims, len(x))
	}
	if res.Report != nil {
		meta.Final = res.Report.Final.String()
		meta.Intervals = res.Report.Intervals
		meta.Turns = res.Report.Turns
	}
	return meta
}

// OpenTrace opens the configured trace recorder, or returns nil when
// tracing is off.
func OpenTrace(cfg config.TraceConfig) (*tracing.Recorder, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	driverName := cfg.Driver
	if driverName == "" {
		driverName = tracing.DriverSQLite
	}
	return tracing.Open(driverName, cfg.DSN)
}
