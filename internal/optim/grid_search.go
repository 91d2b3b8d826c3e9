// Package optim searches run configurations for the one that minimizes a
// result metric.
package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/experiment"
)

// MetricTurns scores a run by its controller turns.
const MetricTurns = "turns"

// Candidate is one evaluated grid point.
type Candidate struct {
	Values map[string]float64
	Score  float64
	Failed bool
	Err    error
}

// RunFunc executes one run for a candidate configuration.
type RunFunc func(ctx context.Context, cfg *config.Config) (*experiment.Result, error)

type GridSearch struct {
	knobs  []string
	ranges [][]float64
}

func NewGridSearch(knobs []string, ranges [][]float64) *GridSearch {
	return &GridSearch{knobs: knobs, ranges: ranges}
}

// Search evaluates every grid point on top of base. Failed runs and runs
// that returned an error never win. It stops early when ctx is done.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, run RunFunc, metric string) (Candidate, []Candidate, error) {
	if len(g.knobs) != len(g.ranges) {
		return Candidate{}, nil, fmt.Errorf("optim: %d knobs but %d ranges", len(g.knobs), len(g.ranges))
	}

	best := Candidate{Score: math.Inf(1)}
	var all []Candidate

	err := g.searchRecursive(ctx, 0, make(map[string]float64), func(values map[string]float64) error {
		c := g.evaluate(ctx, base, values, run, metric)
		all = append(all, c)
		if c.Err == nil && !c.Failed && c.Score < best.Score {
			best = c
		}
		return ctx.Err()
	})
	if err != nil {
		return best, all, err
	}
	if best.Values == nil {
		return best, all, fmt.Errorf("optim: no successful run among %d candidates", len(all))
	}
	return best, all, nil
}

func (g *GridSearch) evaluate(ctx context.Context, base *config.Config, values map[string]float64, run RunFunc, metric string) Candidate {
	c := Candidate{Values: values, Score: math.Inf(1)}

	cfg := Clone(base)
	for _, k := range g.knobs {
		if err := Apply(cfg, k, values[k]); err != nil {
			c.Err = err
			return c
		}
	}

	res, err := run(ctx, cfg)
	if err != nil {
		c.Err = err
		return c
	}
	c.Failed = res.Failed()

	if metric == MetricTurns {
		c.Score = float64(res.Report.Turns)
		return c
	}
	v, ok := res.Metrics[metric]
	if !ok {
		c.Err = fmt.Errorf("optim: run has no metric %q", metric)
		return c
	}
	c.Score = v
	return c
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, visit func(map[string]float64) error) error {
	if depth == len(g.knobs) {
		return visit(current)
	}

	knob := g.knobs[depth]
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[knob] = val

		if err := g.searchRecursive(ctx, depth+1, next, visit); err != nil {
			return err
		}
	}
	return nil
}

// LocalRun runs each candidate in-process with reg.
func LocalRun(reg *experiment.Registry, opts ...experiment.SessionOption) RunFunc {
	return func(ctx context.Context, cfg *config.Config) (*experiment.Result, error) {
		s, err := experiment.NewSession(cfg, reg, opts...)
		if err != nil {
			return nil, err
		}
		return s.RunLocal(ctx)
	}
}
