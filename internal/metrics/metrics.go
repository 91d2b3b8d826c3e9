// Package metrics observes interval outcomes of a run.
package metrics

import (
	"sort"
	"sync"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/interval"
	"github.com/san-kum/cosim/internal/protocol"
)

// Sample is one executor outcome as seen by a metric.
type Sample struct {
	Start      float64
	Time       float64
	Flag       protocol.Flag
	Value      dynamo.Value
	Iterations int
	Residual   float64
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Collector feeds interval outcomes to its metrics. It is an
// interval.Hook and is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	metrics []Metric
}

func NewCollector(metrics ...Metric) *Collector {
	return &Collector{metrics: metrics}
}

func (c *Collector) Add(m Metric) {
	c.mu.Lock()
	c.metrics = append(c.metrics, m)
	c.mu.Unlock()
}

func (c *Collector) Func(ctx interval.HookCtx) {
	if ctx.Pos != interval.HookPosIntervalOutcome {
		return
	}
	out, ok := ctx.Item.(interval.Outcome)
	if !ok {
		return
	}
	st, _ := ctx.Detail.(interval.State)

	c.Observe(Sample{
		Start:      st.Start,
		Time:       st.Time,
		Flag:       out.Flag,
		Value:      out.Value,
		Iterations: out.Iterations,
		Residual:   out.Residual,
	})
}

func (c *Collector) Observe(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.metrics {
		m.Observe(s)
	}
}

// Results returns the current value of every metric by name.
func (c *Collector) Results() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.metrics))
	for _, m := range c.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

func (c *Collector) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.metrics))
	for _, m := range c.metrics {
		names = append(names, m.Name())
	}
	sort.Strings(names)
	return names
}

// ForProblem returns the metrics that make sense for p.
func ForProblem(p dynamo.Problem) []Metric {
	ms := []Metric{NewIterations(), NewResidual(), NewStability(1e6)}
	if _, ok := p.(dynamo.Hamiltonian); ok {
		ms = append(ms, NewEnergyDrift(p))
	}
	if _, ok := p.(dynamo.Exact); ok {
		ms = append(ms, NewExactError(p))
	}
	return ms
}
