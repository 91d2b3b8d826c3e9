package storage

import (
	"sync"

	"github.com/san-kum/cosim/internal/interval"
)

// Collector turns successful interval outcomes into Records. It is an
// interval.Hook.
type Collector struct {
	mu      sync.Mutex
	records []Record
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Func(ctx interval.HookCtx) {
	if ctx.Pos != interval.HookPosIntervalOutcome {
		return
	}
	out, ok := ctx.Item.(interval.Outcome)
	if !ok || !out.Flag.Success() {
		return
	}
	st, _ := ctx.Detail.(interval.State)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, Record{
		Interval:   st.Intervals,
		Start:      st.Start,
		Time:       st.Time,
		Flag:       out.Flag,
		Iterations: out.Iterations,
		Residual:   out.Residual,
		Value:      out.Value.Clone(),
	})
}

// Records returns a copy of the collected records.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Collector) Last() (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.records) == 0 {
		return Record{}, false
	}
	return c.records[len(c.records)-1], true
}
