package monitoring

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// Progress is a point-in-time copy of a ProgressBar.
type Progress struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Current   float64   `json:"current"`
	Finished  uint64    `json:"finished"`
	Fraction  float64   `json:"fraction"`
}

// A ProgressBar tracks how much simulated time a run has covered.
type ProgressBar struct {
	sync.Mutex
	p Progress
}

func NewProgressBar(name string, start, end float64) *ProgressBar {
	return &ProgressBar{p: Progress{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Start:     start,
		End:       end,
		Current:   start,
	}}
}

// Advance marks one more interval finished at simulated time t.
func (b *ProgressBar) Advance(t float64) {
	b.Lock()
	defer b.Unlock()

	if t > b.p.Current {
		b.p.Current = t
	}
	b.p.Finished++
}

// Fraction is the covered share of [Start, End], in [0, 1].
func (b *ProgressBar) Fraction() float64 {
	b.Lock()
	defer b.Unlock()
	return b.fraction()
}

func (b *ProgressBar) fraction() float64 {
	span := b.p.End - b.p.Start
	if span <= 0 {
		return 1
	}
	f := (b.p.Current - b.p.Start) / span
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func (b *ProgressBar) Snapshot() Progress {
	b.Lock()
	defer b.Unlock()
	p := b.p
	p.Fraction = b.fraction()
	return p
}
