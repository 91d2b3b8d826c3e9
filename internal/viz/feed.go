package viz

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/interval"
	"github.com/san-kum/cosim/internal/protocol"
)

// IntervalMsg is one executor outcome.
type IntervalMsg struct {
	Interval   int
	Start      float64
	Time       float64
	Width      float64
	Flag       protocol.Flag
	Iterations int
	Residual   float64
	Value      dynamo.Value
	Err        error
}

type WidthMsg struct {
	Width float64
}

// DoneMsg ends the feed.
type DoneMsg struct {
	Report *interval.RunReport
	Err    error
}

// Feed forwards controller hook events to a Bubble Tea program. Sends
// block until the program reads them or Stop is called.
type Feed struct {
	ch       chan tea.Msg
	stop     chan struct{}
	stopOnce sync.Once
}

func NewFeed(buffer int) *Feed {
	return &Feed{
		ch:   make(chan tea.Msg, buffer),
		stop: make(chan struct{}),
	}
}

func (f *Feed) Func(ctx interval.HookCtx) {
	switch ctx.Pos {
	case interval.HookPosWidthAdjusted:
		if st, ok := ctx.Item.(interval.State); ok {
			f.send(WidthMsg{Width: st.Width})
		}
	case interval.HookPosIntervalOutcome:
		out, ok := ctx.Item.(interval.Outcome)
		if !ok {
			return
		}
		st, _ := ctx.Detail.(interval.State)
		f.send(IntervalMsg{
			Interval:   st.Intervals,
			Start:      st.Start,
			Time:       st.Time,
			Width:      st.Width,
			Flag:       out.Flag,
			Iterations: out.Iterations,
			Residual:   out.Residual,
			Value:      out.Value.Clone(),
			Err:        out.Err,
		})
	}
}

// Finish reports the end of the run.
func (f *Feed) Finish(rep *interval.RunReport, err error) {
	f.send(DoneMsg{Report: rep, Err: err})
}

// Stop releases blocked senders once the program has quit.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
}

func (f *Feed) send(msg tea.Msg) {
	select {
	case f.ch <- msg:
	case <-f.stop:
	}
}

// Next waits for the next event.
func (f *Feed) Next() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-f.ch:
			return msg
		case <-f.stop:
			return nil
		}
	}
}
