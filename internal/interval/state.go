package interval

import (
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/protocol"
)

// State is the interval bookkeeping of one run. It is owned by a single
// controller and never shared.
type State struct {
	Start     float64 // interval start, the time of the opening message
	Time      float64 // interval end
	Width     float64
	PrevFlag  protocol.Flag
	Flag      protocol.Flag
	Value     dynamo.Value // last computed value
	Intervals int
}

func NewState(width float64, initial dynamo.Value) State {
	return State{
		Width:    width,
		PrevFlag: protocol.FlagNone,
		Flag:     protocol.FlagNone,
		Value:    initial.Clone(),
	}
}
