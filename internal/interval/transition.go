package interval

import "github.com/san-kum/cosim/internal/protocol"

// Action is what the controller does with an inbound message.
type Action int

const (
	EchoFailure Action = iota
	AdjustWidth
	BeginInterval
	ResumeInterval
)

func (a Action) String() string {
	switch a {
	case EchoFailure:
		return "echo_failure"
	case AdjustWidth:
		return "adjust_width"
	case BeginInterval:
		return "begin_interval"
	case ResumeInterval:
		return "resume_interval"
	}
	return "unknown"
}

// Decide applies an inbound message to s. It has no side effects.
//
// An inbound failure wins over everything else in the message. A width
// adjustment is checked next and touches only Width. Otherwise the choice
// between a new interval and a resume depends on PrevFlag alone.
func Decide(s State, msg protocol.Message) (State, Action) {
	switch msg.Flag {
	case protocol.FlagFailed:
		// The failure time reported by the peer becomes the current time.
		s.Flag = protocol.FlagFailed
		s.Time = msg.Time
		return s, EchoFailure
	case protocol.FlagTimeAdjusted:
		if msg.Width > 0 {
			s.Width = msg.Width
		}
		return s, AdjustWidth
	}

	if !s.PrevFlag.StartsNewInterval() {
		return s, ResumeInterval
	}

	s.Start = msg.Time
	s.Time = msg.Time + s.Width
	s.Intervals++
	if v := msg.Value(); v != nil {
		s.Value = v.Clone()
	}
	return s, BeginInterval
}

// Settle runs after a send. It reports done once a failure went out;
// otherwise the sent flag becomes PrevFlag.
func Settle(s State) (State, bool) {
	if s.Flag == protocol.FlagFailed {
		return s, true
	}
	s.PrevFlag = s.Flag
	return s, false
}
