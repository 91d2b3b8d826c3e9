// Package protocol defines the messages exchanged between an interval
// controller and its peer.
package protocol

import (
	"fmt"

	"github.com/san-kum/cosim/internal/dynamo"
)

// Result is the numerical payload of a message.
type Result struct {
	Value      dynamo.Value `json:"value"`
	Iterations int          `json:"iterations,omitempty"`
	Residual   float64      `json:"residual,omitempty"`
}

// Message is one control message. ID and Seq are stamped by the sending
// communicator. Width is only meaningful for FlagTimeAdjusted.
type Message struct {
	ID     string  `json:"id,omitempty"`
	Seq    uint64  `json:"seq,omitempty"`
	Flag   Flag    `json:"flag"`
	Time   float64 `json:"time"`
	Width  float64 `json:"width,omitempty"`
	Result *Result `json:"result,omitempty"`
}

// Clone returns a deep copy so the sender can keep mutating its buffers.
func (m Message) Clone() Message {
	if m.Result != nil {
		r := *m.Result
		r.Value = m.Result.Value.Clone()
		m.Result = &r
	}
	return m
}

// Value returns the payload value or nil.
func (m Message) Value() dynamo.Value {
	if m.Result == nil {
		return nil
	}
	return m.Result.Value
}

func (m Message) String() string {
	s := fmt.Sprintf("#%d %s t=%.6g", m.Seq, m.Flag, m.Time)
	if m.Flag == FlagTimeAdjusted {
		s += fmt.Sprintf(" width=%.6g", m.Width)
	}
	if m.Result != nil {
		s += fmt.Sprintf(" iter=%d res=%.3g", m.Result.Iterations, m.Result.Residual)
	}
	return s
}
