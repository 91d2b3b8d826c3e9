package comm

import "github.com/san-kum/cosim/internal/protocol"

// Envelope is the unit the sequencer orders: a message, or the close
// marker that ends the channel.
type Envelope struct {
	Message protocol.Message `json:"message"`
	Closed  bool             `json:"closed,omitempty"`
}

// Sequencer restores channel order from Seq. Gaps are buffered until
// filled and already delivered sequence numbers are dropped. Envelopes
// without a sequence number pass straight through.
type Sequencer struct {
	next    uint64
	pending map[uint64]Envelope
}

func NewSequencer() *Sequencer {
	return &Sequencer{next: 1, pending: make(map[uint64]Envelope)}
}

// Push accepts one envelope and returns every envelope now deliverable
// in order.
func (s *Sequencer) Push(env Envelope) []Envelope {
	seq := env.Message.Seq
	if seq == 0 {
		return []Envelope{env}
	}
	if seq < s.next {
		return nil
	}
	if _, dup := s.pending[seq]; dup {
		return nil
	}
	s.pending[seq] = env

	var ready []Envelope
	for {
		e, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		ready = append(ready, e)
		s.next++
	}
	return ready
}

// Pending is the number of envelopes held back by a gap.
func (s *Sequencer) Pending() int { return len(s.pending) }
