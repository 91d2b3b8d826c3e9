// Package comm carries protocol messages between an interval controller
// and its peer.
package comm

import (
	"context"
	"errors"

	"github.com/rs/xid"

	"github.com/san-kum/cosim/internal/protocol"
)

// ErrClosed is returned once the channel has been closed by either side
// and no buffered messages remain.
var ErrClosed = errors.New("comm: channel closed")

// Communicator is one end of an ordered message channel. Messages sent
// before a Receive are observed by the peer before any later send.
type Communicator interface {
	Receive(ctx context.Context) (protocol.Message, error)
	Send(ctx context.Context, msg protocol.Message) error
	Close() error
}

// StampingSender is implemented by communicators that stamp ID and Seq
// on send. SendStamped returns the message as the peer receives it.
type StampingSender interface {
	SendStamped(ctx context.Context, msg protocol.Message) (protocol.Message, error)
}

// Send sends msg on ch and returns what went out, stamped when ch stamps.
func Send(ctx context.Context, ch Communicator, msg protocol.Message) (protocol.Message, error) {
	if s, ok := ch.(StampingSender); ok {
		return s.SendStamped(ctx, msg)
	}
	return msg, ch.Send(ctx, msg)
}

// stamper assigns the per-channel sequence number and a message ID.
type stamper struct {
	seq uint64
}

func (s *stamper) stamp(msg protocol.Message) protocol.Message {
	s.seq++
	msg = msg.Clone()
	msg.Seq = s.seq
	msg.ID = xid.New().String()
	return msg
}
