package comm

import (
	"context"
	"sync"

	"github.com/san-kum/cosim/internal/protocol"
)

// Endpoint is one side of an in-process pipe.
type Endpoint struct {
	mu      sync.Mutex
	stamper stamper
	closed  bool

	in   <-chan protocol.Message
	out  chan protocol.Message
	done chan struct{}
	peer *Endpoint

	closeOnce sync.Once
}

// NewPipe returns two connected endpoints. Each direction buffers up to
// buffer messages; zero makes sends wait for the peer.
func NewPipe(buffer int) (*Endpoint, *Endpoint) {
	ab := make(chan protocol.Message, buffer)
	ba := make(chan protocol.Message, buffer)

	a := &Endpoint{in: ba, out: ab, done: make(chan struct{})}
	b := &Endpoint{in: ab, out: ba, done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (e *Endpoint) Send(ctx context.Context, msg protocol.Message) error {
	_, err := e.SendStamped(ctx, msg)
	return err
}

// SendStamped implements StampingSender.
func (e *Endpoint) SendStamped(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return protocol.Message{}, ErrClosed
	}
	select {
	case <-e.peer.done:
		return protocol.Message{}, ErrClosed
	default:
	}

	msg = e.stamper.stamp(msg)
	select {
	case e.out <- msg:
		return msg.Clone(), nil
	case <-e.done:
		return protocol.Message{}, ErrClosed
	case <-e.peer.done:
		return protocol.Message{}, ErrClosed
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	}
}

// Receive returns the next message. After the peer closed, buffered
// messages are still delivered before ErrClosed.
func (e *Endpoint) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case msg, ok := <-e.in:
		if !ok {
			return protocol.Message{}, ErrClosed
		}
		return msg, nil
	case <-e.done:
		return protocol.Message{}, ErrClosed
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	}
}

// Close ends this direction of the pipe. It is safe to call more than once.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)

		e.mu.Lock()
		e.closed = true
		close(e.out)
		e.mu.Unlock()
	})
	return nil
}
