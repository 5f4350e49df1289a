package relay

import (
	"errors"
	"sync"

	"github.com/rkravets/edsync/internal/logger"
)

// ErrTransportClosed is returned by Send after Close.
var ErrTransportClosed = errors.New("relay transport closed")

// Transport is the narrow, possibly-unreliable channel between two
// windows. Send must never block the caller indefinitely; dropping a
// message is acceptable because every participant can recover with a
// full-state resend.
type Transport interface {
	Send(Message) error
	Receive() <-chan Message
	Close() error
}

const pairBuffer = 64

// PairTransport is an in-process channel transport. NewPair returns
// the two connected ends; what one end sends the other receives.
// A full buffer drops the message, mimicking the lossy cross-window
// channel the protocol is designed around.
type PairTransport struct {
	out chan<- Message
	in  <-chan Message

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewPair creates two connected transport ends.
func NewPair() (*PairTransport, *PairTransport) {
	ab := make(chan Message, pairBuffer)
	ba := make(chan Message, pairBuffer)
	a := &PairTransport{out: ab, in: ba, done: make(chan struct{})}
	b := &PairTransport{out: ba, in: ab, done: make(chan struct{})}
	return a, b
}

func (t *PairTransport) Send(m Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	select {
	case t.out <- m:
	default:
		// Lossy by contract; the receiver resyncs via request-file.
		logger.Warn("pair transport buffer full, dropping message", "kind", m.Kind, "path", m.DocPath())
	}
	return nil
}

func (t *PairTransport) Receive() <-chan Message {
	return t.in
}

func (t *PairTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	close(t.out)
	return nil
}

// Done is closed when this end closes, for callers that select on it.
func (t *PairTransport) Done() <-chan struct{} {
	return t.done
}
