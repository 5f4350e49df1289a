package relay

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rkravets/edsync/internal/logger"
)

// WSTransport is a Transport backed by a websocket connection to the
// hub. Invalid inbound frames are validated and dropped here, before
// any receiver dispatches on them.
type WSTransport struct {
	conn *websocket.Conn
	in   chan Message

	mu     sync.Mutex
	closed bool
}

// DialHub connects to the hub's /ws endpoint as the given window.
func DialHub(hubURL, windowID string) (*WSTransport, error) {
	url := fmt.Sprintf("%s?window=%s", hubURL, windowID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay hub: %w", err)
	}
	t := &WSTransport{conn: conn, in: make(chan Message, pairBuffer)}
	go t.readLoop()
	return t, nil
}

func (t *WSTransport) readLoop() {
	defer close(t.in)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := Decode(data)
		if err != nil {
			logger.Warn("dropping invalid relay frame", "error", err)
			continue
		}
		select {
		case t.in <- msg:
		default:
			// Lossy by contract; resend-on-suspicion recovers.
			logger.Warn("relay inbox full, dropping message", "kind", msg.Kind)
		}
	}
}

func (t *WSTransport) Send(m Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WSTransport) Receive() <-chan Message {
	return t.in
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
