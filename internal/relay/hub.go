package relay

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/rkravets/edsync/internal/logger"
)

// Hub relays messages between windows that live in separate processes.
// Windows connect over websocket and identify themselves with a window
// id; the hub routes targeted messages and broadcasts the rest. It
// keeps no document state and no retry queue: a message for a window
// that is gone is dropped, and the sender recovers with request-file.
//
// The /collab endpoint is a plain fanout for collaboration transport
// events (presence, cursors, selections): every frame a client sends
// is forwarded verbatim to all other collab clients.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	windows map[string]*hubClient
	collab  map[*hubClient]bool
}

type hubClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *hubClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func NewHub(allowAnyOrigin bool) *Hub {
	h := &Hub{
		windows: make(map[string]*hubClient),
		collab:  make(map[*hubClient]bool),
	}
	if allowAnyOrigin {
		h.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return h
}

// Router returns the hub's HTTP surface.
func (h *Hub) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", h.handleWindow)
	r.HandleFunc("/collab", h.handleCollab)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

// WindowCount reports connected relay windows.
func (h *Hub) WindowCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.windows)
}

func (h *Hub) handleWindow(w http.ResponseWriter, r *http.Request) {
	windowID := r.URL.Query().Get("window")
	if windowID == "" {
		http.Error(w, "missing window id", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := &hubClient{conn: conn}

	h.mu.Lock()
	if old, ok := h.windows[windowID]; ok {
		// A reconnect supersedes the stale connection.
		_ = old.conn.Close()
	}
	h.windows[windowID] = client
	h.mu.Unlock()
	logger.Info("window connected", "window", windowID)

	defer func() {
		_ = conn.Close()
		h.mu.Lock()
		if h.windows[windowID] == client {
			delete(h.windows, windowID)
		}
		h.mu.Unlock()
		logger.Info("window disconnected", "window", windowID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := Decode(data)
		if err != nil {
			logger.Warn("dropping invalid relay frame", "window", windowID, "error", err)
			continue
		}
		// The hub, not the sender, is authoritative for the source id.
		msg.SourceWindowID = windowID
		h.route(windowID, msg)
	}
}

// route delivers a message to its target, or to every other window
// when untargeted. Undeliverable messages are dropped by design.
func (h *Hub) route(from string, msg Message) {
	data, err := msg.Encode()
	if err != nil {
		logger.Error("encode relay message", "error", err)
		return
	}

	h.mu.Lock()
	var targets []*hubClient
	if msg.TargetWindowID != "" {
		if c, ok := h.windows[msg.TargetWindowID]; ok {
			targets = append(targets, c)
		}
	} else {
		for id, c := range h.windows {
			if id != from {
				targets = append(targets, c)
			}
		}
	}
	h.mu.Unlock()

	if msg.TargetWindowID != "" && len(targets) == 0 {
		logger.Debug("dropping message for gone window", "target", msg.TargetWindowID, "kind", msg.Kind)
		return
	}
	for _, c := range targets {
		if err := c.write(data); err != nil {
			logger.Warn("relay delivery failed", "kind", msg.Kind, "error", err)
		}
	}
}

func (h *Hub) handleCollab(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := &hubClient{conn: conn}

	h.mu.Lock()
	h.collab[client] = true
	h.mu.Unlock()

	defer func() {
		_ = conn.Close()
		h.mu.Lock()
		delete(h.collab, client)
		h.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.mu.Lock()
		var peers []*hubClient
		for c := range h.collab {
			if c != client {
				peers = append(peers, c)
			}
		}
		h.mu.Unlock()
		for _, c := range peers {
			if err := c.write(data); err != nil {
				logger.Warn("collab fanout failed", "error", err)
			}
		}
	}
}

// ListenAndServe runs the hub until the listener fails.
func (h *Hub) ListenAndServe(addr string) error {
	logger.Info("relay hub listening", "addr", addr)
	return http.ListenAndServe(addr, h.Router())
}
