package relay

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rkravets/edsync/internal/group"
	"github.com/rkravets/edsync/internal/logger"
)

// Opener creates the detached window surface and returns the transport
// to it plus the new window's id, empty if the transport needs no
// addressing (a direct pair). Opening can genuinely fail (blocked
// popup, failed spawn); that failure is the one detach error surfaced
// synchronously.
type Opener func() (Transport, string, error)

// Host is the main window's end of the relay. It owns the canonical
// documents through the group manager; every detached window holds
// only a projection. Authority moves back to the host exclusively via
// tab-reattached.
type Host struct {
	windowID string
	groups   *group.Manager

	mu    sync.Mutex
	links map[string]*link
}

// link is one live detached window.
type link struct {
	windowID string
	path     string
	tr       Transport
}

func NewHost(windowID string, groups *group.Manager) *Host {
	if windowID == "" {
		windowID = uuid.NewString()
	}
	return &Host{
		windowID: windowID,
		groups:   groups,
		links:    make(map[string]*link),
	}
}

func (h *Host) WindowID() string { return h.windowID }

// Detach moves path's editing surface into a new window. The document
// must be open; the opener must succeed. On any failure the error is
// returned synchronously with no document state changed and no link
// registered. On success the new window's id is returned and the
// initial snapshot is on its way.
func (h *Host) Detach(path string, open Opener) (string, error) {
	snap, ok := h.groups.SnapshotOf(path)
	if !ok {
		return "", fmt.Errorf("detach of unknown document: %s", path)
	}

	tr, windowID, err := open()
	if err != nil {
		return "", fmt.Errorf("detach %s: %w", path, err)
	}
	if windowID == "" {
		windowID = uuid.NewString()
	}
	l := &link{windowID: windowID, path: path, tr: tr}
	h.mu.Lock()
	h.links[windowID] = l
	h.mu.Unlock()

	go h.readLoop(l)

	// The tab leaves the main surface; the canonical document stays.
	h.groups.CloseFile(path)

	h.send(l, Message{
		Kind:           KindDetachRequest,
		SourceWindowID: h.windowID,
		TargetWindowID: windowID,
		Snapshot:       &snap,
	})
	return windowID, nil
}

// Links returns the ids of currently attached detached windows.
func (h *Host) Links() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.links))
	for id := range h.links {
		ids = append(ids, id)
	}
	return ids
}

// BroadcastContentChanged pushes the canonical content of path to
// every detached window showing it, after a local edit. Fire and
// forget: a lost message is repaired by the next resend.
func (h *Host) BroadcastContentChanged(path string) {
	content, ok := h.groups.ContentOf(path)
	if !ok {
		return
	}
	h.mu.Lock()
	var targets []*link
	for _, l := range h.links {
		if l.path == path {
			targets = append(targets, l)
		}
	}
	h.mu.Unlock()
	for _, l := range targets {
		h.send(l, Message{
			Kind:           KindContentChanged,
			SourceWindowID: h.windowID,
			TargetWindowID: l.windowID,
			Path:           path,
			Content:        content,
		})
	}
}

// readLoop applies one detached window's messages in delivery order.
// The loop ends when the transport closes; a window that vanishes
// without reattaching simply stops sending, and state stays as last
// known.
func (h *Host) readLoop(l *link) {
	for msg := range l.tr.Receive() {
		if err := msg.Validate(); err != nil {
			logger.Warn("dropping invalid relay message", "window", l.windowID, "error", err)
			continue
		}
		h.handle(l, msg)
	}
	h.drop(l.windowID)
}

func (h *Host) handle(l *link, msg Message) {
	switch msg.Kind {
	case KindContentChanged:
		// Wholesale replace; applying the same message twice is a
		// no-op.
		h.groups.UpdateContent(msg.Path, msg.Content)

	case KindSaveRequested:
		h.groups.UpdateContent(msg.Path, msg.Content)
		if err := h.groups.Save(msg.Path); err != nil {
			logger.Error("save requested by detached window failed", "path", msg.Path, "error", err)
			return
		}
		h.resend(l, msg.Path)

	case KindRequestFile, KindPing:
		h.resend(l, msg.DocPath())

	case KindTabReattached:
		h.groups.AdoptSnapshot(*msg.Snapshot)
		h.drop(l.windowID)

	case KindDetachRequest, KindFileData:
		// Host-originated kinds; a detached peer echoing them back is
		// a protocol violation worth a diagnostic, nothing more.
		logger.Warn("unexpected relay message at host", "kind", msg.Kind, "window", l.windowID)
	}
}

// resend answers any suspicion of desync with the full current
// snapshot. That reply is the sender's only obligation.
func (h *Host) resend(l *link, path string) {
	snap, ok := h.groups.SnapshotOf(path)
	if !ok {
		logger.Warn("resend of unknown document", "path", path, "window", l.windowID)
		return
	}
	h.send(l, Message{
		Kind:           KindFileData,
		SourceWindowID: h.windowID,
		TargetWindowID: l.windowID,
		Snapshot:       &snap,
	})
}

func (h *Host) send(l *link, msg Message) {
	if err := l.tr.Send(msg); err != nil {
		logger.Warn("relay send failed", "window", l.windowID, "kind", msg.Kind, "error", err)
	}
}

func (h *Host) drop(windowID string) {
	h.mu.Lock()
	l, ok := h.links[windowID]
	delete(h.links, windowID)
	h.mu.Unlock()
	if ok {
		_ = l.tr.Close()
	}
}

// Close tears down all links.
func (h *Host) Close() {
	h.mu.Lock()
	links := h.links
	h.links = make(map[string]*link)
	h.mu.Unlock()
	for _, l := range links {
		_ = l.tr.Close()
	}
}
