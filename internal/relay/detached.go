package relay

import (
	"sync"

	"github.com/rkravets/edsync/internal/document"
	"github.com/rkravets/edsync/internal/logger"
)

// Detached is the detached window's end of the relay. It holds a
// projection of one document, may edit it locally, and reconciles with
// the main window through content-changed and save-requested messages.
// It never blocks waiting for the host: local state is updated
// optimistically and corrected by the next inbound message.
type Detached struct {
	tr Transport

	mu       sync.Mutex
	windowID string
	hostID   string
	doc      *document.Document

	// onChange, when set, is invoked after every inbound state change
	// with the new projection, so a view can repaint.
	onChange func(document.Snapshot)

	started sync.Once
	stopped sync.Once
	loopEnd chan struct{}
}

func NewDetached(tr Transport) *Detached {
	return &Detached{tr: tr, loopEnd: make(chan struct{})}
}

// OnChange registers the repaint callback. Must be set before Start.
func (d *Detached) OnChange(fn func(document.Snapshot)) {
	d.onChange = fn
}

// Start begins applying inbound messages in delivery order.
func (d *Detached) Start() {
	d.started.Do(func() {
		go d.readLoop()
	})
}

func (d *Detached) readLoop() {
	defer close(d.loopEnd)
	for msg := range d.tr.Receive() {
		if err := msg.Validate(); err != nil {
			logger.Warn("dropping invalid relay message", "error", err)
			continue
		}
		d.handle(msg)
	}
}

func (d *Detached) handle(msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch msg.Kind {
	case KindDetachRequest:
		// The host addressed this window; adopt its id on first
		// contact.
		if d.windowID == "" {
			d.windowID = msg.TargetWindowID
		}
		d.hostID = msg.SourceWindowID
		d.doc = document.FromSnapshot(*msg.Snapshot)
		d.notifyLocked()

	case KindFileData:
		if d.doc == nil {
			d.doc = document.FromSnapshot(*msg.Snapshot)
		} else {
			d.doc.Adopt(*msg.Snapshot)
		}
		d.notifyLocked()

	case KindContentChanged:
		if d.doc == nil || d.doc.Path != msg.Path {
			d.requestLocked(msg.Path)
			return
		}
		d.doc.SetContent(msg.Content)
		d.notifyLocked()

	case KindRequestFile, KindPing:
		if d.doc == nil || d.doc.Path != msg.DocPath() {
			return
		}
		snap := d.doc.Snapshot()
		d.sendLocked(Message{
			Kind:           KindFileData,
			SourceWindowID: d.windowID,
			TargetWindowID: msg.SourceWindowID,
			Snapshot:       &snap,
		})

	default:
		logger.Warn("unexpected relay message at detached window", "kind", msg.Kind)
	}
}

// Snapshot returns the current projection, ok=false before the initial
// detach-request arrives.
func (d *Detached) Snapshot() (document.Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return document.Snapshot{}, false
	}
	return d.doc.Snapshot(), true
}

// Edit applies a local edit to the projection and pushes it to the
// host. Optimistic: the caller does not wait for acknowledgement.
func (d *Detached) Edit(content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		logger.Warn("edit before detach snapshot arrived")
		return
	}
	d.doc.SetContent(content)
	d.sendLocked(Message{
		Kind:           KindContentChanged,
		SourceWindowID: d.windowID,
		TargetWindowID: d.hostID,
		Path:           d.doc.Path,
		Content:        content,
	})
}

// RequestSave asks the host to persist the projection's content. The
// baseline moves when the host's file-data echo arrives.
func (d *Detached) RequestSave() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return
	}
	d.sendLocked(Message{
		Kind:           KindSaveRequested,
		SourceWindowID: d.windowID,
		TargetWindowID: d.hostID,
		Path:           d.doc.Path,
		Content:        d.doc.Content(),
	})
}

// Resync asks the host for a full resend, the recovery move for any
// suspected desync.
func (d *Detached) Resync() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return
	}
	d.requestLocked(d.doc.Path)
}

// Reattach hands the projection back to the host as canonical and
// closes this end. The window may close afterwards.
func (d *Detached) Reattach() {
	d.mu.Lock()
	if d.doc != nil {
		snap := d.doc.Snapshot()
		d.sendLocked(Message{
			Kind:           KindTabReattached,
			SourceWindowID: d.windowID,
			TargetWindowID: d.hostID,
			Snapshot:       &snap,
		})
	}
	d.mu.Unlock()
	d.close()
}

// CloseWindow is the window going away. Unsaved content is handed back
// as an implicit reattach; clean content is a silent drop.
func (d *Detached) CloseWindow() {
	d.mu.Lock()
	modified := d.doc != nil && d.doc.Modified()
	d.mu.Unlock()
	if modified {
		d.Reattach()
		return
	}
	d.close()
}

func (d *Detached) close() {
	d.stopped.Do(func() {
		_ = d.tr.Close()
	})
}

func (d *Detached) requestLocked(path string) {
	d.sendLocked(Message{
		Kind:           KindRequestFile,
		SourceWindowID: d.windowID,
		TargetWindowID: d.hostID,
		Path:           path,
	})
}

func (d *Detached) sendLocked(msg Message) {
	if msg.SourceWindowID == "" {
		// First contact may not have happened yet; the host keys on
		// the transport, not the id.
		msg.SourceWindowID = "detached"
	}
	if err := d.tr.Send(msg); err != nil {
		logger.Warn("relay send failed", "kind", msg.Kind, "error", err)
	}
}

func (d *Detached) notifyLocked() {
	if d.onChange != nil && d.doc != nil {
		d.onChange(d.doc.Snapshot())
	}
}
