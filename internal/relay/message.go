// Package relay keeps a document opened in a detached OS window
// consistent with the main window's canonical copy. The two windows
// share no memory; everything crosses an asynchronous message channel
// that may silently drop messages. The protocol therefore leans on
// idempotent full-state resends: every message fully supersedes the
// receiver's state for its path, so no sequence numbers, acks or
// causal ordering are needed. Anyone who suspects it is out of sync
// asks for a resend.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/rkravets/edsync/internal/document"
)

// Kind discriminates the relay message envelope.
type Kind string

const (
	// KindDetachRequest carries the initial snapshot to a new window.
	KindDetachRequest Kind = "detach-request"
	// KindContentChanged replaces the receiver's content wholesale.
	KindContentChanged Kind = "content-changed"
	// KindSaveRequested asks the main window to persist content.
	KindSaveRequested Kind = "save-requested"
	// KindRequestFile asks the other side for a full resend.
	KindRequestFile Kind = "request-file"
	// KindPing probes liveness; the reply is a KindFileData resend.
	KindPing Kind = "ping"
	// KindFileData is a full snapshot resend.
	KindFileData Kind = "file-data"
	// KindTabReattached hands authority back to the main window.
	KindTabReattached Kind = "tab-reattached"
)

// Message is the envelope exchanged between windows. Payload fields
// are populated per kind; Validate enforces the closed set before any
// receiver dispatches on it.
type Message struct {
	Kind           Kind   `json:"kind"`
	SourceWindowID string `json:"sourceWindowId"`
	TargetWindowID string `json:"targetWindowId,omitempty"`

	Path     string             `json:"path,omitempty"`
	Content  string             `json:"content,omitempty"`
	Snapshot *document.Snapshot `json:"snapshot,omitempty"`
}

// Validate checks the kind and its required payload. Receivers drop
// and log anything invalid instead of dispatching on it.
func (m Message) Validate() error {
	switch m.Kind {
	case KindDetachRequest, KindFileData, KindTabReattached:
		if m.Snapshot == nil {
			return fmt.Errorf("%s without snapshot", m.Kind)
		}
		if m.Snapshot.Path == "" {
			return fmt.Errorf("%s with empty snapshot path", m.Kind)
		}
	case KindContentChanged, KindSaveRequested:
		if m.Path == "" {
			return fmt.Errorf("%s without path", m.Kind)
		}
	case KindRequestFile, KindPing:
		if m.Path == "" {
			return fmt.Errorf("%s without path", m.Kind)
		}
	default:
		return fmt.Errorf("unknown relay message kind: %q", m.Kind)
	}
	if m.SourceWindowID == "" {
		return fmt.Errorf("%s without source window", m.Kind)
	}
	return nil
}

// DocPath returns the document path the message is about, regardless
// of which payload field carries it.
func (m Message) DocPath() string {
	if m.Snapshot != nil {
		return m.Snapshot.Path
	}
	return m.Path
}

// Encode marshals the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode unmarshals and validates a wire message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode relay message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
