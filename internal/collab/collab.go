// Package collab consumes collaboration events from the transport and
// feeds the presence directory and marker snapshot. Events carry full
// state per actor; applying one is idempotent, so a resend after a
// suspected delivery failure is always safe.
package collab

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rkravets/edsync/internal/logger"
	"github.com/rkravets/edsync/internal/marker"
	"github.com/rkravets/edsync/internal/position"
	"github.com/rkravets/edsync/internal/presence"
)

// Event kinds accepted by Session.HandleEvent.
const (
	EventActorOnline  = "actor-online"
	EventActorOffline = "actor-offline"
	EventHeartbeat    = "heartbeat"
	EventCursor       = "cursor"
	EventSelection    = "selection"
)

// Event is the tagged wire form of a collaboration event.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type onlinePayload struct {
	ActorID      string          `json:"actor_id"`
	DisplayName  string          `json:"display_name"`
	Status       presence.Status `json:"status,omitempty"`
	DocumentPath string          `json:"document_path,omitempty"`
}

type actorPayload struct {
	ActorID string `json:"actor_id"`
}

type cursorPayload struct {
	ActorID  string `json:"actor_id"`
	FilePath string `json:"file_path"`
	Position struct {
		Line   int `json:"line"`
		Column int `json:"column"`
	} `json:"position"`
}

type selectionPayload struct {
	ActorID   string `json:"actor_id"`
	FilePath  string `json:"file_path"`
	Selection *struct {
		StartLine   int `json:"start_line"`
		StartColumn int `json:"start_column"`
		EndLine     int `json:"end_line"`
		EndColumn   int `json:"end_column"`
	} `json:"selection"`
}

// LinesFunc resolves a document path to its current line view; nil
// result means the document is not open locally.
type LinesFunc func(path string) []string

// Session applies collaboration events for one editing context. Events
// are applied strictly in delivery order; the viewed document is
// reconciled after every mutation so decorations never lag state.
type Session struct {
	mu     sync.Mutex
	dir    *presence.Directory
	marks  *marker.Snapshot
	sync   *marker.Synchronizer
	lines  LinesFunc
	viewed string
	max    int
}

// NewSession wires the intake to a renderer. maxActors bounds how many
// actors may be online at once; zero means unbounded.
func NewSession(dir *presence.Directory, r marker.Renderer, lines LinesFunc, maxActors int) *Session {
	info := func(actorID string) (string, string, bool) {
		p, ok := dir.Get(actorID)
		return p.DisplayName, p.Color, ok
	}
	return &Session{
		dir:   dir,
		marks: marker.NewSnapshot(),
		sync:  marker.NewSynchronizer(r, info),
		lines: lines,
		max:   maxActors,
	}
}

// Directory exposes the presence directory for read access (status
// bars, collaborator lists).
func (s *Session) Directory() *presence.Directory { return s.dir }

// SetViewedPath switches which document's decorations are rendered.
// The old document's decorations are removed.
func (s *Session) SetViewedPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == s.viewed {
		return
	}
	if s.viewed != "" {
		s.sync.Clear(s.viewed)
	}
	s.viewed = path
	s.reconcileLocked()
}

// ViewedPath returns the document currently being decorated.
func (s *Session) ViewedPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewed
}

// HandleEvent decodes and applies one transport event. Unknown event
// types and malformed payloads are reported but never tear down the
// session; the next event applies as usual.
func (s *Session) HandleEvent(data []byte) error {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode collab event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case EventActorOnline:
		var p onlinePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		if p.ActorID == "" {
			return fmt.Errorf("%s event without actor id", ev.Type)
		}
		if _, known := s.dir.Get(p.ActorID); !known && s.max > 0 && s.dir.Count() >= s.max {
			logger.Warn("collaborator limit reached, ignoring join", "actor", p.ActorID, "limit", s.max)
			return nil
		}
		s.dir.Upsert(presence.Presence{
			ActorID:      p.ActorID,
			DisplayName:  p.DisplayName,
			Status:       p.Status,
			DocumentPath: p.DocumentPath,
		})
	case EventActorOffline:
		var p actorPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		s.dir.Remove(p.ActorID)
		s.marks.ClearActor(p.ActorID)
	case EventHeartbeat:
		var p actorPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		s.dir.Touch(p.ActorID)
		return nil // no marker change, nothing to reconcile
	case EventCursor:
		var p cursorPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		s.marks.SetCursor(p.ActorID, p.FilePath, position.Position{
			Line: p.Position.Line,
			Col:  p.Position.Column,
		})
		s.moveActorLocked(p.ActorID, p.FilePath)
	case EventSelection:
		var p selectionPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		var span *position.Span
		if p.Selection != nil {
			span = &position.Span{
				Start: position.Position{Line: p.Selection.StartLine, Col: p.Selection.StartColumn},
				End:   position.Position{Line: p.Selection.EndLine, Col: p.Selection.EndColumn},
			}
		}
		s.marks.SetSelection(p.ActorID, p.FilePath, span)
		s.moveActorLocked(p.ActorID, p.FilePath)
	default:
		logger.Debug("ignoring unknown collab event", "type", ev.Type)
		return nil
	}

	s.reconcileLocked()
	return nil
}

// ExpireStale drops actors whose last heartbeat predates cutoff and
// removes their markers.
func (s *Session) ExpireStale(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := s.dir.ExpireBefore(cutoff)
	for _, id := range expired {
		s.marks.ClearActor(id)
	}
	if len(expired) > 0 {
		s.reconcileLocked()
	}
	return expired
}

// Close removes all rendered decorations for the viewed document.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewed != "" {
		s.sync.Clear(s.viewed)
		s.viewed = ""
	}
}

// moveActorLocked keeps the presence record's document in step with
// marker events and refreshes the heartbeat clock.
func (s *Session) moveActorLocked(actorID, path string) {
	p, ok := s.dir.Get(actorID)
	if !ok {
		// Cursor before join: track markers anyway, the join event
		// fills in the rest when it lands.
		return
	}
	if p.DocumentPath != path {
		p.DocumentPath = path
		s.dir.Upsert(p)
	} else {
		s.dir.Touch(actorID)
	}
}

func (s *Session) reconcileLocked() {
	if s.viewed == "" {
		return
	}
	var lines []string
	if s.lines != nil {
		lines = s.lines(s.viewed)
	}
	if lines == nil {
		lines = position.SplitLines("")
	}
	s.sync.Reconcile(s.viewed, s.marks.MarkersFor(s.viewed), lines)
}
