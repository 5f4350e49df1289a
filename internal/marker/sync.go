package marker

import (
	"fmt"

	"github.com/rkravets/edsync/internal/logger"
	"github.com/rkravets/edsync/internal/position"
)

// DecorationKind distinguishes the two visuals a marker can produce.
type DecorationKind string

const (
	DecorationCaret     DecorationKind = "caret"
	DecorationSelection DecorationKind = "selection"
)

// Decoration is one rendered indicator for a remote actor.
type Decoration struct {
	Kind    DecorationKind
	ActorID string
	Name    string
	Color   string
	Pos     position.Position
	Span    position.Span
}

// DecorationID identifies an applied decoration inside the renderer.
type DecorationID string

// Renderer is the narrow surface of the text-buffer widget. Decoration
// creation may fail per call; the synchronizer isolates such failures
// per actor.
type Renderer interface {
	AddDecorations(path string, decs []Decoration) ([]DecorationID, error)
	RemoveDecorations(path string, ids []DecorationID) error
}

// ActorInfo resolves display metadata for an actor id. Returning
// ok=false renders the marker with the id as its label.
type ActorInfo func(actorID string) (name, color string, ok bool)

// Synchronizer turns marker snapshots into renderer decorations. It
// owns the applied-decoration lifecycle per document path: every
// reconcile releases a path's decorations as a unit before adding the
// new set, so decorations are never leaked and never merged
// incrementally.
type Synchronizer struct {
	renderer Renderer
	info     ActorInfo
	applied  map[string][]DecorationID
}

func NewSynchronizer(r Renderer, info ActorInfo) *Synchronizer {
	if info == nil {
		info = func(string) (string, string, bool) { return "", "", false }
	}
	return &Synchronizer{
		renderer: r,
		info:     info,
		applied:  make(map[string][]DecorationID),
	}
}

// Reconcile makes the rendered decoration set for path match marks
// exactly: one caret per actor, at most one selection range per actor,
// nothing for actors absent from marks. Positions outside the current
// line bounds are clamped, never rejected. One actor's renderer
// failure is logged and skipped without blocking the others.
func (s *Synchronizer) Reconcile(path string, marks []ActorMarkers, lines []string) {
	if old := s.applied[path]; len(old) > 0 {
		if err := s.renderer.RemoveDecorations(path, old); err != nil {
			logger.Warn("remove decorations failed", "path", path, "error", err)
		}
	}
	delete(s.applied, path)

	var ids []DecorationID
	for _, m := range marks {
		if m.Path != path {
			continue
		}
		actorIDs, err := s.renderActor(path, m, lines)
		if err != nil {
			logger.Warn("marker render failed", "path", path, "actor", m.ActorID, "error", err)
			continue
		}
		ids = append(ids, actorIDs...)
	}
	if len(ids) > 0 {
		s.applied[path] = ids
	}
}

// Clear releases all decorations for a path without adding new ones,
// used when the local view navigates away from the document.
func (s *Synchronizer) Clear(path string) {
	s.Reconcile(path, nil, nil)
}

// AppliedCount reports how many decorations are live for a path.
func (s *Synchronizer) AppliedCount(path string) int {
	return len(s.applied[path])
}

// renderActor builds and applies decorations for a single actor. The
// recover fence keeps a panicking renderer from blanking every other
// actor's markers.
func (s *Synchronizer) renderActor(path string, m ActorMarkers, lines []string) (ids []DecorationID, err error) {
	defer func() {
		if r := recover(); r != nil {
			ids = nil
			err = fmt.Errorf("renderer panic: %v", r)
		}
	}()

	name, color, ok := s.info(m.ActorID)
	if !ok {
		name = m.ActorID
	}

	decs := []Decoration{{
		Kind:    DecorationCaret,
		ActorID: m.ActorID,
		Name:    name,
		Color:   color,
		Pos:     position.Clamp(m.Cursor, lines),
	}}
	if m.Selection != nil {
		span := position.ClampSpan(*m.Selection, lines)
		if !span.IsEmpty() {
			decs = append(decs, Decoration{
				Kind:    DecorationSelection,
				ActorID: m.ActorID,
				Name:    name,
				Color:   color,
				Span:    span,
			})
		}
	}
	return s.renderer.AddDecorations(path, decs)
}
