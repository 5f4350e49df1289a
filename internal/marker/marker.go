// Package marker owns remote cursor and selection markers: the
// last-known position of every other actor in every document, and the
// renderer decorations that make them visible.
package marker

import (
	"sort"
	"sync"

	"github.com/rkravets/edsync/internal/position"
)

// ActorMarkers is the live marker pair for one actor. An actor has at
// most one cursor and at most one selection, both on the same path.
type ActorMarkers struct {
	ActorID   string
	Path      string
	Cursor    position.Position
	Selection *position.Span
}

// Snapshot stores the current marker set, indexed by document path so
// switching the viewed document cheaply switches which markers render.
// Updates are last-write-wins per actor: a new cursor on path B
// replaces the actor's markers wholesale, including retiring whatever
// they had on path A. The source never emits explicit removals for a
// silent document switch, so replacement has to happen here.
type Snapshot struct {
	mu     sync.RWMutex
	actors map[string]ActorMarkers
}

func NewSnapshot() *Snapshot {
	return &Snapshot{actors: make(map[string]ActorMarkers)}
}

// SetCursor records an actor's cursor. Moving to a new path drops the
// actor's previous selection; moving within a path keeps it.
func (s *Snapshot) SetCursor(actorID, path string, pos position.Position) {
	if actorID == "" || path == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.actors[actorID]
	if !ok || m.Path != path {
		m = ActorMarkers{ActorID: actorID, Path: path}
	}
	m.Cursor = pos
	s.actors[actorID] = m
}

// SetSelection records an actor's selection, nil meaning no selection.
// A selection on a path the actor was not known to be on moves them
// there, same replacement rule as SetCursor.
func (s *Snapshot) SetSelection(actorID, path string, sel *position.Span) {
	if actorID == "" || path == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.actors[actorID]
	if !ok || m.Path != path {
		m = ActorMarkers{ActorID: actorID, Path: path}
	}
	if sel != nil {
		cp := *sel
		m.Selection = &cp
	} else {
		m.Selection = nil
	}
	s.actors[actorID] = m
}

// ClearActor drops all markers for an actor (disconnect, timeout).
func (s *Snapshot) ClearActor(actorID string) {
	s.mu.Lock()
	delete(s.actors, actorID)
	s.mu.Unlock()
}

// MarkersFor returns the marker set for one path, sorted by actor id.
func (s *Snapshot) MarkersFor(path string) []ActorMarkers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ActorMarkers
	for _, m := range s.actors {
		if m.Path == path {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out
}

// Get returns one actor's markers.
func (s *Snapshot) Get(actorID string) (ActorMarkers, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.actors[actorID]
	return m, ok
}
