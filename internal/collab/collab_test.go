package collab

import (
	"fmt"
	"testing"
	"time"

	"github.com/rkravets/edsync/internal/config"
	"github.com/rkravets/edsync/internal/marker"
	"github.com/rkravets/edsync/internal/presence"
)

type fakeRenderer struct {
	nextID int
	live   map[marker.DecorationID]marker.Decoration
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{live: make(map[marker.DecorationID]marker.Decoration)}
}

func (f *fakeRenderer) AddDecorations(path string, decs []marker.Decoration) ([]marker.DecorationID, error) {
	var ids []marker.DecorationID
	for _, d := range decs {
		f.nextID++
		id := marker.DecorationID(fmt.Sprintf("dec-%d", f.nextID))
		f.live[id] = d
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeRenderer) RemoveDecorations(path string, ids []marker.DecorationID) error {
	for _, id := range ids {
		delete(f.live, id)
	}
	return nil
}

func (f *fakeRenderer) decorationsFor(actorID string) []marker.Decoration {
	var out []marker.Decoration
	for _, d := range f.live {
		if d.ActorID == actorID {
			out = append(out, d)
		}
	}
	return out
}

func newSession(r marker.Renderer, maxActors int) *Session {
	dir := presence.NewDirectory(config.DefaultCursorColors)
	lines := func(path string) []string {
		return []string{"line one", "line two", "line three"}
	}
	return NewSession(dir, r, lines, maxActors)
}

func handle(t *testing.T, s *Session, event string) {
	t.Helper()
	if err := s.HandleEvent([]byte(event)); err != nil {
		t.Fatalf("HandleEvent(%s): %v", event, err)
	}
}

func TestJoinAndCursorRendersCaret(t *testing.T) {
	r := newFakeRenderer()
	s := newSession(r, 0)
	s.SetViewedPath("a.ts")

	handle(t, s, `{"type":"actor-online","payload":{"actor_id":"u1","display_name":"Alice"}}`)
	handle(t, s, `{"type":"cursor","payload":{"actor_id":"u1","file_path":"a.ts","position":{"line":1,"column":3}}}`)

	decs := r.decorationsFor("u1")
	if len(decs) != 1 {
		t.Fatalf("decorations for u1 = %d, want 1", len(decs))
	}
	d := decs[0]
	if d.Kind != marker.DecorationCaret {
		t.Fatalf("Kind = %q, want caret", d.Kind)
	}
	if d.Name != "Alice" {
		t.Fatalf("Name = %q, want Alice", d.Name)
	}
	if d.Color == "" {
		t.Fatalf("decoration has no color")
	}
	if d.Pos.Line != 1 || d.Pos.Col != 3 {
		t.Fatalf("Pos = %+v, want {1 3}", d.Pos)
	}
}

func TestCursorMovesInsteadOfAccumulating(t *testing.T) {
	r := newFakeRenderer()
	s := newSession(r, 0)
	s.SetViewedPath("a.ts")

	handle(t, s, `{"type":"actor-online","payload":{"actor_id":"u1","display_name":"Alice"}}`)
	handle(t, s, `{"type":"cursor","payload":{"actor_id":"u1","file_path":"a.ts","position":{"line":0,"column":0}}}`)
	handle(t, s, `{"type":"cursor","payload":{"actor_id":"u1","file_path":"a.ts","position":{"line":2,"column":1}}}`)

	decs := r.decorationsFor("u1")
	if len(decs) != 1 {
		t.Fatalf("decorations after two cursor events = %d, want 1", len(decs))
	}
	if decs[0].Pos.Line != 2 {
		t.Fatalf("Pos.Line = %d, want 2", decs[0].Pos.Line)
	}
}

func TestSelectionAndClear(t *testing.T) {
	r := newFakeRenderer()
	s := newSession(r, 0)
	s.SetViewedPath("a.ts")

	handle(t, s, `{"type":"actor-online","payload":{"actor_id":"u1","display_name":"Alice"}}`)
	handle(t, s, `{"type":"selection","payload":{"actor_id":"u1","file_path":"a.ts","selection":{"start_line":0,"start_column":0,"end_line":1,"end_column":4}}}`)

	found := false
	for _, d := range r.decorationsFor("u1") {
		if d.Kind == marker.DecorationSelection {
			found = true
		}
	}
	if !found {
		t.Fatalf("no selection decoration rendered")
	}

	handle(t, s, `{"type":"selection","payload":{"actor_id":"u1","file_path":"a.ts","selection":null}}`)
	for _, d := range r.decorationsFor("u1") {
		if d.Kind == marker.DecorationSelection {
			t.Fatalf("selection decoration survived a null selection event")
		}
	}
}

func TestOfflineRemovesDecorations(t *testing.T) {
	r := newFakeRenderer()
	s := newSession(r, 0)
	s.SetViewedPath("a.ts")

	handle(t, s, `{"type":"actor-online","payload":{"actor_id":"u1","display_name":"Alice"}}`)
	handle(t, s, `{"type":"cursor","payload":{"actor_id":"u1","file_path":"a.ts","position":{"line":0,"column":0}}}`)
	handle(t, s, `{"type":"actor-offline","payload":{"actor_id":"u1"}}`)

	if got := r.decorationsFor("u1"); len(got) != 0 {
		t.Fatalf("decorations after offline = %d, want 0", len(got))
	}
	if _, ok := s.Directory().Get("u1"); ok {
		t.Fatalf("actor still in directory after offline")
	}
}

func TestViewedPathSwitch(t *testing.T) {
	r := newFakeRenderer()
	s := newSession(r, 0)
	s.SetViewedPath("a.ts")

	handle(t, s, `{"type":"actor-online","payload":{"actor_id":"u1","display_name":"Alice"}}`)
	handle(t, s, `{"type":"cursor","payload":{"actor_id":"u1","file_path":"a.ts","position":{"line":0,"column":0}}}`)
	handle(t, s, `{"type":"cursor","payload":{"actor_id":"u2","file_path":"b.ts","position":{"line":1,"column":0}}}`)

	if len(r.decorationsFor("u2")) != 0 {
		t.Fatalf("decorations rendered for a document not being viewed")
	}

	s.SetViewedPath("b.ts")
	if len(r.decorationsFor("u1")) != 0 {
		t.Fatalf("old document decorations survived a view switch")
	}
	if len(r.decorationsFor("u2")) != 1 {
		t.Fatalf("decorations for u2 after switch = %d, want 1", len(r.decorationsFor("u2")))
	}
}

func TestHeartbeatAndExpiry(t *testing.T) {
	r := newFakeRenderer()
	s := newSession(r, 0)
	s.SetViewedPath("a.ts")

	handle(t, s, `{"type":"actor-online","payload":{"actor_id":"u1","display_name":"Alice"}}`)
	handle(t, s, `{"type":"cursor","payload":{"actor_id":"u1","file_path":"a.ts","position":{"line":0,"column":0}}}`)
	handle(t, s, `{"type":"heartbeat","payload":{"actor_id":"u1"}}`)

	expired := s.ExpireStale(time.Now().Add(-time.Minute))
	if len(expired) != 0 {
		t.Fatalf("fresh actor expired: %v", expired)
	}

	expired = s.ExpireStale(time.Now().Add(time.Minute))
	if len(expired) != 1 || expired[0] != "u1" {
		t.Fatalf("ExpireStale = %v, want [u1]", expired)
	}
	if got := r.decorationsFor("u1"); len(got) != 0 {
		t.Fatalf("decorations after expiry = %d, want 0", len(got))
	}
}

func TestCollaboratorLimit(t *testing.T) {
	r := newFakeRenderer()
	s := newSession(r, 2)

	handle(t, s, `{"type":"actor-online","payload":{"actor_id":"u1","display_name":"A"}}`)
	handle(t, s, `{"type":"actor-online","payload":{"actor_id":"u2","display_name":"B"}}`)
	handle(t, s, `{"type":"actor-online","payload":{"actor_id":"u3","display_name":"C"}}`)

	if got := s.Directory().Count(); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
	if _, ok := s.Directory().Get("u3"); ok {
		t.Fatalf("actor beyond the limit was admitted")
	}
	// Rejoin of a known actor is never blocked by the limit.
	handle(t, s, `{"type":"actor-online","payload":{"actor_id":"u1","display_name":"A2"}}`)
	if p, _ := s.Directory().Get("u1"); p.DisplayName != "A2" {
		t.Fatalf("DisplayName = %q, want A2", p.DisplayName)
	}
}

func TestMalformedEventDoesNotKillSession(t *testing.T) {
	r := newFakeRenderer()
	s := newSession(r, 0)
	s.SetViewedPath("a.ts")

	if err := s.HandleEvent([]byte(`{"type":"cursor","payload":"not an object"}`)); err == nil {
		t.Fatalf("malformed payload returned nil error")
	}
	if err := s.HandleEvent([]byte(`not json`)); err == nil {
		t.Fatalf("garbage input returned nil error")
	}
	handle(t, s, `{"type":"typing-started","payload":{}}`)

	handle(t, s, `{"type":"actor-online","payload":{"actor_id":"u1","display_name":"Alice"}}`)
	handle(t, s, `{"type":"cursor","payload":{"actor_id":"u1","file_path":"a.ts","position":{"line":0,"column":0}}}`)
	if len(r.decorationsFor("u1")) != 1 {
		t.Fatalf("session stopped applying events after a malformed one")
	}
}
