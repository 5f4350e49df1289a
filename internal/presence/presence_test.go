package presence

import (
	"testing"
	"time"
)

var testPalette = []string{"#111111", "#222222", "#333333"}

func newTestDirectory() *Directory {
	return NewDirectory(testPalette)
}

func TestUpsertFullReplace(t *testing.T) {
	d := newTestDirectory()
	d.Upsert(Presence{ActorID: "a1", DisplayName: "Ann", DocumentPath: "x.ts"})
	d.Upsert(Presence{ActorID: "a1", DisplayName: "Ann"})

	p, ok := d.Get("a1")
	if !ok {
		t.Fatalf("actor missing after upsert")
	}
	if p.DocumentPath != "" {
		t.Fatalf("DocumentPath = %q, want cleared by full replace", p.DocumentPath)
	}
	if p.Status != StatusOnline {
		t.Fatalf("Status = %q, want default online", p.Status)
	}
}

func TestColorStableAcrossRejoin(t *testing.T) {
	d := newTestDirectory()
	d.Upsert(Presence{ActorID: "a1", DisplayName: "Ann"})
	first, _ := d.Get("a1")
	d.Remove("a1")
	d.Upsert(Presence{ActorID: "a1", DisplayName: "Ann"})
	second, _ := d.Get("a1")
	if first.Color == "" || first.Color != second.Color {
		t.Fatalf("color %q -> %q, want stable non-empty", first.Color, second.Color)
	}
}

func TestColorDeterministic(t *testing.T) {
	a := NewDirectory(testPalette)
	b := NewDirectory(testPalette)
	if a.ColorFor("someone") != b.ColorFor("someone") {
		t.Fatalf("ColorFor differs between directories with same palette")
	}
}

func TestForDocument(t *testing.T) {
	d := newTestDirectory()
	d.Upsert(Presence{ActorID: "b", DocumentPath: "x.ts"})
	d.Upsert(Presence{ActorID: "a", DocumentPath: "x.ts"})
	d.Upsert(Presence{ActorID: "c", DocumentPath: "y.ts"})

	got := d.ForDocument("x.ts")
	if len(got) != 2 {
		t.Fatalf("ForDocument len = %d, want 2", len(got))
	}
	if got[0].ActorID != "a" || got[1].ActorID != "b" {
		t.Fatalf("ForDocument order = %s,%s, want a,b", got[0].ActorID, got[1].ActorID)
	}
}

func TestListOnlineSorted(t *testing.T) {
	d := newTestDirectory()
	for _, id := range []string{"z", "m", "a"} {
		d.Upsert(Presence{ActorID: id})
	}
	got := d.ListOnline()
	if len(got) != 3 || got[0].ActorID != "a" || got[2].ActorID != "z" {
		t.Fatalf("ListOnline not sorted: %+v", got)
	}
}

func TestExpireBefore(t *testing.T) {
	d := newTestDirectory()
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	d.Upsert(Presence{ActorID: "old"})
	clock = clock.Add(time.Minute)
	d.Upsert(Presence{ActorID: "fresh"})

	expired := d.ExpireBefore(clock.Add(-30 * time.Second))
	if len(expired) != 1 || expired[0] != "old" {
		t.Fatalf("expired = %v, want [old]", expired)
	}
	if _, ok := d.Get("old"); ok {
		t.Fatalf("expired actor still present")
	}
	if _, ok := d.Get("fresh"); !ok {
		t.Fatalf("fresh actor removed")
	}
}

func TestTouchRefreshesOnly(t *testing.T) {
	d := newTestDirectory()
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	d.Upsert(Presence{ActorID: "a", DocumentPath: "x.ts"})
	clock = clock.Add(time.Minute)
	d.Touch("a")

	p, _ := d.Get("a")
	if !p.LastSeen.Equal(clock) {
		t.Fatalf("LastSeen = %v, want %v", p.LastSeen, clock)
	}
	if p.DocumentPath != "x.ts" {
		t.Fatalf("Touch changed DocumentPath")
	}
}

func TestEmptyActorIDIgnored(t *testing.T) {
	d := newTestDirectory()
	d.Upsert(Presence{DisplayName: "ghost"})
	if d.Count() != 0 {
		t.Fatalf("Count = %d, want 0", d.Count())
	}
}
