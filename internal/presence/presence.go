// Package presence tracks which remote actors are online and which
// document each one is viewing. The Directory is a pure reducer over
// externally delivered events; it opens no connections of its own and
// is passed explicitly to its consumers rather than living in a
// package-level singleton.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Status is an actor's reported availability.
type Status string

const (
	StatusOnline Status = "online"
	StatusAway   Status = "away"
	StatusBusy   Status = "busy"
)

// Presence is the complete state of one remote actor. Upsert replaces
// the whole record, so callers always send every field; partial
// updates would race when two deltas arrive out of order.
type Presence struct {
	ActorID     string
	DisplayName string
	Color       string
	// DocumentPath is the document the actor currently views, empty
	// when the actor has nothing open.
	DocumentPath string
	Status       Status
	LastSeen     time.Time
}

// Directory tracks online actors. Safe for concurrent use; transport
// goroutines deliver events while the render loop reads.
type Directory struct {
	mu      sync.RWMutex
	actors  map[string]Presence
	palette []string
	now     func() time.Time
}

// NewDirectory creates an empty directory using the given cursor color
// palette. An empty palette falls back to a single neutral color so
// ColorFor never returns "".
func NewDirectory(palette []string) *Directory {
	if len(palette) == 0 {
		palette = []string{"#808080"}
	}
	return &Directory{
		actors:  make(map[string]Presence),
		palette: append([]string(nil), palette...),
		now:     time.Now,
	}
}

// Upsert replaces the actor's record wholesale, keyed by ActorID.
// The color and LastSeen are assigned here so callers cannot desync
// them: color is a deterministic function of the actor id and survives
// disconnect/rejoin.
func (d *Directory) Upsert(p Presence) {
	if p.ActorID == "" {
		return
	}
	if p.Status == "" {
		p.Status = StatusOnline
	}
	p.Color = d.ColorFor(p.ActorID)
	p.LastSeen = d.now()
	d.mu.Lock()
	d.actors[p.ActorID] = p
	d.mu.Unlock()
}

// Touch refreshes LastSeen without altering the rest of the record.
// Used for heartbeats that carry no state change.
func (d *Directory) Touch(actorID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.actors[actorID]; ok {
		p.LastSeen = d.now()
		d.actors[actorID] = p
	}
}

// Remove drops an actor on disconnect.
func (d *Directory) Remove(actorID string) {
	d.mu.Lock()
	delete(d.actors, actorID)
	d.mu.Unlock()
}

// ExpireBefore removes actors whose last heartbeat precedes cutoff and
// returns their ids so callers can retire markers.
func (d *Directory) ExpireBefore(cutoff time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var expired []string
	for id, p := range d.actors {
		if p.LastSeen.Before(cutoff) {
			expired = append(expired, id)
			delete(d.actors, id)
		}
	}
	sort.Strings(expired)
	return expired
}

// Get returns one actor's presence.
func (d *Directory) Get(actorID string) (Presence, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.actors[actorID]
	return p, ok
}

// ListOnline returns all known actors sorted by id so render order is
// stable across calls.
func (d *Directory) ListOnline() []Presence {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Presence, 0, len(d.actors))
	for _, p := range d.actors {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out
}

// ForDocument returns the actors currently viewing path.
func (d *Directory) ForDocument(path string) []Presence {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Presence
	for _, p := range d.actors {
		if p.DocumentPath == path {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out
}

// Count returns the number of online actors.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.actors)
}

// ColorFor hashes the actor id into the palette. Stable for the life
// of the session, and across sessions for the same palette.
func (d *Directory) ColorFor(actorID string) string {
	var sum uint32
	for _, b := range []byte(actorID) {
		sum = sum*31 + uint32(b)
	}
	return d.palette[int(sum)%len(d.palette)]
}
