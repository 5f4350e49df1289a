// Package document holds the canonical in-process state of one open
// file. Exactly one Document exists per path; editor groups share it
// by reference, and a detached window holds only a Snapshot projection
// reconciled over the relay.
package document

import "github.com/rkravets/edsync/internal/position"

// Document is the authoritative copy of an open file's content.
type Document struct {
	Path     string
	Language string
	Pinned   bool
	Cursor   position.Position

	content  string
	baseline string
}

// Snapshot is a value copy of a Document, used as a relay payload and
// as a detached window's projection.
type Snapshot struct {
	Path     string            `json:"path"`
	Language string            `json:"language,omitempty"`
	Content  string            `json:"content"`
	Baseline string            `json:"baseline"`
	Pinned   bool              `json:"pinned,omitempty"`
	Cursor   position.Position `json:"cursor"`
}

// New creates a document whose baseline is the given content, so it
// starts unmodified.
func New(path, content string) *Document {
	return &Document{Path: path, content: content, baseline: content}
}

// FromSnapshot materializes a document from a relay snapshot.
func FromSnapshot(s Snapshot) *Document {
	return &Document{
		Path:     s.Path,
		Language: s.Language,
		Pinned:   s.Pinned,
		Cursor:   s.Cursor,
		content:  s.Content,
		baseline: s.Baseline,
	}
}

func (d *Document) Content() string  { return d.content }
func (d *Document) Baseline() string { return d.baseline }

// Modified is always computed, never cached: content != baseline at
// every observation point.
func (d *Document) Modified() bool { return d.content != d.baseline }

// SetContent replaces the content wholesale and keeps the cursor
// inside the new bounds.
func (d *Document) SetContent(content string) {
	d.content = content
	d.Cursor = position.Clamp(d.Cursor, position.SplitLines(content))
}

// MarkSaved records content as the new persisted baseline.
func (d *Document) MarkSaved() {
	d.baseline = d.content
}

// Adopt replaces the document's full state from a snapshot. Applying
// the same snapshot twice is a no-op, which is what makes relay
// content messages idempotent.
func (d *Document) Adopt(s Snapshot) {
	d.Language = s.Language
	d.Pinned = s.Pinned
	d.content = s.Content
	d.baseline = s.Baseline
	d.Cursor = position.Clamp(s.Cursor, position.SplitLines(s.Content))
}

// Snapshot returns a value copy of the document.
func (d *Document) Snapshot() Snapshot {
	return Snapshot{
		Path:     d.Path,
		Language: d.Language,
		Content:  d.content,
		Baseline: d.baseline,
		Pinned:   d.Pinned,
		Cursor:   d.Cursor,
	}
}

// Lines returns the content as the canonical line view.
func (d *Document) Lines() []string {
	return position.SplitLines(d.content)
}
