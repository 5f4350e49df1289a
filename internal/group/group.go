// Package group partitions open documents across editor panes and
// owns the canonical Document per path. Every mutation of document
// state from panel UI goes through the Manager; nothing else touches
// Document fields directly.
//
// Operations are synchronous, pure state transitions. Referencing a
// group or path that does not exist is a programmer error and is
// handled as a logged no-op so the editing session stays alive.
package group

import (
	"fmt"
	"sync"

	"github.com/rkravets/edsync/internal/document"
	"github.com/rkravets/edsync/internal/logger"
	"github.com/rkravets/edsync/internal/position"
	"github.com/rkravets/edsync/internal/store"
)

type pane struct {
	id     string
	open   []string // open order, oldest first
	active string
}

// Manager owns the set of open documents and their pane layout. It
// has two layouts: a flat list (single pane) and multi-pane groups;
// ToggleMultiPane converts between them without touching document
// content, so unsaved edits survive layout changes.
type Manager struct {
	mu    sync.Mutex
	store store.Store

	// canonical document per path, shared by reference across panes
	docs map[string]*document.Document

	multiPane   bool
	flat        []string
	flatActive  string
	panes       []*pane
	activePane  string
	paneCounter int
}

func NewManager(st store.Store) *Manager {
	return &Manager{
		store: st,
		docs:  make(map[string]*document.Document),
	}
}

// OpenFile reads path through the store, registers the canonical
// document and shows it in the active surface. Reopening an already
// open path just activates it; the canonical content is never reread
// over unsaved edits.
func (m *Manager) OpenFile(path string) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[path]
	if !ok {
		f, err := m.store.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		doc = document.New(path, f.Content)
		doc.Language = f.Language
		m.docs[path] = doc
	}
	m.showLocked(path)
	return doc, nil
}

// Open registers an existing document (e.g. one adopted from a
// detached window) and shows it. If a canonical document for the path
// already exists it stays canonical and the argument is ignored.
func (m *Manager) Open(doc *document.Document) *document.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.docs[doc.Path]; ok {
		m.showLocked(doc.Path)
		return existing
	}
	m.docs[doc.Path] = doc
	m.showLocked(doc.Path)
	return doc
}

// showLocked adds path to the active surface and makes it active.
func (m *Manager) showLocked(path string) {
	if m.multiPane {
		p := m.paneLocked(m.activePane)
		if p == nil {
			// No panes yet; seed one.
			p = m.addPaneLocked()
			m.activePane = p.id
		}
		m.openInPaneLocked(p, path)
		return
	}
	if !contains(m.flat, path) {
		m.flat = append(m.flat, path)
	}
	m.flatActive = path
}

// CloseFile removes path from the active surface. The canonical
// document is kept: modified-state tracking is independent of
// visibility.
func (m *Manager) CloseFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.multiPane {
		m.closeInPaneLocked(m.activePane, path)
		return
	}
	i := index(m.flat, path)
	if i < 0 {
		logger.Warn("close of file not open", "path", path)
		return
	}
	m.flat = append(m.flat[:i], m.flat[i+1:]...)
	if m.flatActive == path {
		m.flatActive = last(m.flat)
	}
}

// UpdateContent replaces a document's content. Unknown path is a
// logged no-op.
func (m *Manager) UpdateContent(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		logger.Warn("update of unknown document", "path", path)
		return
	}
	doc.SetContent(content)
}

// Save persists a document through the store and moves its baseline.
// Last write wins at the store; no merge is attempted.
func (m *Manager) Save(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return fmt.Errorf("save of unknown document: %s", path)
	}
	if err := m.store.WriteFile(path, doc.Content()); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	doc.MarkSaved()
	return nil
}

// Document returns the canonical document for path. The pointer is
// shared; goroutines that race with UpdateContent or AdoptSnapshot
// must use the copying accessors below instead of reading through it.
func (m *Manager) Document(path string) (*document.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	return doc, ok
}

// ContentOf returns a copy of path's canonical content.
func (m *Manager) ContentOf(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return "", false
	}
	return doc.Content(), true
}

// SnapshotOf returns a copy of path's full document state.
func (m *Manager) SnapshotOf(path string) (document.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return document.Snapshot{}, false
	}
	return doc.Snapshot(), true
}

// LinesOf returns path's canonical content as lines, nil when the
// document is not open.
func (m *Manager) LinesOf(path string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return nil
	}
	return doc.Lines()
}

// SetCursor moves a document's cursor, clamped to its content.
// Unknown path is a logged no-op.
func (m *Manager) SetCursor(path string, pos position.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		logger.Warn("cursor move on unknown document", "path", path)
		return
	}
	doc.Cursor = position.Clamp(pos, doc.Lines())
}

// AdoptSnapshot adopts a snapshot as the canonical state for its path
// and shows the document. Used when a detached window hands authority
// back.
func (m *Manager) AdoptSnapshot(s document.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[s.Path]; ok {
		doc.Adopt(s)
	} else {
		m.docs[s.Path] = document.FromSnapshot(s)
	}
	m.showLocked(s.Path)
}

// ActivePath returns the active document path of the active surface,
// empty when nothing is open.
func (m *Manager) ActivePath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.multiPane {
		if p := m.paneLocked(m.activePane); p != nil {
			return p.active
		}
		return ""
	}
	return m.flatActive
}

// OpenPaths returns the open list of the active surface in open order.
func (m *Manager) OpenPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.multiPane {
		if p := m.paneLocked(m.activePane); p != nil {
			return append([]string(nil), p.open...)
		}
		return nil
	}
	return append([]string(nil), m.flat...)
}

// MultiPane reports whether the layout is split into groups.
func (m *Manager) MultiPane() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.multiPane
}

// AddGroup creates a new empty pane and returns its id. Only valid in
// multi-pane mode; otherwise a logged no-op returning "".
func (m *Manager) AddGroup() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.multiPane {
		logger.Warn("add group outside multi-pane mode")
		return ""
	}
	return m.addPaneLocked().id
}

// GroupIDs returns pane ids in layout order.
func (m *Manager) GroupIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.panes))
	for i, p := range m.panes {
		ids[i] = p.id
	}
	return ids
}

// GroupOpen returns a pane's open list in open order.
func (m *Manager) GroupOpen(groupID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.paneLocked(groupID); p != nil {
		return append([]string(nil), p.open...)
	}
	return nil
}

// GroupActive returns a pane's active path.
func (m *Manager) GroupActive(groupID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.paneLocked(groupID); p != nil {
		return p.active
	}
	return ""
}

// ActiveGroup returns the active pane id.
func (m *Manager) ActiveGroup() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activePane
}

// SetActiveGroup switches the active pane. Unknown id is a logged
// no-op.
func (m *Manager) SetActiveGroup(groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paneLocked(groupID) == nil {
		logger.Warn("activate unknown group", "group", groupID)
		return
	}
	m.activePane = groupID
}

// ContainingGroups returns the panes currently showing path. A path
// may legitimately appear in several panes at once; they all share the
// one canonical document.
func (m *Manager) ContainingGroups(path string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, p := range m.panes {
		if contains(p.open, path) {
			ids = append(ids, p.id)
		}
	}
	return ids
}

// OpenInGroup shows an already-registered document in a pane and makes
// it active there. The document may be open in other panes too.
func (m *Manager) OpenInGroup(groupID, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[path]; !ok {
		logger.Warn("open of unknown document in group", "group", groupID, "path", path)
		return
	}
	p := m.paneLocked(groupID)
	if p == nil {
		logger.Warn("open in unknown group", "group", groupID, "path", path)
		return
	}
	m.openInPaneLocked(p, path)
}

// CloseInGroup removes path from one pane only. If it was the pane's
// active document, the most recently opened remaining one takes over,
// or the pane goes empty.
func (m *Manager) CloseInGroup(groupID, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeInPaneLocked(groupID, path)
}

// MoveFile moves path from one pane to another and activates it in the
// target. The whole transition is validated before any mutation, so an
// invalid call leaves the document exactly where it was: present in
// neither zero nor two panes.
func (m *Manager) MoveFile(fromGroup, toGroup, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.paneLocked(fromGroup)
	dst := m.paneLocked(toGroup)
	if src == nil || dst == nil {
		logger.Warn("move between unknown groups", "from", fromGroup, "to", toGroup, "path", path)
		return
	}
	i := index(src.open, path)
	if i < 0 {
		logger.Warn("move of file not in source group", "from", fromGroup, "path", path)
		return
	}

	src.open = append(src.open[:i], src.open[i+1:]...)
	if src.active == path {
		src.active = last(src.open)
	}
	m.openInPaneLocked(dst, path)
}

// ToggleMultiPane switches between the flat layout and pane groups.
// Entering multi-pane seeds one pane from the flat list; leaving
// flattens all panes back into one list. Document content is untouched
// either way.
func (m *Manager) ToggleMultiPane(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled == m.multiPane {
		return
	}
	if enabled {
		m.multiPane = true
		p := m.addPaneLocked()
		p.open = append([]string(nil), m.flat...)
		p.active = m.flatActive
		m.activePane = p.id
		m.flat = nil
		m.flatActive = ""
		return
	}

	// Flatten: union of the panes' open lists in layout order, the
	// active pane's active document wins.
	seen := make(map[string]bool)
	var flat []string
	for _, p := range m.panes {
		for _, path := range p.open {
			if !seen[path] {
				seen[path] = true
				flat = append(flat, path)
			}
		}
	}
	active := ""
	if p := m.paneLocked(m.activePane); p != nil {
		active = p.active
	}
	if active == "" {
		active = last(flat)
	}
	m.multiPane = false
	m.flat = flat
	m.flatActive = active
	m.panes = nil
	m.activePane = ""
}

func (m *Manager) paneLocked(id string) *pane {
	for _, p := range m.panes {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (m *Manager) addPaneLocked() *pane {
	m.paneCounter++
	p := &pane{id: fmt.Sprintf("g%d", m.paneCounter)}
	m.panes = append(m.panes, p)
	return p
}

func (m *Manager) openInPaneLocked(p *pane, path string) {
	if i := index(p.open, path); i >= 0 {
		// Re-opening bumps the entry to most recent.
		p.open = append(p.open[:i], p.open[i+1:]...)
	}
	p.open = append(p.open, path)
	p.active = path
	m.activePane = p.id
}

func (m *Manager) closeInPaneLocked(groupID, path string) {
	p := m.paneLocked(groupID)
	if p == nil {
		logger.Warn("close in unknown group", "group", groupID, "path", path)
		return
	}
	i := index(p.open, path)
	if i < 0 {
		logger.Warn("close of file not in group", "group", groupID, "path", path)
		return
	}
	p.open = append(p.open[:i], p.open[i+1:]...)
	if p.active == path {
		p.active = last(p.open)
	}
}

func contains(s []string, v string) bool { return index(s, v) >= 0 }

func index(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func last(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}
