// Package session persists the workspace layout between runs: which
// files are open, the pane groups, the active document and per-file
// cursors. State lives under XDG_STATE_HOME as JSON and is written by
// an autosave ticker plus a final save on shutdown.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rkravets/edsync/internal/group"
	"github.com/rkravets/edsync/internal/logger"
	"github.com/rkravets/edsync/internal/position"
)

// FileState stores per-file state worth restoring.
type FileState struct {
	CursorLine int `json:"cursor_line"`
	CursorCol  int `json:"cursor_col"`
}

// GroupState stores one pane's open list and active document.
type GroupState struct {
	Open   []string `json:"open"`
	Active string   `json:"active,omitempty"`
}

// Session is the complete persisted workspace state.
type Session struct {
	Files       map[string]FileState `json:"files"`
	OpenFiles   []string             `json:"open_files,omitempty"`
	ActiveFile  string               `json:"active_file,omitempty"`
	MultiPane   bool                 `json:"multi_pane,omitempty"`
	Groups      []GroupState         `json:"groups,omitempty"`
	ActiveGroup int                  `json:"active_group,omitempty"`
	LastSaved   time.Time            `json:"last_saved"`
}

// Manager handles session persistence.
type Manager struct {
	mu       sync.Mutex
	session  Session
	path     string
	dirty    bool
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewManager loads any existing session and starts the autosave loop.
// An interval of zero disables autosave; Stop still saves.
func NewManager(interval time.Duration) (*Manager, error) {
	path, err := sessionPath()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		session:  Session{Files: make(map[string]FileState)},
		path:     path,
		stopChan: make(chan struct{}),
	}
	m.load()

	if interval > 0 {
		go m.autosaveLoop(interval)
	}
	return m, nil
}

func sessionPath() (string, error) {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		stateDir = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(stateDir, "edsync")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

func (m *Manager) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return // no existing session, start fresh
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		logger.Warn("discarding unreadable session file", "path", m.path, "error", err)
		return
	}
	if session.Files == nil {
		session.Files = make(map[string]FileState)
	}
	m.session = session
}

// Capture records the manager's current layout into the session.
func (m *Manager) Capture(groups *group.Manager) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.OpenFiles = groups.OpenPaths()
	m.session.ActiveFile = groups.ActivePath()
	m.session.MultiPane = groups.MultiPane()
	m.session.Groups = nil
	m.session.ActiveGroup = 0
	paths := m.session.OpenFiles
	if groups.MultiPane() {
		seen := make(map[string]bool)
		paths = nil
		ids := groups.GroupIDs()
		for i, id := range ids {
			open := groups.GroupOpen(id)
			m.session.Groups = append(m.session.Groups, GroupState{
				Open:   open,
				Active: groups.GroupActive(id),
			})
			if id == groups.ActiveGroup() {
				m.session.ActiveGroup = i
			}
			for _, path := range open {
				if !seen[path] {
					seen[path] = true
					paths = append(paths, path)
				}
			}
		}
	}
	for _, path := range paths {
		if snap, ok := groups.SnapshotOf(path); ok {
			m.session.Files[path] = FileState{
				CursorLine: snap.Cursor.Line,
				CursorCol:  snap.Cursor.Col,
			}
		}
	}
	m.dirty = true
}

// Restore replays the persisted layout into a fresh manager. Files
// that can no longer be read are skipped; pane ids are regenerated so
// only layout order is preserved.
func (m *Manager) Restore(groups *group.Manager) {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if s.MultiPane {
		groups.ToggleMultiPane(true)
		var ids []string
		for i, g := range s.Groups {
			var id string
			if i == 0 {
				id = groups.ActiveGroup()
			} else {
				id = groups.AddGroup()
			}
			ids = append(ids, id)
			groups.SetActiveGroup(id)
			for _, path := range g.Open {
				m.reopen(groups, path, s.Files[path])
			}
			if g.Active != "" {
				if _, err := groups.OpenFile(g.Active); err != nil {
					logger.Warn("session restore: activate failed", "path", g.Active, "error", err)
				}
			}
		}
		if s.ActiveGroup >= 0 && s.ActiveGroup < len(ids) {
			groups.SetActiveGroup(ids[s.ActiveGroup])
		}
		return
	}

	for _, path := range s.OpenFiles {
		m.reopen(groups, path, s.Files[path])
	}
	if s.ActiveFile != "" {
		if _, err := groups.OpenFile(s.ActiveFile); err != nil {
			logger.Warn("session restore: activate failed", "path", s.ActiveFile, "error", err)
		}
	}
}

func (m *Manager) reopen(groups *group.Manager, path string, state FileState) {
	if _, err := groups.OpenFile(path); err != nil {
		logger.Warn("session restore: open failed", "path", path, "error", err)
		return
	}
	groups.SetCursor(path, position.Position{Line: state.CursorLine, Col: state.CursorCol})
}

// Save persists the session to disk if anything changed.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}

	m.session.LastSaved = time.Now()
	data, err := json.MarshalIndent(m.session, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return err
	}
	m.dirty = false
	return nil
}

// ForceSave saves even if not dirty.
func (m *Manager) ForceSave() error {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
	return m.Save()
}

// GetFileState returns the saved state for a file.
func (m *Manager) GetFileState(path string) (FileState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.session.Files[path]
	return state, ok
}

// ActiveFile returns the last active file.
func (m *Manager) ActiveFile() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.ActiveFile
}

func (m *Manager) autosaveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Save(); err != nil {
				logger.Warn("session autosave failed", "error", err)
			}
		case <-m.stopChan:
			return
		}
	}
}

// Stop stops the autosave loop and saves final state.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	if err := m.ForceSave(); err != nil {
		logger.Warn("session save on shutdown failed", "error", err)
	}
}
