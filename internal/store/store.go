// Package store implements the persistence surface the group manager
// saves through. The storage format is deliberately opaque to callers;
// FileStore is a plain filesystem implementation rooted at a project
// directory.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rkravets/edsync/internal/config"
)

// File is what a read yields: the content plus the detected language.
type File struct {
	Content  string
	Language string
}

// Store is the narrow persistence contract. Writes are last-write-wins
// at this layer: when two windows both hold unsaved edits to one path,
// the later save overwrites the earlier one, no merge is attempted.
type Store interface {
	ReadFile(path string) (File, error)
	WriteFile(path string, content string) error
}

// ErrOutsideRoot is returned for paths that escape the store root.
var ErrOutsideRoot = errors.New("path outside store root")

// FileStore reads and writes files under a root directory. Paths are
// relative to the root; absolute paths and ".." escapes are rejected.
type FileStore struct {
	root  string
	langs config.Languages
}

func NewFileStore(root string, langs config.Languages) *FileStore {
	return &FileStore{root: root, langs: langs}
}

func (fs *FileStore) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return filepath.Join(fs.root, clean), nil
}

func (fs *FileStore) ReadFile(path string) (File, error) {
	full, err := fs.resolve(path)
	if err != nil {
		return File{}, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return File{}, err
	}
	f := File{Content: string(data)}
	if lang := fs.langs.Match(path); lang != nil {
		f.Language = lang.Name
	}
	return f, nil
}

func (fs *FileStore) WriteFile(path string, content string) error {
	full, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0o644)
}
