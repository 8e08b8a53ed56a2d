// Package history keeps the bounded data-source and query histories.
// Both are explicitly constructed, mutex-guarded values meant to be
// dependency-injected; nothing here is process-global.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Entry is one persisted data-source history record. Secrets are
// stripped before an Entry is ever built, so they cannot reach disk.
type Entry struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username,omitempty"`
}

// Store persists data-source history snapshots.
type Store interface {
	// Load returns the stored entries, most recent first, or nil when
	// no snapshot exists yet.
	Load() ([]Entry, error)
	// Save replaces the stored snapshot.
	Save([]Entry) error
}

// FileStore persists history as a UTF-8 YAML file.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the snapshot. A missing file is an empty history, not an
// error.
func (s *FileStore) Load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading history file: %w", err)
	}
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing history file: %w", err)
	}
	return entries, nil
}

// Save writes the snapshot, creating parent directories as needed.
func (s *FileStore) Save(entries []Entry) error {
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating history dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing history file: %w", err)
	}
	return nil
}

// MemoryStore keeps snapshots in memory. Used when no history file is
// configured, and by tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the last saved snapshot.
func (s *MemoryStore) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Save replaces the snapshot.
func (s *MemoryStore) Save(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]Entry, len(entries))
	copy(s.entries, entries)
	return nil
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
