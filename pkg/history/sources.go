package history

import (
	"log/slog"
	"sync"

	"github.com/querydeck/dbridge/pkg/source"
)

// DefaultSourceCapacity bounds the data-source history.
const DefaultSourceCapacity = 10

// Sources is the bounded, deduplicated data-source history. Entries
// are kept most recent first and deduplicated by URI: committing a URI
// that is already present neither duplicates nor reorders. Every
// mutation is persisted through the store.
type Sources struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
	store   Store
	log     *slog.Logger
}

// NewSources creates a history with the given capacity (0 means
// DefaultSourceCapacity) backed by store.
func NewSources(capacity int, store Store, log *slog.Logger) *Sources {
	if capacity <= 0 {
		capacity = DefaultSourceCapacity
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sources{cap: capacity, store: store, log: log}
}

// Load reads the persisted snapshot. Called once per session, before
// the first Add.
func (s *Sources) Load() error {
	entries, err := s.store.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entries) > s.cap {
		entries = entries[:s.cap]
	}
	s.entries = entries
	return nil
}

// Add commits a successfully connected source. The secret is stripped;
// a URI already in history is skipped without reordering; otherwise
// the entry is prepended, the oldest entries beyond capacity are
// evicted, and the snapshot is persisted. The lock is held across the
// save so concurrent commits reach the store in commit order and the
// last write on disk matches the in-memory history.
func (s *Sources) Add(src source.Source) error {
	red := src.Redacted()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.URI == red.URI {
			return nil
		}
	}
	s.entries = append([]Entry{{URI: red.URI, Username: red.Username}}, s.entries...)
	if len(s.entries) > s.cap {
		s.entries = s.entries[:s.cap]
	}
	snapshot := make([]Entry, len(s.entries))
	copy(snapshot, s.entries)

	if err := s.store.Save(snapshot); err != nil {
		s.log.Error("persisting data-source history", "err", err)
		return err
	}
	return nil
}

// Entries returns a copy of the history, most recent first.
func (s *Sources) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the current history length.
func (s *Sources) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
