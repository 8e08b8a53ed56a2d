package history

import "sync"

// DefaultQueryCapacity bounds the query-text history.
const DefaultQueryCapacity = 50

// Queries is the bounded query-text history with back/forward
// navigation. Entries are most recent first. The cursor ranges over
// [0, len]: 0 means "current editable draft", i means the i-th stored
// entry. The draft slot snapshots the editor's uncommitted text on the
// first backward move and is restored when the cursor returns to 0.
type Queries struct {
	mu      sync.Mutex
	entries []string
	cap     int

	cursor int
	draft  string
}

// NewQueries creates a query history with the given capacity (0 means
// DefaultQueryCapacity).
func NewQueries(capacity int) *Queries {
	if capacity <= 0 {
		capacity = DefaultQueryCapacity
	}
	return &Queries{cap: capacity}
}

// Record prepends the SQL of a non-errored execution, evicting the
// oldest entry beyond capacity. Recording commits the text, so the
// navigation cursor and draft reset.
func (q *Queries) Record(sql string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append([]string{sql}, q.entries...)
	if len(q.entries) > q.cap {
		q.entries = q.entries[:q.cap]
	}
	q.cursor = 0
	q.draft = ""
}

// Back moves one entry older. current is the editor's text, which is
// snapshotted as the draft only on the first backward move. Returns
// the text to display; moving past the oldest entry is a no-op
// reported by ok=false.
func (q *Queries) Back(current string) (text string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor >= len(q.entries) {
		return "", false
	}
	if q.cursor == 0 {
		q.draft = current
	}
	q.cursor++
	return q.entries[q.cursor-1], true
}

// Forward moves one entry newer, restoring the draft when the cursor
// returns to 0. Moving forward past 0 is a no-op reported by
// ok=false.
func (q *Queries) Forward() (text string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor == 0 {
		return "", false
	}
	q.cursor--
	if q.cursor == 0 {
		return q.draft, true
	}
	return q.entries[q.cursor-1], true
}

// Entries returns a copy of the stored history, most recent first.
func (q *Queries) Entries() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of stored entries.
func (q *Queries) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Cursor returns the navigation cursor position.
func (q *Queries) Cursor() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}
