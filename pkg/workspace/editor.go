package workspace

import (
	"context"
	"sync"

	"github.com/querydeck/dbridge/pkg/async"
	"github.com/querydeck/dbridge/pkg/conn"
	"github.com/querydeck/dbridge/pkg/pipeline"
)

// Direction selects where history navigation moves.
type Direction int

const (
	// Older moves toward the oldest stored query.
	Older Direction = iota
	// Newer moves back toward the editable draft.
	Newer
)

// Editor is one query-editing consumer context: it holds the editable
// buffer, submits SQL through a statement pipeline, and navigates the
// shared query history. Editors register with the connection's
// consumer set and are pruned once closed.
type Editor struct {
	sess  *Session
	pipe  *pipeline.Pipeline
	token conn.Token

	mu     sync.Mutex
	buffer string
	closed bool
}

// NewEditor creates an editor rendering through r and registers it
// with the session's connection.
func (s *Session) NewEditor(r pipeline.Renderer) *Editor {
	e := &Editor{
		sess: s,
		pipe: pipeline.New(s.handle.Client(), s.ws.lock, s.ws.queries, s.ws.profile, r, s.ws.log),
	}
	e.token = s.handle.Consumers().Register(e)
	return e
}

// Alive reports whether the editor still consumes notifications.
func (e *Editor) Alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// Buffer returns the current editable text.
func (e *Editor) Buffer() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer
}

// SetBuffer replaces the editable text.
func (e *Editor) SetBuffer(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = text
}

// Submit runs sql through the statement pipeline; output arrives via
// the editor's renderer. The buffer tracks the submitted text.
func (e *Editor) Submit(ctx context.Context, sql string) *async.Future[any] {
	e.SetBuffer(sql)
	return e.pipe.Submit(ctx, sql)
}

// Pipeline exposes the editor's statement pipeline, mainly for state
// inspection.
func (e *Editor) Pipeline() *pipeline.Pipeline { return e.pipe }

// NavigateHistory moves the query-history cursor and updates the
// buffer with the recalled text (or the restored draft). Navigating
// past either end is a no-op reported by ok=false.
func (e *Editor) NavigateHistory(dir Direction) (text string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.sess.ws.queries
	switch dir {
	case Older:
		text, ok = q.Back(e.buffer)
	case Newer:
		text, ok = q.Forward()
	}
	if ok {
		e.buffer = text
	}
	return text, ok
}

// Close unregisters the editor from the connection.
func (e *Editor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.sess.handle.Consumers().Unregister(e.token)
}

var _ conn.Consumer = (*Editor)(nil)
