// Package conn manages the lifecycle of one driver connection: it owns
// the transport session, binds it to at most one data source, and
// tracks the consumer contexts that render its results.
package conn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/querydeck/dbridge/pkg/bridge"
	"github.com/querydeck/dbridge/pkg/rowset"
	"github.com/querydeck/dbridge/pkg/source"
)

// Handle binds one transport session to at most one data source. A
// handle is created by Start, bound by Connect, and destroyed by
// Finish; after Finish a fresh Start+Connect behaves exactly like a
// first session.
type Handle struct {
	client *bridge.Client
	log    *slog.Logger

	mu        sync.Mutex
	src       *source.Source
	binding   bool
	finished  bool
	consumers *Registry
}

// Start creates a handle owning tr. The handle's client takes over the
// transport; callers must not use tr afterwards.
func Start(tr bridge.Transport, log *slog.Logger) *Handle {
	if log == nil {
		log = slog.Default()
	}
	return &Handle{
		client:    bridge.NewClient(tr, log),
		log:       log,
		consumers: NewRegistry(),
	}
}

// Client exposes the handle's call layer for pipelines and metadata
// services built on this connection.
func (h *Handle) Client() *bridge.Client {
	return h.client
}

// Consumers exposes the handle's consumer registry.
func (h *Handle) Consumers() *Registry {
	return h.consumers
}

// Connect validates src, issues the connect call, and on success binds
// src to the handle. Binding twice is a ProgrammingError: a handle
// carries at most one data source for its whole life. Returns the
// driver version string reported by the bridge.
func (h *Handle) Connect(ctx context.Context, src source.Source) (string, error) {
	if err := src.Validate(); err != nil {
		return "", err
	}

	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		return "", &bridge.ProgrammingError{Op: "conn.Connect", Reason: "handle already finished"}
	}
	if h.src != nil || h.binding {
		h.mu.Unlock()
		return "", &bridge.ProgrammingError{Op: "conn.Connect", Reason: "data source already bound to this connection"}
	}
	h.binding = true
	h.mu.Unlock()

	v, err := h.client.CallSync(ctx, bridge.MethodConnect, src.URI, src.Username, src.Secret)

	h.mu.Lock()
	h.binding = false
	if err != nil {
		h.mu.Unlock()
		return "", fmt.Errorf("connecting to %s: %w", src.Redacted(), err)
	}
	bound := src
	h.src = &bound
	h.mu.Unlock()

	version, _ := v.(string)
	h.log.Info("connected", "source", src.Redacted().String(), "driver_version", version)
	return version, nil
}

// Source returns the bound data source, if any.
func (h *Handle) Source() (source.Source, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.src == nil {
		return source.Source{}, false
	}
	return *h.src, true
}

// Do runs a statement outside the prepare/execute lifecycle and
// returns its affected-row count.
func (h *Handle) Do(ctx context.Context, sql string, params ...any) (int64, error) {
	args := append([]any{sql}, params...)
	v, err := h.client.CallSync(ctx, bridge.MethodDo, args...)
	if err != nil {
		return 0, err
	}
	n, ok := v.(float64)
	if !ok {
		return 0, &bridge.TransportError{Op: "do", Err: fmt.Errorf("expected affected-row count, got %T", v)}
	}
	return int64(n), nil
}

// SelectAll runs a query in one round trip, returning the full
// (header, rows) result.
func (h *Handle) SelectAll(ctx context.Context, sql string, params ...any) (*rowset.Result, error) {
	args := append([]any{sql}, params...)
	v, err := h.client.CallSync(ctx, bridge.MethodSelectAll, args...)
	if err != nil {
		return nil, err
	}
	return rowset.DecodePair(v)
}

// AutoCommit toggles the driver's auto-commit mode.
func (h *Handle) AutoCommit(ctx context.Context, on bool) error {
	_, err := h.client.CallSync(ctx, bridge.MethodAutoCommit, on)
	return err
}

// Commit commits the current transaction.
func (h *Handle) Commit(ctx context.Context) error {
	_, err := h.client.CallSync(ctx, bridge.MethodCommit)
	return err
}

// Rollback rolls back the current transaction.
func (h *Handle) Rollback(ctx context.Context) error {
	_, err := h.client.CallSync(ctx, bridge.MethodRollback)
	return err
}

// Status runs the synchronous diagnostic query and decodes its
// (errorCode, errorString, errorState) reply into a DriverError.
func (h *Handle) Status(ctx context.Context) (*bridge.DriverError, error) {
	return Status(ctx, h.client)
}

// Finish terminates the transport, failing every pending call with a
// TransportError, and drops all consumer registrations. Safe to call
// more than once.
func (h *Handle) Finish() error {
	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		return nil
	}
	h.finished = true
	h.mu.Unlock()

	h.consumers.Clear()
	return h.client.Close()
}

// Finished reports whether Finish has run.
func (h *Handle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// Status issues the status call on any client and decodes the reply.
// The reply is a (code, message, state) triple.
func Status(ctx context.Context, c *bridge.Client) (*bridge.DriverError, error) {
	v, err := c.CallSync(ctx, bridge.MethodStatus)
	if err != nil {
		return nil, err
	}
	triple, ok := v.([]any)
	if !ok || len(triple) != 3 {
		return nil, &bridge.TransportError{Op: "status", Err: fmt.Errorf("expected (code, message, state) triple, got %T", v)}
	}
	derr := &bridge.DriverError{}
	if code, ok := triple[0].(float64); ok {
		derr.Code = int64(code)
	}
	derr.Message, _ = triple[1].(string)
	derr.State, _ = triple[2].(string)
	return derr, nil
}
