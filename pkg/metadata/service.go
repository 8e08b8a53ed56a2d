// Package metadata drives catalog introspection over the bridge and
// fans refresh notifications out to registered views.
package metadata

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/querydeck/dbridge/pkg/bridge"
	"github.com/querydeck/dbridge/pkg/execlock"
	"github.com/querydeck/dbridge/pkg/rowset"
)

// Table is one user-visible table surviving the catalog filter.
type Table struct {
	Catalog string
	Schema  string
	Name    string
	Type    string
	Remarks string
}

// Snapshot is the product of one successful refresh.
type Snapshot struct {
	Tables []Table
	Types  *rowset.Result
}

// CallbackToken identifies one refresh-callback registration.
type CallbackToken = uuid.UUID

// Service issues the *-info calls for one connection. Introspection
// shares the execution serializer slot with user queries, so a refresh
// never interleaves with a running statement.
type Service struct {
	client *bridge.Client
	lock   *execlock.Serializer
	log    *slog.Logger

	mu        sync.Mutex
	callbacks map[CallbackToken]func(*Snapshot)
	last      *Snapshot
}

// NewService wires a metadata service onto a connection's client.
func NewService(client *bridge.Client, lock *execlock.Serializer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		client:    client,
		lock:      lock,
		log:       log,
		callbacks: make(map[CallbackToken]func(*Snapshot)),
	}
}

// OnRefresh registers fn to run after every successful refresh
// (post-connect and post-reload alike).
func (s *Service) OnRefresh(fn func(*Snapshot)) CallbackToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := uuid.New()
	s.callbacks[t] = fn
	return t
}

// RemoveOnRefresh drops a callback registration.
func (s *Service) RemoveOnRefresh(t CallbackToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.callbacks, t)
}

// Last returns the most recent snapshot, or nil before the first
// refresh.
func (s *Service) Last() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Refresh loads the table catalog and type descriptors, applies the
// table filter, and notifies every registered callback. The whole
// refresh holds the serializer slot.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	if err := s.lock.Acquire(ctx); err != nil {
		return nil, err
	}

	snap, err := s.load(ctx)
	if rerr := s.lock.Release(); rerr != nil {
		s.log.Error("releasing serializer after refresh", "err", rerr)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = snap
	fns := make([]func(*Snapshot), 0, len(s.callbacks))
	for _, fn := range s.callbacks {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
	s.log.Debug("metadata refreshed", "tables", len(snap.Tables))
	return snap, nil
}

func (s *Service) load(ctx context.Context) (*Snapshot, error) {
	raw, err := s.client.CallSync(ctx, bridge.MethodTableInfo, nil, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	res, err := rowset.DecodePair(raw)
	if err != nil {
		return nil, err
	}
	tables, err := FilterTables(res)
	if err != nil {
		return nil, err
	}

	rawTypes, err := s.client.CallSync(ctx, bridge.MethodTypeInfoAll)
	if err != nil {
		return nil, err
	}
	types, err := rowset.DecodePair(rawTypes)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Tables: tables, Types: types}, nil
}

// TableInfo runs a filtered table-info call under the serializer. Nil
// filters mean "no restriction".
func (s *Service) TableInfo(ctx context.Context, catalog, schema, table, tableType *string) (*rowset.Result, error) {
	return s.infoCall(ctx, bridge.MethodTableInfo, deref(catalog), deref(schema), deref(table), deref(tableType))
}

// ColumnInfo runs a column-info call under the serializer.
func (s *Service) ColumnInfo(ctx context.Context, catalog, schema, table, column *string) (*rowset.Result, error) {
	return s.infoCall(ctx, bridge.MethodColumnInfo, deref(catalog), deref(schema), deref(table), deref(column))
}

// PrimaryKeyInfo runs a primary-key-info call under the serializer.
func (s *Service) PrimaryKeyInfo(ctx context.Context, catalog, schema, table *string) (*rowset.Result, error) {
	return s.infoCall(ctx, bridge.MethodPrimaryKeyInfo, deref(catalog), deref(schema), deref(table))
}

// ForeignKeyInfo runs a foreign-key-info call under the serializer.
func (s *Service) ForeignKeyInfo(ctx context.Context, catalog, schema, table *string) (*rowset.Result, error) {
	return s.infoCall(ctx, bridge.MethodForeignKeyInfo, deref(catalog), deref(schema), deref(table))
}

// TypeInfoAll returns the driver's type descriptor table.
func (s *Service) TypeInfoAll(ctx context.Context) (*rowset.Result, error) {
	return s.infoCall(ctx, bridge.MethodTypeInfoAll)
}

func (s *Service) infoCall(ctx context.Context, method bridge.Method, args ...any) (*rowset.Result, error) {
	if err := s.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	raw, err := s.client.CallSync(ctx, method, args...)
	if rerr := s.lock.Release(); rerr != nil {
		s.log.Error("releasing serializer after info call", "err", rerr)
	}
	if err != nil {
		return nil, err
	}
	return rowset.DecodePair(raw)
}

// deref keeps nil pointers as JSON null on the wire.
func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
