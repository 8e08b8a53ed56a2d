// Package workspace is the composition root: it bundles the execution
// serializer, the histories, and the driver profile into one
// explicitly constructed context, and opens sessions against driver
// bridges. Tests and embedders create as many isolated workspaces as
// they like; nothing here is a hidden global.
package workspace

import (
	"context"
	"log/slog"

	"github.com/querydeck/dbridge/pkg/bridge"
	"github.com/querydeck/dbridge/pkg/config"
	"github.com/querydeck/dbridge/pkg/conn"
	"github.com/querydeck/dbridge/pkg/execlock"
	"github.com/querydeck/dbridge/pkg/history"
	"github.com/querydeck/dbridge/pkg/metadata"
	"github.com/querydeck/dbridge/pkg/pipeline"
	"github.com/querydeck/dbridge/pkg/source"
)

// Options configures a workspace.
type Options struct {
	Config config.Config
	// Store overrides the history store derived from Config.
	Store  history.Store
	Logger *slog.Logger
}

// Workspace owns the shared state of one client context. All sessions
// opened through a workspace share its single serializer slot, so one
// connection's long query delays another's — the documented behavior
// of the shared execution serializer.
type Workspace struct {
	cfg     config.Config
	log     *slog.Logger
	lock    *execlock.Serializer
	sources *history.Sources
	queries *history.Queries
	profile pipeline.Profile
}

// New builds a workspace and loads the persisted data-source history
// once for the session.
func New(opts Options) (*Workspace, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	store := opts.Store
	if store == nil {
		if opts.Config.HistoryFile != "" {
			store = history.NewFileStore(opts.Config.HistoryFile)
		} else {
			store = history.NewMemoryStore()
		}
	}

	sources := history.NewSources(opts.Config.SourceHistorySize, store, log)
	if err := sources.Load(); err != nil {
		return nil, err
	}

	return &Workspace{
		cfg:     opts.Config,
		log:     log,
		lock:    execlock.New(),
		sources: sources,
		queries: history.NewQueries(opts.Config.QueryHistorySize),
		profile: pipeline.Profile{ResultSentinel: opts.Config.ResultSentinel},
	}, nil
}

// Serializer exposes the shared execution serializer, including its
// ForceReleaseAll escape hatch for operators.
func (w *Workspace) Serializer() *execlock.Serializer { return w.lock }

// Sources exposes the data-source history.
func (w *Workspace) Sources() *history.Sources { return w.sources }

// Queries exposes the query-text history.
func (w *Workspace) Queries() *history.Queries { return w.queries }

// Session is one connected bridge: a connection handle plus the
// metadata service and optional background refresher built on it.
type Session struct {
	ws        *Workspace
	handle    *conn.Handle
	meta      *metadata.Service
	refresher *metadata.Refresher
}

// Connect opens a session over tr: it starts a handle, binds src,
// commits the source to history, and runs the post-connect metadata
// refresh. On a transport failure the handle is finished; on a driver
// or validation failure the caller may retry with a corrected source.
func (w *Workspace) Connect(ctx context.Context, tr bridge.Transport, src source.Source) (*Session, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	// The handle is not handed out on failure, so tear it down here;
	// the caller retries with a corrected source and a fresh transport.
	handle := conn.Start(tr, w.log)
	if _, err := handle.Connect(ctx, src); err != nil {
		_ = handle.Finish()
		return nil, err
	}

	if err := w.sources.Add(src); err != nil {
		w.log.Error("recording data source", "err", err)
	}

	sess := &Session{
		ws:     w,
		handle: handle,
		meta:   metadata.NewService(handle.Client(), w.lock, w.log),
	}

	if _, err := sess.meta.Refresh(ctx); err != nil {
		// The connection is still usable without a catalog; views
		// refresh on the next reload.
		w.log.Error("post-connect metadata refresh", "err", err)
	}

	if w.cfg.RefreshInterval > 0 {
		sess.refresher = metadata.NewRefresher(sess.meta, w.log)
		sess.refresher.Start(w.cfg.RefreshInterval)
	}
	return sess, nil
}

// Handle exposes the session's connection handle.
func (s *Session) Handle() *conn.Handle { return s.handle }

// Metadata exposes the session's metadata service.
func (s *Session) Metadata() *metadata.Service { return s.meta }

// Close stops the background refresher and finishes the connection,
// failing any pending calls.
func (s *Session) Close() error {
	if s.refresher != nil {
		_ = s.refresher.Close()
	}
	return s.handle.Finish()
}
