// Package pipeline drives one query's lifecycle over the bridge: the
// ordered prepare, execute, fetch-columns, fetch sequence. The driver
// keeps per-statement state with no client-side identifier, so the
// whole sequence runs under the execution serializer; no other
// pipeline's calls may interleave with it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/querydeck/dbridge/pkg/async"
	"github.com/querydeck/dbridge/pkg/bridge"
	"github.com/querydeck/dbridge/pkg/conn"
	"github.com/querydeck/dbridge/pkg/execlock"
	"github.com/querydeck/dbridge/pkg/history"
	"github.com/querydeck/dbridge/pkg/rowset"
)

// State is the pipeline's position in the statement lifecycle.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateExecuting
	StateResultPending
	StateUpdatePending
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateExecuting:
		return "executing"
	case StateResultPending:
		return "result-pending"
	case StateUpdatePending:
		return "update-pending"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Renderer receives pipeline output. Implementations are views: a
// result grid, a message line, a diagnostic area.
type Renderer interface {
	RenderResult(*rowset.Result)
	RenderMessage(string)
	RenderError(*bridge.DriverError)
}

// Outcome summarizes one completed submission.
type Outcome struct {
	Result   *rowset.Result
	Affected int64
	Message  string
}

// Pipeline executes SQL submissions one at a time under a shared
// serializer slot.
type Pipeline struct {
	client   *bridge.Client
	lock     *execlock.Serializer
	queries  *history.Queries
	profile  Profile
	renderer Renderer
	log      *slog.Logger

	mu    sync.Mutex
	state State
}

// New wires a pipeline. queries may be nil when no history is wanted;
// renderer may be nil to discard output; a nil logger falls back to
// slog.Default().
func New(client *bridge.Client, lock *execlock.Serializer, queries *history.Queries, profile Profile, renderer Renderer, log *slog.Logger) *Pipeline {
	if renderer == nil {
		renderer = discardRenderer{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		client:   client,
		lock:     lock,
		queries:  queries,
		profile:  profile,
		renderer: renderer,
		log:      log,
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Submit runs sql through the statement lifecycle. It acquires the
// serializer, issues prepare then execute, and branches on the execute
// reply: a null/false reply queries status and lands in the error
// sink; a result-set reply fetches column headers then all remaining
// rows; a plain numeric reply renders the affected-row count. Every
// terminal branch releases the serializer exactly once, and the SQL is
// recorded in query history on the non-error branches only.
//
// The returned future resolves with an *Outcome or rejects with the
// first failure.
func (p *Pipeline) Submit(ctx context.Context, sql string) *async.Future[any] {
	acquired := false

	chain := async.NewChain().
		Then(func(_ *async.Scope, _ any) (any, error) {
			if err := p.lock.Acquire(ctx); err != nil {
				return nil, err
			}
			acquired = true
			p.setState(StatePreparing)
			return p.client.Call(bridge.MethodPrepare, sql), nil
		}).
		Then(func(_ *async.Scope, _ any) (any, error) {
			p.setState(StateExecuting)
			return p.client.Call(bridge.MethodExecute), nil
		}).
		Then(func(sc *async.Scope, prev any) (any, error) {
			return p.branch(ctx, prev)
		}).
		Then(func(_ *async.Scope, prev any) (any, error) {
			out, err := p.finish(sql, prev)
			if err != nil {
				return nil, err
			}
			p.release(&acquired)
			p.setState(StateIdle)
			return out, nil
		}).
		Catch(func(err error) {
			var derr *bridge.DriverError
			if errors.As(err, &derr) && p.State() == StateError {
				p.renderer.RenderError(derr)
			} else {
				p.log.Error("statement pipeline failed", "err", err)
			}
			p.release(&acquired)
			p.setState(StateIdle)
		})

	return chain.Run(ctx)
}

// branch inspects the execute reply and steers the state machine.
func (p *Pipeline) branch(ctx context.Context, reply any) (any, error) {
	switch p.profile.classify(reply) {
	case replyError:
		// A null execute reply is a valid answer meaning the driver
		// failed the statement; diagnostics come from status.
		p.setState(StateError)
		derr, err := conn.Status(ctx, p.client)
		if err != nil {
			return nil, err
		}
		return nil, derr

	case replyUpdate:
		p.setState(StateUpdatePending)
		n := int64(reply.(float64))
		return &Outcome{Affected: n, Message: fmt.Sprintf("OK. %d rows are affected.", n)}, nil

	default: // replyResult
		p.setState(StateResultPending)
		sub := async.NewChain().
			Bind("columns", func(_ *async.Scope, _ any) (any, error) {
				return p.client.Call(bridge.MethodFetchColumns), nil
			}).
			Then(func(_ *async.Scope, _ any) (any, error) {
				// fetch with no count argument drains all remaining rows.
				return p.client.Call(bridge.MethodFetch), nil
			}).
			Then(func(sc *async.Scope, prev any) (any, error) {
				rawCols, err := sc.Value("columns")
				if err != nil {
					return nil, err
				}
				cols, err := rowset.DecodeColumns(rawCols)
				if err != nil {
					return nil, err
				}
				rows, err := rowset.DecodeRows(prev)
				if err != nil {
					return nil, err
				}
				return rowset.New(cols, rows), nil
			})
		return sub.Run(ctx), nil
	}
}

// finish renders the terminal branch and records history.
func (p *Pipeline) finish(sql string, prev any) (*Outcome, error) {
	switch v := prev.(type) {
	case *rowset.Result:
		// Zero rows with a result-set reply is an empty grid.
		p.renderer.RenderResult(v)
		p.record(sql)
		return &Outcome{Result: v}, nil
	case *Outcome:
		p.renderer.RenderMessage(v.Message)
		p.record(sql)
		return v, nil
	default:
		return nil, &bridge.ProgrammingError{Op: "pipeline.finish", Reason: fmt.Sprintf("unexpected branch value %T", prev)}
	}
}

func (p *Pipeline) record(sql string) {
	if p.queries != nil {
		p.queries.Record(sql)
	}
}

// release frees the serializer slot at most once per submission.
func (p *Pipeline) release(acquired *bool) {
	if !*acquired {
		return
	}
	*acquired = false
	if err := p.lock.Release(); err != nil {
		p.log.Error("releasing execution serializer", "err", err)
	}
}

type discardRenderer struct{}

func (discardRenderer) RenderResult(*rowset.Result)     {}
func (discardRenderer) RenderMessage(string)            {}
func (discardRenderer) RenderError(*bridge.DriverError) {}
