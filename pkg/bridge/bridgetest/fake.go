// Package bridgetest provides a scripted in-memory Transport for
// exercising the call layer and everything built on it without a real
// driver process.
package bridgetest

import (
	"errors"
	"sync"

	"github.com/querydeck/dbridge/pkg/bridge"
)

// Script computes the reply value for one request. Returning a
// *bridge.TransportError simulates a channel fault; any other error
// becomes a driver-level error reply.
type Script func(method bridge.Method, args []any) (any, error)

// Fake is a Transport whose replies come from a Script. Replies are
// produced in request order, matching the bridge contract.
type Fake struct {
	script Script

	queue chan bridge.Request

	mu    sync.Mutex
	calls []bridge.Method

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a fake transport driven by script. A nil script answers
// every request with a nil value.
func New(script Script) *Fake {
	if script == nil {
		script = func(bridge.Method, []any) (any, error) { return nil, nil }
	}
	return &Fake{
		script: script,
		queue:  make(chan bridge.Request, 64),
		closed: make(chan struct{}),
	}
}

// Send queues a request for the reader.
func (f *Fake) Send(req bridge.Request) error {
	select {
	case <-f.closed:
		return &bridge.TransportError{Op: "send", Err: errors.New("fake transport closed")}
	default:
	}
	f.mu.Lock()
	f.calls = append(f.calls, req.Method)
	f.mu.Unlock()
	f.queue <- req
	return nil
}

// Recv runs the script against the next queued request. The script may
// block to simulate a hung driver; closing the fake interrupts it the
// way killing a driver process would.
func (f *Fake) Recv() (bridge.Reply, error) {
	select {
	case req := <-f.queue:
		type outcome struct {
			v   any
			err error
		}
		ch := make(chan outcome, 1)
		go func() {
			v, err := f.script(req.Method, req.Args)
			ch <- outcome{v: v, err: err}
		}()

		select {
		case out := <-ch:
			if out.err != nil {
				var terr *bridge.TransportError
				if errors.As(out.err, &terr) {
					return bridge.Reply{}, terr
				}
				return bridge.Reply{ID: req.ID, Error: out.err.Error()}, nil
			}
			return bridge.Reply{ID: req.ID, Value: out.v}, nil
		case <-f.closed:
			return bridge.Reply{}, &bridge.TransportError{Op: "recv", Err: errors.New("fake transport closed")}
		}
	case <-f.closed:
		return bridge.Reply{}, &bridge.TransportError{Op: "recv", Err: errors.New("fake transport closed")}
	}
}

// Close shuts the fake down; pending and future operations fail.
func (f *Fake) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// Calls returns the methods sent so far, in order.
func (f *Fake) Calls() []bridge.Method {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bridge.Method, len(f.calls))
	copy(out, f.calls)
	return out
}

var _ bridge.Transport = (*Fake)(nil)

// Replies builds a Script that answers by method using the given
// table; methods absent from the table get a nil value.
func Replies(table map[bridge.Method]any) Script {
	return func(method bridge.Method, _ []any) (any, error) {
		if v, ok := table[method]; ok {
			if err, isErr := v.(error); isErr {
				return nil, err
			}
			return v, nil
		}
		return nil, nil
	}
}
