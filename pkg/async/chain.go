package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownBinding is returned by Scope.Value for a name no earlier
// step bound.
var ErrUnknownBinding = errors.New("unknown chain binding")

// Scope carries named intermediate bindings through a chain. Bindings
// set by Bind steps are visible to every later step of the same run.
type Scope struct {
	mu   sync.Mutex
	vals map[string]any
}

// Set binds name to v for later steps.
func (s *Scope) Set(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vals == nil {
		s.vals = make(map[string]any)
	}
	s.vals[name] = v
}

// Value returns the binding for name, or ErrUnknownBinding.
func (s *Scope) Value(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vals[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBinding, name)
	}
	return v, nil
}

// Step transforms the previous step's resolved value into the next.
// Returning a *Future[any] makes the chain await it before the next
// step; any other value passes through directly.
type Step func(sc *Scope, prev any) (any, error)

type chainStep struct {
	name string
	fn   Step
}

// Chain is an ordered sequence of steps with a single terminal error
// handler. Build with Then/Bind/Catch, then call Run once.
type Chain struct {
	steps []chainStep
	catch func(error)
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Then appends a step.
func (c *Chain) Then(fn Step) *Chain {
	c.steps = append(c.steps, chainStep{fn: fn})
	return c
}

// Bind appends a step whose resolved value is also stored in the scope
// under name.
func (c *Chain) Bind(name string, fn Step) *Chain {
	c.steps = append(c.steps, chainStep{name: name, fn: fn})
	return c
}

// Catch sets the chain's single error sink. It receives the first
// failure from any step; no step runs after a failure. Calling Catch
// again replaces the handler.
func (c *Chain) Catch(fn func(error)) *Chain {
	c.catch = fn
	return c
}

// Run starts the chain with a nil seed. See RunWith.
func (c *Chain) Run(ctx context.Context) *Future[any] {
	return c.RunWith(ctx, nil)
}

// RunWith starts the chain in its own goroutine, threading seed into
// the first step. A *Future[any] seed (for example another chain's Run
// result) is awaited first, so chains compose end to end. The returned
// future resolves with the last step's value or rejects with the first
// failure after the Catch handler has run.
func (c *Chain) RunWith(ctx context.Context, seed any) *Future[any] {
	out := NewFuture[any]()
	go func() {
		sc := &Scope{}
		prev, err := resolveValue(ctx, seed)
		if err != nil {
			c.fail(out, err)
			return
		}
		for _, st := range c.steps {
			var next any
			next, err = st.fn(sc, prev)
			if err == nil {
				next, err = resolveValue(ctx, next)
			}
			if err != nil {
				c.fail(out, err)
				return
			}
			if st.name != "" {
				sc.Set(st.name, next)
			}
			prev = next
		}
		out.Resolve(prev)
	}()
	return out
}

func (c *Chain) fail(out *Future[any], err error) {
	if c.catch != nil {
		c.catch(err)
	}
	out.Reject(err)
}

// resolveValue awaits v when it is a future, otherwise returns it
// unchanged.
func resolveValue(ctx context.Context, v any) (any, error) {
	if f, ok := v.(*Future[any]); ok {
		return f.Await(ctx)
	}
	return v, nil
}
