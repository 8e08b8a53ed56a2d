// Package async provides one-shot futures and an ordered step chain for
// composing asynchronous bridge calls with plain transforms.
//
// A Chain runs its steps strictly left to right: no step begins before
// the previous step's value resolves, and the first failure skips every
// remaining step and lands in the chain's single Catch handler. Chains
// compose; the future returned by Run can seed another chain.
package async

import (
	"context"
	"sync"
)

// Future is a one-shot container for a value or an error produced by an
// asynchronous operation. The zero value is not usable; construct with
// NewFuture, Resolved, or Failed.
type Future[T any] struct {
	mu   sync.Mutex
	done chan struct{}
	val  T
	err  error
}

// NewFuture creates an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved creates a future already resolved with v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

// Failed creates a future already rejected with err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Reject(err)
	return f
}

// Resolve completes the future with a value. Completing an already
// completed future is a no-op.
func (f *Future[T]) Resolve(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return
	default:
	}
	f.val = v
	close(f.done)
}

// Reject completes the future with an error. Completing an already
// completed future is a no-op.
func (f *Future[T]) Reject(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return
	default:
	}
	f.err = err
	close(f.done)
}

// Done returns a channel closed when the future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future completes or ctx is canceled.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryResult returns the value and error without blocking. The boolean
// reports whether the future has completed.
func (f *Future[T]) TryResult() (T, error, bool) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}
