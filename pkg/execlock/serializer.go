// Package execlock provides the execution serializer: a capacity-one
// counting lock that keeps exactly one statement pipeline on the wire
// at a time. Both user-issued queries and background metadata refreshes
// share one slot, waking in strict FIFO order.
//
// Instances are constructed explicitly and passed to whatever needs
// them; there is no package-level singleton.
package execlock

import (
	"context"
	"sync"

	"github.com/querydeck/dbridge/pkg/bridge"
)

// Serializer is the single-slot mutual exclusion guarding statement
// pipelines.
type Serializer struct {
	mu      sync.Mutex
	holders int
	waiters []chan struct{}
}

// New creates an idle serializer.
func New() *Serializer {
	return &Serializer{}
}

// Acquire takes the slot, suspending the calling goroutine in a FIFO
// queue until the current holder releases. Canceling ctx abandons only
// this waiter's place in the queue; a pipeline already on the wire is
// unaffected. No timeout is imposed here: a hung driver stalls the
// slot until ForceReleaseAll.
func (s *Serializer) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.holders == 0 && len(s.waiters) == 0 {
		s.holders = 1
		s.mu.Unlock()
		return nil
	}
	wake := make(chan struct{})
	s.waiters = append(s.waiters, wake)
	s.mu.Unlock()

	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == wake {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// Lost the race: we were woken while canceling and now hold
		// the slot. Hand it on.
		s.Release()
		return ctx.Err()
	}
}

// Release frees the slot and wakes the next waiter in FIFO order.
// Releasing an idle serializer reports a ProgrammingError.
func (s *Serializer) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holders == 0 {
		return &bridge.ProgrammingError{Op: "execlock.Release", Reason: "serializer is not held"}
	}
	s.holders--
	if s.holders == 0 && len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.holders = 1
		close(next)
	}
	return nil
}

// ForceReleaseAll is a manual recovery escape hatch for a hung
// pipeline: it discards the current holder's claim and wakes every
// waiter at once. The woken pipelines will interleave over shared
// driver statement state, so this risks corrupted results and lost
// work. Not for normal use.
func (s *Serializer) ForceReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders = len(s.waiters)
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

// Held reports whether any pipeline currently holds the slot.
func (s *Serializer) Held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holders > 0
}

// Waiting reports the number of queued pipelines.
func (s *Serializer) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}
