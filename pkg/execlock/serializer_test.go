package execlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querydeck/dbridge/pkg/bridge"
)

func TestSerializer_AcquireRelease(t *testing.T) {
	s := New()
	require.NoError(t, s.Acquire(context.Background()))
	assert.True(t, s.Held())
	require.NoError(t, s.Release())
	assert.False(t, s.Held())
}

func TestSerializer_ReleaseIdle(t *testing.T) {
	s := New()
	err := s.Release()
	var perr *bridge.ProgrammingError
	assert.ErrorAs(t, err, &perr)
}

func TestSerializer_MutualExclusion(t *testing.T) {
	s := New()
	var active, maxActive int64
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, s.Acquire(context.Background()))
			n := atomic.AddInt64(&active, 1)
			if n > atomic.LoadInt64(&maxActive) {
				atomic.StoreInt64(&maxActive, n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&active, -1)
			require.NoError(t, s.Release())
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), maxActive, "exactly one holder at any instant")
}

func TestSerializer_FIFOOrder(t *testing.T) {
	s := New()
	require.NoError(t, s.Acquire(context.Background()))

	const n = 5
	order := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, s.Acquire(context.Background()))
			order <- i
			require.NoError(t, s.Release())
		}(i)
		// Let each waiter enqueue before the next starts.
		for s.Waiting() != i+1 {
			time.Sleep(time.Millisecond)
		}
	}

	require.NoError(t, s.Release())
	wg.Wait()
	close(order)

	var got []int
	for i := range order {
		got = append(got, i)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got, "waiters wake in FIFO order")
}

func TestSerializer_AcquireCanceled(t *testing.T) {
	s := New()
	require.NoError(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Acquire(ctx) }()

	for s.Waiting() != 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, 0, s.Waiting(), "canceled waiter leaves the queue")

	// The holder is unaffected.
	assert.True(t, s.Held())
	require.NoError(t, s.Release())
}

func TestSerializer_ForceReleaseAll(t *testing.T) {
	s := New()
	// Simulate a hung pipeline that never releases.
	require.NoError(t, s.Acquire(context.Background()))

	proceeded := make(chan struct{})
	go func() {
		require.NoError(t, s.Acquire(context.Background()))
		close(proceeded)
	}()
	for s.Waiting() != 1 {
		time.Sleep(time.Millisecond)
	}

	s.ForceReleaseAll()

	select {
	case <-proceeded:
	case <-time.After(time.Second):
		t.Fatal("waiter did not proceed after ForceReleaseAll")
	}
}

func TestSerializer_ForceReleaseAllIdle(t *testing.T) {
	s := New()
	s.ForceReleaseAll()
	assert.False(t, s.Held())

	// The slot is immediately acquirable again.
	require.NoError(t, s.Acquire(context.Background()))
	require.NoError(t, s.Release())
}
