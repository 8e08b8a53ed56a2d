package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/querydeck/dbridge/pkg/async"
)

// ErrClientClosed is wrapped into the TransportError that fails calls
// issued against a closed client.
var ErrClientClosed = errors.New("client closed")

// Client issues the fixed method vocabulary over one Transport, which
// it owns exclusively. Replies are matched to calls in FIFO order; the
// request id is carried on the wire and verified, and a mismatched id
// is treated as a protocol violation fatal to the connection.
type Client struct {
	tr  Transport
	log *slog.Logger

	// sendMu is held across the pending append and the transport
	// write so queue order and wire order stay identical under
	// concurrent callers.
	sendMu sync.Mutex

	mu      sync.Mutex
	pending []pendingCall
	closed  bool

	done chan struct{}
}

type pendingCall struct {
	id     string
	method Method
	fut    *async.Future[any]
}

// NewClient starts the reply reader and returns a client ready for
// calls. A nil logger falls back to slog.Default().
func NewClient(tr Transport, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{tr: tr, log: log, done: make(chan struct{})}
	go c.readLoop()
	return c
}

// Call issues one asynchronous RPC round trip. The returned future
// resolves with the decoded reply value, or rejects with a
// TransportError (channel failure) or DriverError (error reply).
func (c *Client) Call(method Method, args ...any) *async.Future[any] {
	fut := async.NewFuture[any]()
	id := uuid.NewString()
	if args == nil {
		args = []any{}
	}

	c.sendMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.sendMu.Unlock()
		fut.Reject(&TransportError{Op: string(method), Err: ErrClientClosed})
		return fut
	}
	c.pending = append(c.pending, pendingCall{id: id, method: method, fut: fut})
	c.mu.Unlock()

	c.log.Debug("bridge call", "method", method, "id", id)

	if err := c.tr.Send(Request{ID: id, Method: method, Args: args}); err != nil {
		// The request never reached the wire; drop it from the queue
		// so later replies stay aligned.
		c.dropPending(id)
		c.sendMu.Unlock()
		fut.Reject(err)
		return fut
	}
	c.sendMu.Unlock()
	return fut
}

// CallSync issues a call and blocks until its reply arrives or ctx is
// canceled. Used for status and other diagnostic queries where the
// caller needs the answer in-line.
func (c *Client) CallSync(ctx context.Context, method Method, args ...any) (any, error) {
	return c.Call(method, args...).Await(ctx)
}

// Close terminates the transport and fails every pending call with a
// TransportError. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()

	err := c.tr.Close()
	<-c.done
	if already {
		return nil
	}
	return err
}

// Done returns a channel closed once the reader has shut down and all
// pending calls have been failed or answered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		rep, err := c.tr.Recv()
		if err != nil {
			c.failAll(err)
			return
		}

		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			c.abort(&TransportError{Op: "recv", Err: errors.New("unsolicited reply " + rep.ID)})
			return
		}
		call := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		if rep.ID != call.id {
			call.fut.Reject(&TransportError{Op: string(call.method),
				Err: errors.New("reply id mismatch: got " + rep.ID + " want " + call.id)})
			c.abort(&TransportError{Op: "recv", Err: errors.New("reply order violated")})
			return
		}

		if rep.Error != "" {
			call.fut.Reject(&DriverError{Message: rep.Error})
			continue
		}
		call.fut.Resolve(rep.Value)
	}
}

// abort closes the transport after a protocol violation and fails
// whatever is still pending.
func (c *Client) abort(err error) {
	c.log.Error("bridge protocol violation", "err", err)
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	_ = c.tr.Close()
	c.failAll(err)
}

func (c *Client) failAll(cause error) {
	var terr *TransportError
	if !errors.As(cause, &terr) {
		cause = &TransportError{Op: "recv", Err: cause}
	}
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.closed = true
	c.mu.Unlock()
	for _, call := range pending {
		call.fut.Reject(cause)
	}
}

func (c *Client) dropPending(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, call := range c.pending {
		if call.id == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}
