package bridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querydeck/dbridge/pkg/bridge"
	"github.com/querydeck/dbridge/pkg/bridge/bridgetest"
)

func TestClient_CallResolvesValue(t *testing.T) {
	tr := bridgetest.New(bridgetest.Replies(map[bridge.Method]any{
		bridge.MethodConnect: "sqlite 3.45",
	}))
	c := bridge.NewClient(tr, nil)
	defer c.Close()

	v, err := c.CallSync(context.Background(), bridge.MethodConnect, "db.sqlite", "", "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite 3.45", v)
}

func TestClient_ErrorReplyIsDriverError(t *testing.T) {
	tr := bridgetest.New(func(bridge.Method, []any) (any, error) {
		return nil, errors.New("no such table: users")
	})
	c := bridge.NewClient(tr, nil)
	defer c.Close()

	_, err := c.CallSync(context.Background(), bridge.MethodPrepare, "SELECT * FROM users")
	var derr *bridge.DriverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "no such table: users", derr.Message)
}

func TestClient_RepliesMatchCallOrder(t *testing.T) {
	var n int
	var mu sync.Mutex
	tr := bridgetest.New(func(m bridge.Method, _ []any) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return float64(n), nil
	})
	c := bridge.NewClient(tr, nil)
	defer c.Close()

	first := c.Call(bridge.MethodPrepare, "one")
	second := c.Call(bridge.MethodPrepare, "two")

	v1, err := first.Await(context.Background())
	require.NoError(t, err)
	v2, err := second.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(1), v1)
	assert.Equal(t, float64(2), v2)
}

func TestClient_ConcurrentCallsKeepWireOrder(t *testing.T) {
	// The fake replies strictly in send order, so any divergence
	// between queue order and wire order surfaces as an id mismatch
	// that kills the connection.
	var n int
	var mu sync.Mutex
	tr := bridgetest.New(func(bridge.Method, []any) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return float64(n), nil
	})
	c := bridge.NewClient(tr, nil)
	defer c.Close()

	const workers = 8
	const calls = 200
	var wg sync.WaitGroup
	errs := make(chan error, workers*calls)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				if _, err := c.CallSync(context.Background(), bridge.MethodStatus); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}

	// The connection survived; one more call still round-trips.
	_, err := c.CallSync(context.Background(), bridge.MethodStatus)
	require.NoError(t, err)
}

func TestClient_CloseFailsPending(t *testing.T) {
	block := make(chan struct{})
	tr := bridgetest.New(func(bridge.Method, []any) (any, error) {
		<-block
		return nil, nil
	})
	c := bridge.NewClient(tr, nil)

	fut := c.Call(bridge.MethodExecute)
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Close()
		close(block)
	}()

	_, err := fut.Await(context.Background())
	var terr *bridge.TransportError
	assert.ErrorAs(t, err, &terr, "pending calls fail with TransportError on teardown")
}

func TestClient_CallAfterClose(t *testing.T) {
	tr := bridgetest.New(nil)
	c := bridge.NewClient(tr, nil)
	require.NoError(t, c.Close())

	_, err := c.CallSync(context.Background(), bridge.MethodStatus)
	var terr *bridge.TransportError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, bridge.ErrClientClosed)
}

// misorderedTransport answers every request with a bogus reply id.
type misorderedTransport struct {
	reqs chan bridge.Request
}

func (m *misorderedTransport) Send(req bridge.Request) error {
	m.reqs <- req
	return nil
}

func (m *misorderedTransport) Recv() (bridge.Reply, error) {
	req, ok := <-m.reqs
	if !ok {
		return bridge.Reply{}, &bridge.TransportError{Op: "recv", Err: errors.New("closed")}
	}
	_ = req
	return bridge.Reply{ID: "not-the-request-id"}, nil
}

func (m *misorderedTransport) Close() error { return nil }

func TestClient_ReplyIDMismatchIsFatal(t *testing.T) {
	tr := &misorderedTransport{reqs: make(chan bridge.Request, 1)}
	c := bridge.NewClient(tr, nil)

	_, err := c.CallSync(context.Background(), bridge.MethodFetch)
	var terr *bridge.TransportError
	assert.ErrorAs(t, err, &terr, "protocol violation surfaces as TransportError")
}

func TestPipe_RoundTrip(t *testing.T) {
	client, server := net.Pipe()
	ct := bridge.NewPipe(client)
	defer ct.Close()
	defer server.Close()

	go func() {
		// Minimal bridge: acknowledge each request by id.
		dec := json.NewDecoder(server)
		enc := json.NewEncoder(server)
		for {
			var req bridge.Request
			if err := dec.Decode(&req); err != nil {
				return
			}
			_ = enc.Encode(bridge.Reply{ID: req.ID, Value: "ack"})
		}
	}()

	require.NoError(t, ct.Send(bridge.Request{ID: "abc", Method: bridge.MethodCommit, Args: []any{}}))
	rep, err := ct.Recv()
	require.NoError(t, err)
	assert.Equal(t, "abc", rep.ID)
	assert.Equal(t, "ack", rep.Value)
}

func TestPipe_RecvAfterPeerClose(t *testing.T) {
	client, server := net.Pipe()
	ct := bridge.NewPipe(client)
	require.NoError(t, server.Close())

	_, err := ct.Recv()
	var terr *bridge.TransportError
	assert.ErrorAs(t, err, &terr, "a dead driver process is a transport fault")
}
