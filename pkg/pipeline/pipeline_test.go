package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querydeck/dbridge/pkg/async"
	"github.com/querydeck/dbridge/pkg/bridge"
	"github.com/querydeck/dbridge/pkg/bridge/bridgetest"
	"github.com/querydeck/dbridge/pkg/execlock"
	"github.com/querydeck/dbridge/pkg/history"
	"github.com/querydeck/dbridge/pkg/rowset"
)

type captureRenderer struct {
	mu       sync.Mutex
	results  []*rowset.Result
	messages []string
	diags    []*bridge.DriverError
}

func (r *captureRenderer) RenderResult(res *rowset.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *captureRenderer) RenderMessage(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *captureRenderer) RenderError(derr *bridge.DriverError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags = append(r.diags, derr)
}

func newTestPipeline(script bridgetest.Script) (*Pipeline, *captureRenderer, *execlock.Serializer, *history.Queries, *bridge.Client) {
	client := bridge.NewClient(bridgetest.New(script), nil)
	lock := execlock.New()
	queries := history.NewQueries(50)
	renderer := &captureRenderer{}
	p := New(client, lock, queries, DefaultProfile(), renderer, nil)
	return p, renderer, lock, queries, client
}

func TestSubmit_ResultSet(t *testing.T) {
	p, renderer, lock, queries, client := newTestPipeline(bridgetest.Replies(map[bridge.Method]any{
		bridge.MethodPrepare:      true,
		bridge.MethodExecute:      float64(0), // result-set sentinel
		bridge.MethodFetchColumns: []any{"id", "name"},
		bridge.MethodFetch:        []any{[]any{float64(1), "ada"}},
	}))
	defer client.Close()

	out, err := p.Submit(context.Background(), "SELECT * FROM t").Await(context.Background())
	require.NoError(t, err)

	outcome := out.(*Outcome)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, []string{"id", "name"}, outcome.Result.Columns)

	require.Len(t, renderer.results, 1)
	assert.Equal(t, []string{"SELECT * FROM t"}, queries.Entries(), "success records history")
	assert.False(t, lock.Held(), "serializer released on success")
	assert.Equal(t, StateIdle, p.State())
}

func TestSubmit_EmptyResultIsEmptyGrid(t *testing.T) {
	p, renderer, lock, _, client := newTestPipeline(bridgetest.Replies(map[bridge.Method]any{
		bridge.MethodPrepare:      true,
		bridge.MethodExecute:      float64(0),
		bridge.MethodFetchColumns: []any{"id"},
		bridge.MethodFetch:        []any{},
	}))
	defer client.Close()

	_, err := p.Submit(context.Background(), "SELECT * FROM empty").Await(context.Background())
	require.NoError(t, err)

	require.Len(t, renderer.results, 1, "zero rows render an empty grid, not an error")
	assert.Equal(t, 0, renderer.results[0].Len())
	assert.Empty(t, renderer.diags)
	assert.False(t, lock.Held())
}

func TestSubmit_UpdateCount(t *testing.T) {
	p, renderer, lock, queries, client := newTestPipeline(bridgetest.Replies(map[bridge.Method]any{
		bridge.MethodPrepare: true,
		bridge.MethodExecute: float64(3),
	}))
	defer client.Close()

	out, err := p.Submit(context.Background(), "UPDATE t SET x = 1").Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.(*Outcome).Affected)

	require.Len(t, renderer.messages, 1)
	assert.Equal(t, "OK. 3 rows are affected.", renderer.messages[0])
	assert.Equal(t, []string{"UPDATE t SET x = 1"}, queries.Entries())
	assert.False(t, lock.Held())
}

func TestSubmit_UpdateSkipsFetch(t *testing.T) {
	tr := bridgetest.New(bridgetest.Replies(map[bridge.Method]any{
		bridge.MethodPrepare: true,
		bridge.MethodExecute: float64(7),
	}))
	client := bridge.NewClient(tr, nil)
	defer client.Close()
	p := New(client, execlock.New(), nil, DefaultProfile(), &captureRenderer{}, nil)

	_, err := p.Submit(context.Background(), "DELETE FROM t").Await(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []bridge.Method{bridge.MethodPrepare, bridge.MethodExecute}, tr.Calls(),
		"no fetch path on the update branch")
}

func TestSubmit_NullExecuteQueriesStatus(t *testing.T) {
	tr := bridgetest.New(bridgetest.Replies(map[bridge.Method]any{
		bridge.MethodPrepare: true,
		bridge.MethodExecute: nil,
		bridge.MethodStatus:  []any{float64(1), "no such table: users", "42S02"},
	}))
	client := bridge.NewClient(tr, nil)
	defer client.Close()
	lock := execlock.New()
	queries := history.NewQueries(50)
	renderer := &captureRenderer{}
	p := New(client, lock, queries, DefaultProfile(), renderer, nil)

	_, err := p.Submit(context.Background(), "SELECT * FROM users").Await(context.Background())
	var derr *bridge.DriverError
	require.ErrorAs(t, err, &derr)

	require.Len(t, renderer.diags, 1)
	assert.Equal(t, "no such table: users", renderer.diags[0].Message, "errorString verbatim")
	assert.Equal(t, "42S02", renderer.diags[0].State, "errorState verbatim")

	assert.Contains(t, tr.Calls(), bridge.MethodStatus)
	assert.NotContains(t, tr.Calls(), bridge.MethodFetchColumns, "no fetch attempted on the error branch")
	assert.Empty(t, queries.Entries(), "errored executions are not recorded")
	assert.False(t, lock.Held(), "serializer released on the failure path")
	assert.Equal(t, StateIdle, p.State())
}

func TestSubmit_TransportFailureReleasesSerializer(t *testing.T) {
	p, _, lock, queries, client := newTestPipeline(func(m bridge.Method, _ []any) (any, error) {
		if m == bridge.MethodExecute {
			return nil, &bridge.TransportError{Op: "recv", Err: assert.AnError}
		}
		return true, nil
	})
	defer client.Close()

	_, err := p.Submit(context.Background(), "SELECT 1").Await(context.Background())
	var terr *bridge.TransportError
	require.ErrorAs(t, err, &terr)
	assert.False(t, lock.Held(), "error sink releases the slot")
	assert.Empty(t, queries.Entries())
}

func TestSubmit_FIFOAcrossPipelines(t *testing.T) {
	lock := execlock.New()
	renderer := &captureRenderer{}

	newPipe := func(n int64) *Pipeline {
		client := bridge.NewClient(bridgetest.New(bridgetest.Replies(map[bridge.Method]any{
			bridge.MethodPrepare: true,
			bridge.MethodExecute: float64(n),
		})), nil)
		t.Cleanup(func() { client.Close() })
		return New(client, lock, nil, DefaultProfile(), renderer, nil)
	}

	// Park the slot so every submission queues behind it in a known
	// order.
	require.NoError(t, lock.Acquire(context.Background()))

	const n = 4
	futures := make([]*async.Future[any], 0, n)
	for i := 0; i < n; i++ {
		fut := newPipe(int64(i+1)).Submit(context.Background(), fmt.Sprintf("stmt %d", i+1))
		futures = append(futures, fut)
		for lock.Waiting() != i+1 {
			time.Sleep(time.Millisecond)
		}
	}

	require.NoError(t, lock.Release())
	for _, f := range futures {
		<-f.Done()
	}

	assert.Equal(t, []string{
		"OK. 1 rows are affected.",
		"OK. 2 rows are affected.",
		"OK. 3 rows are affected.",
		"OK. 4 rows are affected.",
	}, renderer.messages, "pipelines complete in FIFO order")
	assert.False(t, lock.Held())
}

func TestSubmit_ForceReleaseAllUnblocksNextPipeline(t *testing.T) {
	lock := execlock.New()

	// Pipeline A hangs inside prepare, holding the slot forever.
	hung := make(chan struct{})
	clientA := bridge.NewClient(bridgetest.New(func(bridge.Method, []any) (any, error) {
		<-hung
		return nil, &bridge.TransportError{Op: "recv", Err: assert.AnError}
	}), nil)
	defer func() { close(hung); clientA.Close() }()
	pipeA := New(clientA, lock, nil, DefaultProfile(), &captureRenderer{}, nil)
	pipeA.Submit(context.Background(), "SELECT sleep()")

	for !lock.Held() {
		time.Sleep(time.Millisecond)
	}

	// Pipeline B, on its own healthy connection, waits its turn.
	renderer := &captureRenderer{}
	clientB := bridge.NewClient(bridgetest.New(bridgetest.Replies(map[bridge.Method]any{
		bridge.MethodPrepare: true,
		bridge.MethodExecute: float64(1),
	})), nil)
	defer clientB.Close()
	pipeB := New(clientB, lock, nil, DefaultProfile(), renderer, nil)
	futB := pipeB.Submit(context.Background(), "SELECT 1")

	for lock.Waiting() != 1 {
		time.Sleep(time.Millisecond)
	}

	lock.ForceReleaseAll()

	select {
	case <-futB.Done():
	case <-time.After(time.Second):
		t.Fatal("waiting pipeline did not proceed after ForceReleaseAll")
	}
	assert.Equal(t, []string{"OK. 1 rows are affected."}, renderer.messages)
}

func TestProfile_Classify(t *testing.T) {
	tests := []struct {
		name     string
		profile  Profile
		reply    any
		expected replyKind
	}{
		{name: "null is error", profile: DefaultProfile(), reply: nil, expected: replyError},
		{name: "false is error", profile: DefaultProfile(), reply: false, expected: replyError},
		{name: "sentinel is result set", profile: DefaultProfile(), reply: float64(0), expected: replyResult},
		{name: "count is update", profile: DefaultProfile(), reply: float64(5), expected: replyUpdate},
		{name: "true is result set", profile: DefaultProfile(), reply: true, expected: replyResult},
		{name: "string sentinel is result set", profile: DefaultProfile(), reply: "rows", expected: replyResult},
		{name: "custom sentinel", profile: Profile{ResultSentinel: -1}, reply: float64(-1), expected: replyResult},
		{name: "zero is update under custom sentinel", profile: Profile{ResultSentinel: -1}, reply: float64(0), expected: replyUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.profile.classify(tt.reply))
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "result-pending", StateResultPending.String())
}
