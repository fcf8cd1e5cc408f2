package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rzbill/rtm/internal/logstore"
	"github.com/rzbill/rtm/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	logstore.Client // unused methods panic
	endpoint        string

	mu      sync.Mutex
	appends []logstore.Record
	batches int
	fail    error
	closed  bool
}

func (c *fakeClient) Append(_ context.Context, key string, value []byte, maxLen int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return "", c.fail
	}
	c.appends = append(c.appends, logstore.Record{Key: key, Value: value, MaxLen: maxLen})
	return fmt.Sprintf("1-%d", len(c.appends)), nil
}

func (c *fakeClient) AppendBatch(_ context.Context, recs []logstore.Record) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	c.batches++
	out := make([]string, len(recs))
	for i, r := range recs {
		c.appends = append(c.appends, r)
		out[i] = fmt.Sprintf("1-%d", len(c.appends))
	}
	return out, nil
}

func (c *fakeClient) Endpoint() string { return c.endpoint }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

type fakeConnector struct {
	dials   atomic.Int32
	mu      sync.Mutex
	clients []*fakeClient
	fail    error
}

func (f *fakeConnector) Dial(_ context.Context, endpoint string) (logstore.Client, error) {
	f.dials.Add(1)
	if f.fail != nil {
		return nil, f.fail
	}
	c := &fakeClient{endpoint: endpoint}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c, nil
}

func newPool(t *testing.T, endpoints []string, batch int) (*Pool, *fakeConnector) {
	t.Helper()
	ring, err := router.NewRing(endpoints)
	require.NoError(t, err)
	conn := &fakeConnector{}
	return NewPool(Options{Router: ring, Connector: conn, BatchSize: batch, MaxLen: 1000}), conn
}

func TestPoolSharesPublisherPerTenantEndpoint(t *testing.T) {
	pool, conn := newPool(t, []string{"only"}, 0)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := pool.Get(ctx, "app", fmt.Sprintf("chan-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), conn.dials.Load())
	assert.Equal(t, 1, pool.Len())

	_, err := pool.Get(ctx, "other", "chan-0")
	require.NoError(t, err)
	assert.Equal(t, int32(2), conn.dials.Load(), "tenants do not share publishers")
}

func TestPoolBoundedByEndpoints(t *testing.T) {
	pool, conn := newPool(t, []string{"a", "b", "c"}, 0)
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		_, err := pool.Get(ctx, "app", fmt.Sprintf("chan-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, pool.Len())
	assert.Equal(t, int32(3), conn.dials.Load())
}

func TestPoolConcurrentGetCreatesOnePublisher(t *testing.T) {
	pool, _ := newPool(t, []string{"only"}, 0)
	ctx := context.Background()
	var wg sync.WaitGroup
	pubs := make([]*Pipelined, 16)
	for i := range pubs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := pool.Get(ctx, "app", "c")
			assert.NoError(t, err)
			pubs[i] = p
		}(i)
	}
	wg.Wait()
	for _, p := range pubs {
		assert.Same(t, pubs[0], p)
	}
	assert.Equal(t, 1, pool.Len())
}

func TestPushImmediateUsesMaxLen(t *testing.T) {
	pool, conn := newPool(t, []string{"only"}, 0)
	job := Job{Tenant: "app", Channel: "lobby", Payload: []byte("x")}
	require.NoError(t, pool.Push(context.Background(), job, false))
	c := conn.clients[0]
	require.Len(t, c.appends, 1)
	assert.Equal(t, logstore.Record{Key: "app::lobby", Value: []byte("x"), MaxLen: 1000}, c.appends[0])
}

func TestPushBatchesUntilThreshold(t *testing.T) {
	pool, conn := newPool(t, []string{"only"}, 3)
	ctx := context.Background()
	job := Job{Tenant: "app", Channel: "lobby", Payload: []byte("x")}
	require.NoError(t, pool.Push(ctx, job, true))
	require.NoError(t, pool.Push(ctx, job, true))
	c := conn.clients[0]
	assert.Empty(t, c.appends)

	require.NoError(t, pool.Push(ctx, job, true))
	assert.Len(t, c.appends, 3)
	assert.Equal(t, 1, c.batches)

	require.NoError(t, pool.Push(ctx, job, true))
	pub, _ := pool.Get(ctx, "app", "lobby")
	assert.Equal(t, 1, pub.Pending())
	require.NoError(t, pool.Flush(ctx))
	assert.Equal(t, 0, pub.Pending())
	assert.Len(t, c.appends, 4)
}

func TestDefaultBatchSize(t *testing.T) {
	p := NewPipelined(&fakeClient{}, -1, 0)
	assert.Equal(t, DefaultBatchSize, p.batchSize)
	assert.Equal(t, DefaultMaxLen, p.maxLen)
}

func TestPublishNowOverridesMaxLen(t *testing.T) {
	pool, conn := newPool(t, []string{"only"}, 0)
	pos, err := pool.PublishNow(context.Background(), Job{Tenant: "app", Channel: "kv", Payload: []byte("v")}, 1)
	require.NoError(t, err)
	assert.Equal(t, "1-1", pos)
	assert.Equal(t, 1, conn.clients[0].appends[0].MaxLen)
}

func TestBackendErrorEvictsPublisher(t *testing.T) {
	pool, conn := newPool(t, []string{"only"}, 0)
	ctx := context.Background()
	pub, err := pool.Get(ctx, "app", "c")
	require.NoError(t, err)
	conn.clients[0].fail = errors.New("connection reset")

	err = pool.Push(ctx, Job{Tenant: "app", Channel: "c", Payload: []byte("x")}, false)
	require.Error(t, err)
	assert.Equal(t, 0, pool.Len())
	assert.True(t, conn.clients[0].closed)

	again, err := pool.Get(ctx, "app", "c")
	require.NoError(t, err)
	assert.NotSame(t, pub, again)
	assert.Equal(t, int32(2), conn.dials.Load())
}

func TestDialErrorIsReturned(t *testing.T) {
	pool, conn := newPool(t, []string{"only"}, 0)
	conn.fail = errors.New("refused")
	err := pool.Push(context.Background(), Job{Tenant: "app", Channel: "c"}, false)
	require.Error(t, err)
	assert.Equal(t, 0, pool.Len())
}

func TestCloseFlushesAndCloses(t *testing.T) {
	pool, conn := newPool(t, []string{"only"}, 10)
	ctx := context.Background()
	require.NoError(t, pool.Push(ctx, Job{Tenant: "app", Channel: "c", Payload: []byte("x")}, true))
	require.NoError(t, pool.Close(ctx))
	c := conn.clients[0]
	assert.Len(t, c.appends, 1)
	assert.True(t, c.closed)
	assert.Equal(t, 0, pool.Len())
}

func TestLateFailureKeepsReplacement(t *testing.T) {
	pool, conn := newPool(t, []string{"only"}, 0)
	ctx := context.Background()

	stale, err := pool.Get(ctx, "app", "c")
	require.NoError(t, err)
	conn.clients[0].fail = errors.New("connection reset")
	require.Error(t, pool.Push(ctx, Job{Tenant: "app", Channel: "c", Payload: []byte("x")}, false))

	fresh, err := pool.Get(ctx, "app", "c")
	require.NoError(t, err)
	require.NotSame(t, stale, fresh)

	// A second writer that picked up the stale publisher before the
	// eviction reports its failure only now.
	pool.evict("app", "c", stale)

	assert.Equal(t, 1, pool.Len())
	again, err := pool.Get(ctx, "app", "c")
	require.NoError(t, err)
	assert.Same(t, fresh, again)
	assert.False(t, conn.clients[1].closed)
	require.NoError(t, pool.Push(ctx, Job{Tenant: "app", Channel: "c", Payload: []byte("y")}, false))
	assert.Len(t, conn.clients[1].appends, 1)
}

func TestEraseRemovesCurrentPublisher(t *testing.T) {
	pool, conn := newPool(t, []string{"only"}, 0)
	_, err := pool.Get(context.Background(), "app", "c")
	require.NoError(t, err)
	pool.Erase("app", "c")
	assert.Equal(t, 0, pool.Len())
	assert.True(t, conn.clients[0].closed)
}

func TestDoSerializesWithWrites(t *testing.T) {
	pool, _ := newPool(t, []string{"only"}, 0)
	ctx := context.Background()
	started, release := make(chan struct{}), make(chan struct{})
	doErr := make(chan error, 1)
	go func() {
		doErr <- pool.Do(ctx, "app", "c", func(logstore.Client) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	pushed := make(chan error, 1)
	go func() { pushed <- pool.Push(ctx, Job{Tenant: "app", Channel: "c", Payload: []byte("x")}, false) }()
	select {
	case <-pushed:
		t.Fatal("write ran while Do held the connection")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-doErr)
	require.NoError(t, <-pushed)
	assert.Equal(t, 1, pool.Len())
}

func TestDoErrorEvictsPublisher(t *testing.T) {
	pool, conn := newPool(t, []string{"only"}, 0)
	boom := errors.New("boom")
	err := pool.Do(context.Background(), "app", "c", func(logstore.Client) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, pool.Len())
	assert.True(t, conn.clients[0].closed)
}
