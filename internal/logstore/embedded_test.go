package logstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbedded(t *testing.T) (Client, *Dialer) {
	t.Helper()
	d := NewDialer(DialerOptions{})
	t.Cleanup(func() { _ = d.Close() })
	c, err := d.Dial(context.Background(), "pebble://"+filepath.Join(t.TempDir(), "node0"))
	require.NoError(t, err)
	return c, d
}

func TestEmbeddedAppendTrimAndRange(t *testing.T) {
	c, _ := newEmbedded(t)
	ctx := context.Background()

	var last string
	for _, v := range []string{"a", "b", "c"} {
		pos, err := c.Append(ctx, "app::ch", []byte(v), 2)
		require.NoError(t, err)
		last = pos
	}
	n, err := c.Len(ctx, "app::ch")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := c.RangeLast(ctx, "app::ch", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", string(got[0].Value))
	assert.Equal(t, last, got[0].Position)

	lp, err := c.LastPosition(ctx, "app::ch")
	require.NoError(t, err)
	assert.Equal(t, last, lp)
}

func TestEmbeddedReadAt(t *testing.T) {
	c, _ := newEmbedded(t)
	ctx := context.Background()
	pos, err := c.Append(ctx, "k", []byte("v"), 1)
	require.NoError(t, err)

	e, err := c.ReadAt(ctx, "k", pos)
	require.NoError(t, err)
	assert.Equal(t, "v", string(e.Value))

	_, err = c.ReadAt(ctx, "k", "1-1")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = c.ReadAt(ctx, "k", "nope")
	assert.True(t, errors.Is(err, ErrInvalidPosition))
}

func TestEmbeddedDeleteAndExists(t *testing.T) {
	c, _ := newEmbedded(t)
	ctx := context.Background()
	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Append(ctx, "k", []byte("v"), 0)
	require.NoError(t, err)
	ok, _ = c.Exists(ctx, "k")
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "k"))
	ok, _ = c.Exists(ctx, "k")
	assert.False(t, ok)
	got, err := c.RangeLast(ctx, "k", 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmbeddedAppendBatchKeepsOrderAcrossStreams(t *testing.T) {
	c, _ := newEmbedded(t)
	ctx := context.Background()
	pos, err := c.AppendBatch(ctx, []Record{
		{Key: "x", Value: []byte("1")},
		{Key: "y", Value: []byte("2")},
		{Key: "x", Value: []byte("3")},
	})
	require.NoError(t, err)
	require.Len(t, pos, 3)

	e, err := c.ReadAt(ctx, "y", pos[1])
	require.NoError(t, err)
	assert.Equal(t, "2", string(e.Value))
	got, err := c.RangeLast(ctx, "x", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "3", string(got[0].Value))
	assert.Equal(t, "1", string(got[1].Value))
}

func TestEmbeddedTailFromLatest(t *testing.T) {
	c, _ := newEmbedded(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := c.Append(ctx, "s", []byte("before"), 0)
	require.NoError(t, err)

	got := make(chan string, 4)
	started := make(chan struct{})
	tailCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- c.Tail(tailCtx, "s", Latest, func(e Entry) error {
			got <- string(e.Value)
			return nil
		})
	}()
	<-started
	// Latest is resolved when Tail starts; give it a moment.
	time.Sleep(50 * time.Millisecond)
	_, err = c.Append(ctx, "s", []byte("after"), 0)
	require.NoError(t, err)

	select {
	case v := <-got:
		assert.Equal(t, "after", v)
	case <-ctx.Done():
		t.Fatal("tail did not deliver")
	}
	stop()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestEmbeddedTailStopsOnCallbackError(t *testing.T) {
	c, _ := newEmbedded(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.Append(ctx, "s", []byte("v"), 0)
		require.NoError(t, err)
	}
	stopErr := errors.New("stop")
	seen := 0
	err := c.Tail(ctx, "s", ZeroPosition, func(Entry) error {
		seen++
		if seen == 2 {
			return stopErr
		}
		return nil
	})
	assert.ErrorIs(t, err, stopErr)
	assert.Equal(t, 2, seen)
}

func TestDialerSharesEmbeddedRuntime(t *testing.T) {
	d := NewDialer(DialerOptions{})
	defer d.Close()
	dir := filepath.Join(t.TempDir(), "n")
	ctx := context.Background()

	a, err := d.Dial(ctx, dir)
	require.NoError(t, err)
	b, err := d.Dial(ctx, "pebble://"+dir)
	require.NoError(t, err)

	_, err = a.Append(ctx, "k", []byte("v"), 0)
	require.NoError(t, err)
	n, err := b.Len(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDialerRejectsUnknownScheme(t *testing.T) {
	d := NewDialer(DialerOptions{})
	defer d.Close()
	_, err := d.Dial(context.Background(), "kafka://broker:9092")
	assert.ErrorIs(t, err, ErrUnsupportedEndpoint)
}
