package logstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisAppendAndReadAt(t *testing.T) {
	c, _ := newRedis(t)
	ctx := context.Background()
	pos, err := c.Append(ctx, "app::ch", []byte(`{"x":1}`), 10)
	require.NoError(t, err)
	assert.True(t, ValidatePosition(pos))

	e, err := c.ReadAt(ctx, "app::ch", pos)
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(e.Value))

	_, err = c.ReadAt(ctx, "app::ch", "1-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.ReadAt(ctx, "app::ch", "bad")
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestRedisKVStreamKeepsOneEntry(t *testing.T) {
	c, _ := newRedis(t)
	ctx := context.Background()
	for _, v := range []string{"1", "2", "3"} {
		_, err := c.Append(ctx, "kv", []byte(v), 1)
		require.NoError(t, err)
	}
	n, err := c.Len(ctx, "kv")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err := c.RangeLast(ctx, "kv", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3", string(got[0].Value))
}

func TestRedisBatchDeleteAndLastPosition(t *testing.T) {
	c, _ := newRedis(t)
	ctx := context.Background()

	last, err := c.LastPosition(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, ZeroPosition, last)

	pos, err := c.AppendBatch(ctx, []Record{{Key: "s", Value: []byte("a")}, {Key: "s", Value: []byte("b")}})
	require.NoError(t, err)
	require.Len(t, pos, 2)

	last, err = c.LastPosition(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, pos[1], last)

	ok, err := c.Exists(ctx, "s")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, c.Delete(ctx, "s"))
	ok, err = c.Exists(ctx, "s")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisTailFromPosition(t *testing.T) {
	c, _ := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pos, err := c.AppendBatch(ctx, []Record{{Key: "s", Value: []byte("a")}, {Key: "s", Value: []byte("b")}})
	require.NoError(t, err)

	var seen []string
	err = c.Tail(ctx, "s", pos[0], func(e Entry) error {
		seen = append(seen, string(e.Value))
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"b"}, seen)
}
