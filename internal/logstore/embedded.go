package logstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/rtm/internal/eventlog"
	"github.com/rzbill/rtm/internal/runtime"
	"github.com/rzbill/rtm/pkg/id"
)

const (
	tailBatch = 100
	tailWait  = 200 * time.Millisecond
)

// Embedded is a Client over an in-process pebble runtime.
type Embedded struct {
	rt       *runtime.Runtime
	endpoint string
}

// NewEmbedded wraps rt. The runtime is owned by the caller; Close is a no-op.
func NewEmbedded(rt *runtime.Runtime, endpoint string) *Embedded {
	return &Embedded{rt: rt, endpoint: endpoint}
}

func (e *Embedded) Append(ctx context.Context, key string, value []byte, maxLen int) (string, error) {
	l, err := e.rt.OpenLog(key)
	if err != nil {
		return "", err
	}
	pos, err := l.Append(ctx, []eventlog.AppendRecord{{Payload: value}}, maxLen)
	if err != nil {
		return "", err
	}
	return pos[0].String(), nil
}

// AppendBatch appends records grouped by stream; each stream is written in a
// single atomic batch.
func (e *Embedded) AppendBatch(ctx context.Context, recs []Record) ([]string, error) {
	out := make([]string, len(recs))
	type group struct {
		idx    []int
		recs   []eventlog.AppendRecord
		maxLen int
	}
	groups := make(map[string]*group)
	var order []string
	for i, r := range recs {
		g, ok := groups[r.Key]
		if !ok {
			g = &group{}
			groups[r.Key] = g
			order = append(order, r.Key)
		}
		g.idx = append(g.idx, i)
		g.recs = append(g.recs, eventlog.AppendRecord{Payload: r.Value})
		g.maxLen = r.MaxLen
	}
	for _, key := range order {
		g := groups[key]
		l, err := e.rt.OpenLog(key)
		if err != nil {
			return nil, err
		}
		pos, err := l.Append(ctx, g.recs, g.maxLen)
		if err != nil {
			return nil, fmt.Errorf("append %s: %w", key, err)
		}
		for j, i := range g.idx {
			out[i] = pos[j].String()
		}
	}
	return out, nil
}

func (e *Embedded) Tail(ctx context.Context, key, from string, fn func(Entry) error) error {
	l, err := e.rt.OpenLog(key)
	if err != nil {
		return err
	}
	after := l.LastPosition()
	if !IsLatest(from) {
		if after, err = id.Parse(from); err != nil {
			return ErrInvalidPosition
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, next, err := l.Read(eventlog.ReadOptions{After: after, Limit: tailBatch})
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := fn(Entry{Position: it.Pos.String(), Value: it.Payload}); err != nil {
				return err
			}
		}
		after = next
		if len(items) < tailBatch {
			l.WaitForAppend(ctx, tailWait)
		}
	}
}

func (e *Embedded) RangeLast(_ context.Context, key string, n int) ([]Entry, error) {
	l, err := e.rt.OpenLog(key)
	if err != nil {
		return nil, err
	}
	items, err := l.Last(n)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		out = append(out, Entry{Position: it.Pos.String(), Value: it.Payload})
	}
	return out, nil
}

func (e *Embedded) ReadAt(_ context.Context, key, position string) (Entry, error) {
	pos, err := id.Parse(position)
	if err != nil {
		return Entry{}, ErrInvalidPosition
	}
	l, err := e.rt.OpenLog(key)
	if err != nil {
		return Entry{}, err
	}
	it, err := l.ReadAt(pos)
	if errors.Is(err, eventlog.ErrNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return Entry{Position: it.Pos.String(), Value: it.Payload}, nil
}

func (e *Embedded) Exists(_ context.Context, key string) (bool, error) {
	l, err := e.rt.OpenLog(key)
	if err != nil {
		return false, err
	}
	return l.Exists(), nil
}

func (e *Embedded) Len(_ context.Context, key string) (int64, error) {
	l, err := e.rt.OpenLog(key)
	if err != nil {
		return 0, err
	}
	return l.Len(), nil
}

func (e *Embedded) Delete(ctx context.Context, key string) error {
	l, err := e.rt.OpenLog(key)
	if err != nil {
		return err
	}
	return l.Delete(ctx)
}

func (e *Embedded) LastPosition(_ context.Context, key string) (string, error) {
	l, err := e.rt.OpenLog(key)
	if err != nil {
		return "", err
	}
	return l.LastPosition().String(), nil
}

func (e *Embedded) Ping(ctx context.Context) error { return e.rt.CheckHealth(ctx) }

func (e *Embedded) Endpoint() string { return e.endpoint }

func (e *Embedded) Close() error { return nil }
