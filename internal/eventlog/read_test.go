package eventlog

import (
	"context"
	"errors"
	"testing"

	"github.com/rzbill/rtm/pkg/id"
)

func seedLog(t *testing.T, n int) (*Log, []id.Position) {
	t.Helper()
	l := newTestLog(t)
	recs := make([]AppendRecord, n)
	for i := 0; i < n; i++ {
		recs[i] = AppendRecord{Payload: []byte{byte(i)}}
	}
	pos, err := l.Append(context.Background(), recs, 0)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return l, pos
}

func TestReadForward(t *testing.T) {
	l, pos := seedLog(t, 5)
	items, next, err := l.Read(ReadOptions{Limit: 3})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("want 3 items, got %d", len(items))
	}
	if items[0].Pos != pos[0] || items[2].Pos != pos[2] || next != pos[2] {
		t.Fatalf("unexpected positions")
	}
}

func TestReadReverse(t *testing.T) {
	l, pos := seedLog(t, 4)
	items, _, err := l.Read(ReadOptions{Reverse: true, Limit: 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want 2, got %d", len(items))
	}
	if !(items[0].Pos == pos[3] && items[1].Pos == pos[2]) {
		t.Fatalf("unexpected reverse order")
	}
}

func TestReadAfterIsExclusive(t *testing.T) {
	l, pos := seedLog(t, 4)
	items, _, err := l.Read(ReadOptions{After: pos[1], Limit: 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 || items[0].Pos != pos[2] {
		t.Fatalf("seek failed: %+v", items)
	}
}

func TestReadAt(t *testing.T) {
	l, pos := seedLog(t, 3)
	it, err := l.ReadAt(pos[1])
	if err != nil {
		t.Fatalf("read at: %v", err)
	}
	if it.Payload[0] != 1 {
		t.Fatalf("wrong payload %v", it.Payload)
	}
	if _, err := l.ReadAt(id.Position{Ms: 1, Seq: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
