package eventlog

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/rtm/pkg/id"
)

type ReadOptions struct {
	// After is exclusive; zero starts at the first entry (forward) or the
	// last entry (reverse).
	After   id.Position
	Limit   int
	Reverse bool
}

type Item struct {
	Pos     id.Position
	Header  []byte
	Payload []byte
}

// Read returns up to Limit items strictly after (forward) or strictly before
// (reverse) opts.After. The returned position is where to resume.
func (l *Log) Read(opts ReadOptions) ([]Item, id.Position, error) {
	low, high := entryBounds(l.stream)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	items := make([]Item, 0, max(1, opts.Limit))
	next := opts.After
	if err != nil {
		return items, next, err
	}
	defer iter.Close()

	var ok bool
	switch {
	case opts.Reverse && opts.After.IsZero():
		ok = iter.Last()
	case opts.Reverse:
		ok = iter.SeekLT(KeyStreamEntry(l.stream, opts.After))
	case opts.After.IsZero():
		ok = iter.First()
	default:
		ok = iter.SeekGE(KeyStreamEntry(l.stream, opts.After.Next()))
	}
	for ; ok && (opts.Limit == 0 || len(items) < opts.Limit); ok = l.step(iter, opts.Reverse) {
		pos := positionFromKey(iter.Key())
		h, p, err := decodeEntry(iter.Value())
		if err != nil {
			continue
		}
		items = append(items, Item{Pos: pos, Header: h, Payload: p})
		next = pos
	}
	return items, next, iter.Error()
}

func (l *Log) step(iter *pebble.Iterator, reverse bool) bool {
	if reverse {
		return iter.Prev()
	}
	return iter.Next()
}

// Last returns up to n newest items, newest first.
func (l *Log) Last(n int) ([]Item, error) {
	items, _, err := l.Read(ReadOptions{Reverse: true, Limit: n})
	return items, err
}

// ReadAt returns the entry at exactly pos.
func (l *Log) ReadAt(pos id.Position) (Item, error) {
	v, err := l.db.Get(KeyStreamEntry(l.stream, pos))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	h, p, err := decodeEntry(v)
	if err != nil {
		return Item{}, fmt.Errorf("%s at %s: %w", l.stream, pos, err)
	}
	return Item{Pos: pos, Header: h, Payload: p}, nil
}
