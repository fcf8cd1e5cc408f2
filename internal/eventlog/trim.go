package eventlog

import (
	"context"

	"github.com/cockroachdb/pebble"
)

// trimOldest stages deletes of the n oldest entries into b. Caller holds l.mu.
func (l *Log) trimOldest(b *pebble.Batch, n int64) error {
	low, high := entryBounds(l.stream)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return err
	}
	defer iter.Close()

	var deleted int64
	for ok := iter.First(); ok && deleted < n; ok = iter.Next() {
		if err := b.Delete(iter.Key(), nil); err != nil {
			return err
		}
		deleted++
	}
	return iter.Error()
}

// TrimToLen deletes the oldest entries until at most maxLen remain.
// Returns the number of deleted entries.
func (l *Log) TrimToLen(ctx context.Context, maxLen int) (int, error) {
	if maxLen < 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	excess := l.length - int64(maxLen)
	if excess <= 0 {
		return 0, nil
	}
	b := l.db.NewBatch()
	defer b.Close()
	if err := l.trimOldest(b, excess); err != nil {
		return 0, err
	}
	length := l.length - excess
	if err := b.Set(KeyStreamMeta(l.stream), encodeMeta(l.last, length), nil); err != nil {
		return 0, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	l.length = length
	return int(excess), nil
}
