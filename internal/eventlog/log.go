package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/rtm/internal/storage/pebble"
	"github.com/rzbill/rtm/pkg/id"
)

var ErrNotFound = errors.New("entry not found")

// AppendRecord represents a single appendable entry.
type AppendRecord struct {
	Header  []byte
	Payload []byte
}

// Log is the append-only log of one stream.
type Log struct {
	db     *pebblestore.DB
	stream string

	mu       sync.Mutex
	gen      *id.Generator
	last     id.Position
	length   int64
	exists   bool
	notifyCh chan struct{}
}

// OpenLog initializes a Log and loads its metadata (if any). Prefer
// Store.Open, which shares one Log per stream so waiters see every append.
func OpenLog(db *pebblestore.DB, stream string) (*Log, error) {
	l := &Log{db: db, stream: stream, gen: id.NewGenerator(), notifyCh: make(chan struct{})}
	meta, err := db.Get(KeyStreamMeta(stream))
	switch {
	case err == nil:
		if len(meta) < 24 {
			return nil, errors.New("eventlog: corrupt stream metadata")
		}
		l.last, _ = id.FromBytes(meta[:16])
		l.length = int64(binary.BigEndian.Uint64(meta[16:24]))
		l.exists = true
		l.gen.Observe(l.last)
	case errors.Is(err, pebble.ErrNotFound):
	default:
		return nil, err
	}
	return l, nil
}

// Stream returns the stream name.
func (l *Log) Stream() string { return l.stream }

// Append appends the records as a single atomic batch and trims the stream
// to at most maxLen entries (oldest first). maxLen <= 0 disables trimming.
// Returns the assigned positions, including those of records that were
// trimmed away immediately.
func (l *Log) Append(ctx context.Context, recs []AppendRecord, maxLen int) ([]id.Position, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	n := int64(len(recs))
	total := l.length + n
	var fromDisk, skipNew int64
	if maxLen > 0 && total > int64(maxLen) {
		excess := total - int64(maxLen)
		fromDisk = min(excess, l.length)
		skipNew = excess - fromDisk
	}
	if fromDisk > 0 {
		if err := l.trimOldest(b, fromDisk); err != nil {
			return nil, err
		}
	}

	positions := make([]id.Position, len(recs))
	last := l.last
	for i, r := range recs {
		pos := l.gen.Next()
		positions[i] = pos
		last = pos
		if int64(i) < skipNew {
			continue
		}
		if err := b.Set(KeyStreamEntry(l.stream, pos), encodeEntry(r.Header, r.Payload), nil); err != nil {
			return nil, err
		}
	}
	length := total - fromDisk - skipNew
	if err := b.Set(KeyStreamMeta(l.stream), encodeMeta(last, length), nil); err != nil {
		return nil, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	l.last = last
	l.length = length
	l.exists = true

	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return positions, nil
}

// Len returns the number of retained entries.
func (l *Log) Len() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.length
}

// Exists reports whether the stream has been written and not deleted.
func (l *Log) Exists() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exists
}

// LastPosition returns the position of the newest entry ever appended, or
// id.Zero for a stream that was never written.
func (l *Log) LastPosition() id.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.exists {
		return id.Zero
	}
	return l.last
}

// Delete removes every entry and the metadata of the stream. Positions keep
// increasing if the stream is written again.
func (l *Log) Delete(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.db.DeleteRange(ctx, KeyStreamPrefix(l.stream), KeyStreamEnd(l.stream)); err != nil {
		return err
	}
	l.length = 0
	l.exists = false
	return nil
}

func encodeMeta(last id.Position, length int64) []byte {
	meta := make([]byte, 0, 24)
	meta = append(meta, last.Bytes()...)
	meta = binary.BigEndian.AppendUint64(meta, uint64(length))
	return meta
}
