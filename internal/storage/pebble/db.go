package pebblestore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = pebble.ErrNotFound

var errClosed = errors.New("pebble: db not open")

// defaultSyncInterval is the group-commit window used when no mode is set.
const defaultSyncInterval = 5 * time.Millisecond

// FsyncMode selects when committed channel writes reach the WAL on disk.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs every committed batch.
	FsyncModeAlways
	// FsyncModeInterval lets pebble coalesce WAL syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to pebble. A crash can lose the tail of
	// every channel.
	FsyncModeNever
)

func (m FsyncMode) String() string {
	switch m {
	case FsyncModeAlways:
		return "always"
	case FsyncModeInterval:
		return "interval"
	case FsyncModeNever:
		return "never"
	}
	return "unspecified"
}

type Options struct {
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
	// PebbleOptions tunes the engine directly. Nil uses pebble defaults.
	PebbleOptions *pebble.Options
	Observer      Observer
	Logger        pebble.Logger
}

// Observer is told about every commit and point read.
type Observer interface {
	Commit(ops, bytes int, elapsed time.Duration)
	Read(bytes int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Commit(int, int, time.Duration) {}
func (nopObserver) Read(int, time.Duration)        {}

// Counters is an Observer keeping running totals.
type Counters struct {
	commits   atomic.Int64
	ops       atomic.Int64
	written   atomic.Int64
	read      atomic.Int64
	commitDur atomic.Int64
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Commits      int64
	Ops          int64
	BytesWritten int64
	BytesRead    int64
	CommitTime   time.Duration
}

func (c *Counters) Commit(ops, bytes int, elapsed time.Duration) {
	c.commits.Add(1)
	c.ops.Add(int64(ops))
	c.written.Add(int64(bytes))
	c.commitDur.Add(int64(elapsed))
}

func (c *Counters) Read(bytes int, _ time.Duration) { c.read.Add(int64(bytes)) }

func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Commits:      c.commits.Load(),
		Ops:          c.ops.Load(),
		BytesWritten: c.written.Load(),
		BytesRead:    c.read.Load(),
		CommitTime:   time.Duration(c.commitDur.Load()),
	}
}

// DB is a pebble database holding channel logs. Writes go through batches
// committed under the configured FsyncMode.
type DB struct {
	inner    *pebble.DB
	sync     *pebble.WriteOptions
	observer Observer
}

func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if opts.Logger != nil {
		po.Logger = opts.Logger
	}

	wo := pebble.NoSync
	switch opts.Fsync {
	case FsyncModeAlways:
		wo = pebble.Sync
	case FsyncModeInterval:
		iv := opts.FsyncInterval
		if iv <= 0 {
			iv = defaultSyncInterval
		}
		po.WALMinSyncInterval = func() time.Duration { return iv }
	case FsyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return defaultSyncInterval }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &DB{inner: inner, sync: wo, observer: obs}, nil
}

func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	err := db.inner.Close()
	db.inner = nil
	return err
}

// NewBatch starts an atomic write. Commit it with CommitBatch.
func (db *DB) NewBatch() *pebble.Batch {
	return db.inner.NewBatch()
}

// CommitBatch applies b unless ctx is already done.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	ops, size := int(b.Count()), b.Len()
	if err := b.Commit(db.sync); err != nil {
		return err
	}
	db.observer.Commit(ops, size, time.Since(start))
	return nil
}

// Update runs fn on a fresh batch and commits it if fn succeeds.
func (db *DB) Update(ctx context.Context, fn func(b *pebble.Batch) error) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := fn(b); err != nil {
		return err
	}
	return db.CommitBatch(ctx, b)
}

// Get returns a copy of the value stored at key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), val...)
	_ = closer.Close()
	db.observer.Read(len(out), time.Since(start))
	return out, nil
}

func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return db.inner.NewIter(opts)
}

// DeleteRange drops every key in [start, end).
func (db *DB) DeleteRange(ctx context.Context, start, end []byte) error {
	return db.Update(ctx, func(b *pebble.Batch) error {
		return b.DeleteRange(start, end, nil)
	})
}

// Ping opens and closes an iterator to prove the engine can serve reads.
func (db *DB) Ping() error {
	if db == nil || db.inner == nil {
		return errClosed
	}
	it, err := db.inner.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}
