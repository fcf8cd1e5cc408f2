package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/rtm/internal/eventlog"
	pebblestore "github.com/rzbill/rtm/internal/storage/pebble"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Logger        logpkg.Logger
}

// Runtime wires one pebble database and its stream logs. The embedded log
// store and the lognode both run on top of it.
type Runtime struct {
	db       *pebblestore.DB
	store    *eventlog.Store
	counters *pebblestore.Counters
	dataDir  string
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	counters := &pebblestore.Counters{}
	po := pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Observer:      counters,
	}
	if opts.Logger != nil {
		po.Logger = pebbleLogger{l: opts.Logger.With(logpkg.Component("pebble"))}
	}
	db, err := pebblestore.Open(po)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", opts.DataDir, err)
	}
	return &Runtime{db: db, store: eventlog.NewStore(db), counters: counters, dataDir: opts.DataDir}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Ping()
}

// OpenLog returns the shared log of a stream.
func (r *Runtime) OpenLog(stream string) (*eventlog.Log, error) {
	return r.store.Open(stream)
}

// Store exposes the stream store.
func (r *Runtime) Store() *eventlog.Store { return r.store }

// DataDir returns the directory the runtime was opened on.
func (r *Runtime) DataDir() string { return r.dataDir }

// Stats returns cumulative storage counters.
func (r *Runtime) Stats() pebblestore.CounterSnapshot { return r.counters.Snapshot() }

// pebbleLogger adapts our logger to pebble's Infof/Errorf/Fatalf interface.
type pebbleLogger struct{ l logpkg.Logger }

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Fatal(fmt.Sprintf(format, args...))
}
