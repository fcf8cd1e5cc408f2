package broker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rzbill/rtm/internal/apps"
	"github.com/rzbill/rtm/internal/auth"
	"github.com/rzbill/rtm/internal/kv"
	"github.com/rzbill/rtm/internal/logstore"
	"github.com/rzbill/rtm/internal/publisher"
	"github.com/rzbill/rtm/internal/router"
	"github.com/rzbill/rtm/internal/stats"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

// Options wires a Broker. Apps, Router, Pool and Connector are required.
type Options struct {
	Apps      *apps.Config
	Router    router.Router
	Pool      *publisher.Pool
	Connector logstore.Connector
	Stats     *stats.Stats
	Logger    logpkg.Logger

	// MaxSubscriptions caps subscriptions per connection; negative means
	// unlimited.
	MaxSubscriptions int
	Node             string
	Version          string

	// StatsInterval enables the stats publisher when > 0.
	StatsInterval time.Duration
	// FlushInterval enables periodic flushing of batched publishes when > 0.
	FlushInterval time.Duration
}

// Broker owns the connection registry and the shared services every
// connection uses.
type Broker struct {
	apps      *apps.Config
	router    router.Router
	pool      *publisher.Pool
	connector logstore.Connector
	kv        *kv.Store
	stats     *stats.Stats
	logger    logpkg.Logger

	maxSubscriptions int
	node             string
	version          string
	statsInterval    time.Duration
	flushInterval    time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// New validates opts and builds a Broker.
func New(opts Options) (*Broker, error) {
	switch {
	case opts.Apps == nil:
		return nil, errors.New("broker: apps config is required")
	case opts.Router == nil:
		return nil, errors.New("broker: router is required")
	case opts.Pool == nil:
		return nil, errors.New("broker: publisher pool is required")
	case opts.Connector == nil:
		return nil, errors.New("broker: log store connector is required")
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	if opts.Node == "" {
		opts.Node, _ = os.Hostname()
	}
	if opts.Stats == nil {
		opts.Stats = stats.New(opts.Node)
	}
	return &Broker{
		apps:             opts.Apps,
		router:           opts.Router,
		pool:             opts.Pool,
		connector:        opts.Connector,
		kv:               kv.New(opts.Pool),
		stats:            opts.Stats,
		logger:           opts.Logger.With(logpkg.Component("broker")),
		maxSubscriptions: opts.MaxSubscriptions,
		node:             opts.Node,
		version:          opts.Version,
		statsInterval:    opts.StatsInterval,
		flushInterval:    opts.FlushInterval,
		sessions:         make(map[string]*session),
	}, nil
}

// Stats exposes the broker counters.
func (b *Broker) Stats() *stats.Stats { return b.stats }

// Run drives the background loops (stats publisher, batch flusher) until
// ctx is done.
func (b *Broker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if b.statsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.stats.Run(ctx, b.pool, b.statsInterval, b.apps.ChannelMaxLength(), b.logger)
		}()
	}
	if b.flushInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.pool.RunFlusher(ctx, b.flushInterval)
		}()
	}
	wg.Wait()
}

// Serve runs one connection of tenant until the peer goes away, a fatal
// protocol error occurs, ctx is done or the connection is closed by an
// admin. conn is closed on return.
func (b *Broker) Serve(ctx context.Context, conn Conn, tenant, userAgent string) error {
	id, err := auth.GenerateConnectionID()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if userAgent == "" {
		userAgent = defaultRole
	}
	ctx, cancel := context.WithCancel(logpkg.NewContext(ctx,
		logpkg.Str(logpkg.ConnIDKey, id), logpkg.Str(logpkg.TenantKey, tenant)))
	defer cancel()
	s := newSession(id, tenant, userAgent, conn, b.logger.WithContext(ctx))
	s.cancel = cancel

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	b.sessions[id] = s
	b.wg.Add(1)
	count := len(b.sessions)
	b.mu.Unlock()
	defer b.wg.Done()

	b.stats.IncrConnections()
	start := time.Now()
	s.logger.Info("connection opened", logpkg.Str("user_agent", userAgent), logpkg.Int("connections", count))

	var msgCount int
	defer func() {
		b.teardown(s)
		s.log().Info("connection closed",
			logpkg.Str("uptime", stats.FormatUptime(time.Since(start))),
			logpkg.Int("msgcount", msgCount),
			logpkg.Int("connections", b.connectionCount()))
	}()

	for {
		data, err := conn.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		msgCount++
		if err := b.dispatch(ctx, s, data); err != nil {
			return err
		}
		if !s.ok {
			return fmt.Errorf("%w: %v", ErrFatal, s.fatal.Body)
		}
	}
}

func (b *Broker) teardown(s *session) {
	b.mu.Lock()
	delete(b.sessions, s.id)
	b.mu.Unlock()

	subs := s.drain()
	if len(subs) > 0 {
		s.log().Debug("cancelling subscriptions", logpkg.Int("count", len(subs)))
	}
	for _, sub := range subs {
		sub.cancel()
	}
	for _, sub := range subs {
		<-sub.done
	}
	s.cancel()
	_ = s.conn.Close()
	b.stats.DecrConnections()
}

func (b *Broker) connectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Connections returns the ids of the live connections, sorted.
func (b *Broker) Connections() []string {
	b.mu.Lock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// CloseConnection closes the connection with id. It reports whether the
// connection existed.
func (b *Broker) CloseConnection(id string) bool {
	b.mu.Lock()
	s, ok := b.sessions[id]
	b.mu.Unlock()
	if ok {
		s.close()
	}
	return ok
}

// CloseAll closes every connection but except and returns how many were
// closed.
func (b *Broker) CloseAll(except string) int {
	b.mu.Lock()
	targets := make([]*session, 0, len(b.sessions))
	for id, s := range b.sessions {
		if id != except {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()
	for _, s := range targets {
		s.close()
	}
	return len(targets)
}

// Shutdown refuses new connections, closes the live ones, waits for their
// teardown and flushes pending publishes.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.CloseAll("")

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.pool.Flush(ctx)
}
