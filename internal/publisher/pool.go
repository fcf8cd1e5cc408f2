package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/rtm/internal/logstore"
	"github.com/rzbill/rtm/internal/router"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

// Options configures a Pool.
type Options struct {
	Router    router.Router
	Connector logstore.Connector
	BatchSize int
	MaxLen    int
	Logger    logpkg.Logger
}

// Pool caches one Pipelined per (tenant, endpoint). Keying on the routed
// endpoint rather than the channel gives write/read affinity and bounds
// connections to tenants x endpoints.
type Pool struct {
	router    router.Router
	connector logstore.Connector
	batchSize int
	maxLen    int
	logger    logpkg.Logger

	mu         sync.Mutex
	publishers map[string]*Pipelined
}

// NewPool builds an empty pool.
func NewPool(opts Options) *Pool {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	return &Pool{
		router:     opts.Router,
		connector:  opts.Connector,
		batchSize:  opts.BatchSize,
		maxLen:     opts.MaxLen,
		logger:     opts.Logger.With(logpkg.Component("publisher")),
		publishers: make(map[string]*Pipelined),
	}
}

func (p *Pool) key(tenant, channel string) (string, string) {
	endpoint := p.router.Route(router.ChannelKey(tenant, channel))
	return tenant + "::" + endpoint, endpoint
}

// Get returns the publisher serving channel of tenant, connecting on first use.
func (p *Pool) Get(ctx context.Context, tenant, channel string) (*Pipelined, error) {
	key, endpoint := p.key(tenant, channel)
	p.mu.Lock()
	pub, ok := p.publishers[key]
	p.mu.Unlock()
	if ok {
		return pub, nil
	}

	client, err := p.connector.Dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.publishers[key]; ok {
		_ = client.Close()
		return existing, nil
	}
	pub = NewPipelined(client, p.batchSize, p.maxLen)
	p.publishers[key] = pub
	p.logger.Debug("publisher created", logpkg.Str("tenant", tenant), logpkg.Str("endpoint", endpoint))
	return pub, nil
}

// Push routes job and writes it through its publisher. Backend errors evict
// the publisher so the next call reconnects.
func (p *Pool) Push(ctx context.Context, job Job, batch bool) error {
	pub, err := p.Get(ctx, job.Tenant, job.Channel)
	if err != nil {
		return err
	}
	if err := pub.Push(ctx, job, batch); err != nil {
		p.evict(job.Tenant, job.Channel, pub)
		return fmt.Errorf("publish to %s: %w", pub.Endpoint(), err)
	}
	return nil
}

// PublishNow writes job immediately, trimmed to maxLen, evicting the
// publisher on error.
func (p *Pool) PublishNow(ctx context.Context, job Job, maxLen int) (string, error) {
	pub, err := p.Get(ctx, job.Tenant, job.Channel)
	if err != nil {
		return "", err
	}
	pos, err := pub.PublishNow(ctx, job, maxLen)
	if err != nil {
		p.evict(job.Tenant, job.Channel, pub)
		return "", fmt.Errorf("publish to %s: %w", pub.Endpoint(), err)
	}
	return pos, nil
}

// Do runs fn on the connection serving channel of tenant, serialized with
// the publisher's writes. An error from fn evicts that publisher.
func (p *Pool) Do(ctx context.Context, tenant, channel string, fn func(c logstore.Client) error) error {
	pub, err := p.Get(ctx, tenant, channel)
	if err != nil {
		return err
	}
	if err := pub.Do(fn); err != nil {
		p.evict(tenant, channel, pub)
		return err
	}
	return nil
}

// Erase drops and closes the publisher serving channel of tenant.
func (p *Pool) Erase(tenant, channel string) {
	p.evict(tenant, channel, nil)
}

// evict removes the entry for channel of tenant if it still holds failed.
// A replacement created after failed was evicted is left alone. A nil
// failed removes whatever is there.
func (p *Pool) evict(tenant, channel string, failed *Pipelined) {
	key, endpoint := p.key(tenant, channel)
	p.mu.Lock()
	pub, ok := p.publishers[key]
	if ok && failed != nil && pub != failed {
		ok = false
	}
	if ok {
		delete(p.publishers, key)
	}
	p.mu.Unlock()
	if ok {
		p.logger.Warn("publisher evicted", logpkg.Str("tenant", tenant), logpkg.Str("endpoint", endpoint))
		_ = pub.Close()
	}
}

func (p *Pool) snapshot() []*Pipelined {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Pipelined, 0, len(p.publishers))
	for _, pub := range p.publishers {
		out = append(out, pub)
	}
	return out
}

// Flush writes every queued job of every publisher.
func (p *Pool) Flush(ctx context.Context) error {
	var errs []error
	for _, pub := range p.snapshot() {
		if err := pub.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", pub.Endpoint(), err))
		}
	}
	return errors.Join(errs...)
}

// RunFlusher flushes batched queues every interval until ctx is done, so
// low-traffic tenants do not hold messages indefinitely.
func (p *Pool) RunFlusher(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := p.Flush(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("periodic flush failed", logpkg.Err(err))
			}
		}
	}
}

// Len is the number of cached publishers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.publishers)
}

// Close flushes and closes every publisher.
func (p *Pool) Close(ctx context.Context) error {
	err := p.Flush(ctx)
	p.mu.Lock()
	pubs := p.publishers
	p.publishers = make(map[string]*Pipelined)
	p.mu.Unlock()
	for _, pub := range pubs {
		_ = pub.Close()
	}
	return err
}
