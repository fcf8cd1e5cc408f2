package publisher

import (
	"context"
	"sync"

	"github.com/rzbill/rtm/internal/logstore"
)

// DefaultBatchSize applies when the configured batch size is <= 0.
const DefaultBatchSize = 100

// DefaultMaxLen is the trim length of published channels.
const DefaultMaxLen = 1000

// Job is one value to append to a channel of a tenant.
type Job struct {
	Tenant  string
	Channel string
	Payload []byte
}

// Key is the log-store key of the job's channel.
func (j Job) Key() string { return j.Tenant + "::" + j.Channel }

// Pipelined writes jobs to one log-store connection, either one by one or
// in pipelined batches. A mutex serializes queue mutation and writes.
type Pipelined struct {
	client    logstore.Client
	batchSize int
	maxLen    int

	mu    sync.Mutex
	queue []logstore.Record
}

// NewPipelined wraps client.
func NewPipelined(client logstore.Client, batchSize, maxLen int) *Pipelined {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Pipelined{client: client, batchSize: batchSize, maxLen: maxLen}
}

// Push writes job immediately, or when batch is set queues it and flushes the
// whole queue once it holds batchSize jobs.
func (p *Pipelined) Push(ctx context.Context, job Job, batch bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !batch {
		_, err := p.client.Append(ctx, job.Key(), job.Payload, p.maxLen)
		return err
	}
	p.queue = append(p.queue, logstore.Record{Key: job.Key(), Value: job.Payload, MaxLen: p.maxLen})
	if len(p.queue) < p.batchSize {
		return nil
	}
	return p.flushLocked(ctx)
}

// PublishNow writes job at once with an explicit trim length.
func (p *Pipelined) PublishNow(ctx context.Context, job Job, maxLen int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client.Append(ctx, job.Key(), job.Payload, maxLen)
}

// Flush writes every queued job.
func (p *Pipelined) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

func (p *Pipelined) flushLocked(ctx context.Context) error {
	if len(p.queue) == 0 {
		return nil
	}
	recs := p.queue
	p.queue = nil
	_, err := p.client.AppendBatch(ctx, recs)
	return err
}

// Pending is the number of queued jobs.
func (p *Pipelined) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Do runs fn on the connection under the publisher's lock.
func (p *Pipelined) Do(fn func(c logstore.Client) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.client)
}

// Endpoint is the log-store endpoint written to.
func (p *Pipelined) Endpoint() string { return p.client.Endpoint() }

// Close drops queued jobs and closes the connection.
func (p *Pipelined) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
	return p.client.Close()
}
