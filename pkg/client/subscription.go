package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrStop, returned by a Handler, ends the subscription without error.
var ErrStop = errors.New("client: stop subscription")

// Message is one rtm/subscription/data push.
type Message struct {
	SubscriptionID string            `json:"subscription_id"`
	Messages       []json.RawMessage `json:"messages"`
	Position       string            `json:"position"`
}

// Handler receives the pushes of one subscription, in order.
type Handler func(ctx context.Context, sub *Subscription, m Message) error

// SubscribeOptions are the optional fields of rtm/subscribe.
type SubscribeOptions struct {
	// Filter is a SELECT ... FROM <channel> [WHERE ...] expression; its
	// channel wins over the channel argument.
	Filter string
	// Position is an `<ms>-<seq>` cursor; empty means latest.
	Position string
	// SubscriptionID defaults to the channel.
	SubscriptionID string
	// BatchSize groups that many messages per push; zero leaves the broker
	// default of one.
	BatchSize int
	// ResumeFromPositionID names a kv channel holding the last processed
	// position. When it holds one, the subscription starts from there, and
	// SavePosition updates it.
	ResumeFromPositionID string
}

// Subscription is a live subscription. Handler calls happen on its own
// goroutine; the Client read loop never blocks on them.
type Subscription struct {
	c      *Client
	id     string
	resume string
	ctx    context.Context
	cancel context.CancelFunc

	// Filled from the subscribe ack.
	Position     string `json:"position"`
	Node         string `json:"node"`
	StreamExists bool   `json:"stream_exists"`
	StreamLength int64  `json:"stream_length"`

	mu       sync.Mutex
	queue    []Message
	wake     chan struct{}
	finished bool
	err      error
	done     chan struct{}
}

// ID is the subscription id.
func (s *Subscription) ID() string { return s.id }

// Done is closed once the handler goroutine has returned.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription ended; nil after Unsubscribe or ErrStop.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SavePosition records position in the ResumeFromPositionID channel.
func (s *Subscription) SavePosition(ctx context.Context, position string) error {
	if s.resume == "" {
		return errors.New("client: subscription has no resume channel")
	}
	_, err := s.c.Write(ctx, s.resume, position)
	return err
}

func (s *Subscription) push(m Message) {
	s.mu.Lock()
	if !s.finished {
		s.queue = append(s.queue, m)
	}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// finish stops delivery. Queued pushes are dropped.
func (s *Subscription) finish(err error) {
	s.mu.Lock()
	if !s.finished {
		s.finished = true
		s.err = err
		s.queue = nil
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *Subscription) run(h Handler) {
	defer close(s.done)
	defer s.c.dropSubscription(s)
	for {
		s.mu.Lock()
		if s.finished {
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, m := range batch {
			if err := h(s.ctx, s, m); err != nil {
				if errors.Is(err, ErrStop) {
					err = nil
				}
				s.finish(err)
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-s.wake:
		case <-s.ctx.Done():
		}
	}
}

// Subscribe starts a subscription on channel and returns once the broker
// acknowledged it. h runs until Unsubscribe, an error from h, or the end
// of the connection.
func (c *Client) Subscribe(ctx context.Context, channel string, opts SubscribeOptions, h Handler) (*Subscription, error) {
	subID := opts.SubscriptionID
	if subID == "" {
		subID = channel
	}
	body := map[string]interface{}{"subscription_id": subID}
	if channel != "" {
		body["channel"] = channel
	}
	if opts.Filter != "" {
		body["filter"] = opts.Filter
	}
	position := opts.Position
	if opts.ResumeFromPositionID != "" {
		saved, err := c.Read(ctx, opts.ResumeFromPositionID, "")
		if err != nil {
			return nil, err
		}
		var p string
		if saved != nil && json.Unmarshal(saved, &p) == nil && p != "" {
			position = p
		}
	}
	if position != "" {
		body["position"] = position
	}
	if opts.BatchSize > 0 {
		body["batch_size"] = opts.BatchSize
	}

	sctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		c:      c,
		id:     subID,
		resume: opts.ResumeFromPositionID,
		ctx:    sctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	f, err := c.roundTrip(ctx, "rtm/subscribe", body, sub)
	if err != nil {
		sub.finish(err)
		c.dropSubscription(sub)
		close(sub.done)
		return nil, err
	}
	if err := json.Unmarshal(f.Body, sub); err != nil {
		sub.finish(err)
		c.dropSubscription(sub)
		close(sub.done)
		return nil, err
	}
	go sub.run(h)
	return sub, nil
}

// Unsubscribe cancels the subscription with id and waits for its handler
// to return. A handler stops its own subscription by returning ErrStop.
func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	c.mu.Lock()
	sub := c.subs[id]
	c.mu.Unlock()
	if err := c.call(ctx, "rtm/unsubscribe", map[string]interface{}{"subscription_id": id}, nil); err != nil {
		return err
	}
	if sub == nil {
		return nil
	}
	sub.finish(nil)
	select {
	case <-sub.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
