package broker

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/rzbill/rtm/internal/filter"
	"github.com/rzbill/rtm/internal/logstore"
	"github.com/rzbill/rtm/internal/publisher"
	"github.com/rzbill/rtm/internal/router"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

// subscription is one live tail owned by a session.
type subscription struct {
	key    string
	id     string
	role   string
	cancel context.CancelFunc
	done   chan struct{}
}

type subscribeParams struct {
	subscriptionID string
	channel        string
	filter         *filter.Filter
	position       string
	batchSize      int
}

// runner tails one channel for one subscription: it connects, sends the
// deferred subscribe ack and then streams matching entries as data frames.
type runner struct {
	b      *Broker
	s      *session
	sub    *subscription
	req    *Request
	params subscribeParams
	tenant string
	logger logpkg.Logger

	frameID  int64
	messages []interface{}
}

func (b *Broker) startSubscription(ctx context.Context, s *session, req *Request, p subscribeParams) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		key:    p.subscriptionID + s.id,
		id:     p.subscriptionID,
		role:   s.role,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	prev, ok := s.addSubscription(sub)
	if !ok {
		cancel()
		close(sub.done)
		return
	}
	if prev != nil {
		prev.cancel()
	}
	b.stats.IncrSubscriptions(sub.role)

	r := &runner{
		b:      b,
		s:      s,
		sub:    sub,
		req:    req,
		params: p,
		tenant: s.tenant,
		logger: s.log().With(logpkg.Str(logpkg.SubscriptionKey, p.subscriptionID), logpkg.Str(logpkg.ChannelKey, p.channel)),
	}
	go r.run(ctx)
}

func (r *runner) run(ctx context.Context) {
	defer func() {
		r.s.removeSubscription(r.sub)
		r.b.stats.DecrSubscriptionsBy(r.sub.role, 1)
		r.sub.cancel()
		close(r.sub.done)
	}()

	err := r.stream(ctx)
	switch {
	case err == nil, ctx.Err() != nil:
		r.logger.Debug("subscription closed")
	default:
		r.logger.Warn("subscription ended", logpkg.Err(err))
	}
}

func (r *runner) key() string {
	return publisher.Job{Tenant: r.tenant, Channel: r.params.channel}.Key()
}

func (r *runner) ackError(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	resp := Response{
		Action: "rtm/subscribe/error",
		ID:     r.req.ID,
		Body:   map[string]interface{}{"error": "subscribe error: server cannot connect to log store"},
	}
	if err := r.s.write(ctx, resp); err != nil {
		return err
	}
	return cause
}

// stream runs the Connecting and Streaming states. The log store client is
// released on every exit path.
func (r *runner) stream(ctx context.Context) error {
	endpoint := r.b.router.Route(router.ChannelKey(r.tenant, r.params.channel))
	client, err := r.b.connector.Dial(ctx, endpoint)
	if err != nil {
		return r.ackError(ctx, err)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return r.ackError(ctx, err)
	}
	key := r.key()
	exists, err := client.Exists(ctx, key)
	if err != nil {
		return r.ackError(ctx, err)
	}
	length, err := client.Len(ctx, key)
	if err != nil {
		return r.ackError(ctx, err)
	}
	cursor := r.params.position
	if logstore.IsLatest(cursor) {
		if cursor, err = client.LastPosition(ctx, key); err != nil {
			return r.ackError(ctx, err)
		}
	}
	r.logger.Debug("subscription connected",
		logpkg.Str("endpoint", client.Endpoint()),
		logpkg.Str("position", cursor),
		logpkg.Bool("stream_exists", exists),
		logpkg.Int64("stream_length", length))

	ack := r.req.ok(map[string]interface{}{
		"position":        cursor,
		"subscription_id": r.params.subscriptionID,
		"node":            client.Endpoint(),
		"stream_exists":   exists,
		"stream_length":   length,
	})
	if err := r.s.write(ctx, ack); err != nil {
		return err
	}
	return client.Tail(ctx, key, cursor, r.handle(ctx))
}

func (r *runner) handle(ctx context.Context) func(logstore.Entry) error {
	return func(e logstore.Entry) error {
		msg, err := storedMessage(e.Value)
		if err != nil {
			r.logger.Debug("skipping undecodable entry", logpkg.Str("position", e.Position), logpkg.Err(err))
			return nil
		}
		r.b.stats.UpdateSubscribed(r.sub.role, len(e.Value))
		r.b.stats.UpdateChannelSubscribed(r.params.channel)

		if f := r.params.filter; f != nil {
			out, ok := f.Match(filterTarget(msg))
			if !ok {
				return nil
			}
			msg = out
		}
		r.messages = append(r.messages, msg)
		if len(r.messages) < r.params.batchSize {
			return nil
		}
		frame := Response{
			Action: actionSubscriptionData,
			ID:     json.RawMessage(strconv.FormatInt(r.frameID, 10)),
			Body: map[string]interface{}{
				"subscription_id": r.params.subscriptionID,
				"messages":        r.messages,
				"position":        e.Position,
			},
		}
		r.frameID++
		r.messages = nil
		return r.s.write(ctx, frame)
	}
}

// storedMessage extracts body.message from a stored publish PDU. Values
// that are not publish PDUs (kv writes) are forwarded as stored.
func storedMessage(value []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(value, &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return v, nil
	}
	body, ok := obj["body"].(map[string]interface{})
	if !ok {
		return v, nil
	}
	msg, ok := body["message"]
	if !ok {
		return nil, errors.New("publish pdu without message")
	}
	return msg, nil
}

// filterTarget is message.messages when that is set and non-empty, else the
// message itself.
func filterTarget(msg interface{}) interface{} {
	obj, ok := msg.(map[string]interface{})
	if !ok {
		return msg
	}
	switch m := obj["messages"].(type) {
	case nil:
	case []interface{}:
		if len(m) > 0 {
			return m
		}
	case map[string]interface{}:
		if len(m) > 0 {
			return m
		}
	case string:
		if m != "" {
			return m
		}
	case bool:
		if m {
			return m
		}
	case float64:
		if m != 0 {
			return m
		}
	}
	return msg
}
