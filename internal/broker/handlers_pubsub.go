package broker

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/rzbill/rtm/internal/filter"
	"github.com/rzbill/rtm/internal/logstore"
	"github.com/rzbill/rtm/internal/publisher"
)

func (b *Broker) handlePublish(ctx context.Context, s *session, req *Request) error {
	b.apps.ChannelBuilder(s.tenant).Apply(req.Body)

	if msg, ok := req.Body["message"]; !ok || msg == nil {
		return requestError("publish: empty message")
	}
	channel, hasChannel := req.Body["channel"]
	list, hasList := req.Body["channels"]
	if (!hasChannel || channel == nil) && (!hasList || list == nil) {
		return requestError("publish: no channel or channels field")
	}
	var channels []interface{}
	if hasList && list != nil {
		l, ok := list.([]interface{})
		if !ok {
			return requestError("publish: channels must be a list")
		}
		channels = l
	} else {
		channels = []interface{}{channel}
	}

	batch := b.apps.BatchPublishEnabled(s.tenant)
	for _, c := range channels {
		name, ok := c.(string)
		if !ok || name == "" {
			continue
		}
		job := publisher.Job{Tenant: s.tenant, Channel: name, Payload: req.raw}
		if err := b.pool.Push(ctx, job, batch); err != nil {
			return backendError("publish", err)
		}
		b.stats.UpdateChannelPublished(name)
	}
	if err := b.reply(ctx, s, req, map[string]interface{}{"channels": channels}); err != nil {
		return err
	}
	b.stats.UpdatePublished(s.role, len(req.raw))
	return nil
}

const defaultBatchSize = 1

// parseBatchSize accepts a positive integer given as a number or a string.
func parseBatchSize(v interface{}) (int, bool) {
	switch n := v.(type) {
	case nil:
		return defaultBatchSize, true
	case float64:
		if n < 1 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || i < 1 {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func (b *Broker) handleSubscribe(ctx context.Context, s *session, req *Request) error {
	channel, hasChannel := req.String("channel")
	subID, hasID := req.String("subscription_id")
	if !hasChannel && !hasID {
		return requestError("missing channel and subscription_id")
	}
	if b.maxSubscriptions >= 0 && s.subscriptionCount()+1 > b.maxSubscriptions {
		return fatalError("subscriptions count over max limit: %d", b.maxSubscriptions)
	}
	if !hasChannel {
		channel = subID
	}
	if !hasID {
		subID = channel
	}

	var f *filter.Filter
	if src, _ := req.String("filter"); src != "" {
		var err error
		if f, err = filter.Compile(src); err != nil {
			return fatalError("Invalid SQL expression %s", src)
		}
		channel = f.Channel()
	}

	position := ""
	if raw, ok := req.Body["position"]; ok && raw != nil {
		p, isString := raw.(string)
		if !isString || !logstore.ValidatePosition(p) {
			return fatalError("Invalid position: %v", raw)
		}
		position = p
	}

	batchSize, ok := parseBatchSize(req.Body["batch_size"])
	if !ok {
		return fatalError("Invalid batch size: %v", req.Body["batch_size"])
	}

	b.startSubscription(ctx, s, req, subscribeParams{
		subscriptionID: subID,
		channel:        channel,
		filter:         f,
		position:       position,
		batchSize:      batchSize,
	})
	return nil
}

func (b *Broker) handleUnsubscribe(ctx context.Context, s *session, req *Request) error {
	subID, ok := req.String("subscription_id")
	if !ok {
		return requestError("Body Missing subscriptionId")
	}
	sub, ok := s.subscription(subID + s.id)
	if !ok {
		return requestError("Invalid subscriptionId: %s", subID)
	}
	if err := b.reply(ctx, s, req, nil); err != nil {
		return err
	}
	sub.cancel()
	return nil
}

// backendError renders a log store failure of op for the client.
func backendError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return requestError("%s: cannot connect to log store %v", op, err)
}
