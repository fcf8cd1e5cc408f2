package broker

import (
	"context"
	"encoding/json"

	"github.com/rzbill/rtm/internal/logstore"
)

func (b *Broker) handleRead(ctx context.Context, s *session, req *Request) error {
	channel, ok := req.String("channel")
	if !ok {
		return requestError("read: missing channel field")
	}
	position := ""
	if raw, ok := req.Body["position"]; ok && raw != nil {
		p, isString := raw.(string)
		if !isString || !logstore.ValidatePosition(p) {
			return requestError("read: invalid position: %v", raw)
		}
		position = p
	}
	value, found, err := b.kv.Read(ctx, s.tenant, channel, position)
	if err != nil {
		return backendError("read", err)
	}
	var message interface{}
	if found {
		if err := json.Unmarshal(value, &message); err != nil {
			return requestError("read: stored value is not json: %v", err)
		}
		b.stats.UpdateReads(s.role, len(value))
	}
	return b.reply(ctx, s, req, map[string]interface{}{"message": message})
}

func (b *Broker) handleWrite(ctx context.Context, s *session, req *Request) error {
	message, ok := req.Body["message"]
	if !ok || message == nil {
		return requestError("write: empty message")
	}
	channel, ok := req.String("channel")
	if !ok {
		return requestError("write: missing channel field")
	}
	value, err := json.Marshal(message)
	if err != nil {
		return requestError("write: %v", err)
	}
	position, err := b.kv.Write(ctx, s.tenant, channel, value)
	if err != nil {
		return backendError("write", err)
	}
	b.stats.UpdateWrites(s.role, len(value))
	return b.reply(ctx, s, req, map[string]interface{}{"stream": position})
}

func (b *Broker) handleDelete(ctx context.Context, s *session, req *Request) error {
	channel, ok := req.String("channel")
	if !ok {
		return requestError("delete: missing channel field")
	}
	if err := b.kv.Delete(ctx, s.tenant, channel); err != nil {
		return backendError("delete", err)
	}
	return b.reply(ctx, s, req, nil)
}
