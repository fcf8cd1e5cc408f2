package broker

import "context"

func (b *Broker) handleGetConnections(ctx context.Context, s *session, req *Request) error {
	return b.reply(ctx, s, req, map[string]interface{}{"connections": b.Connections()})
}

func (b *Broker) handleCloseConnection(ctx context.Context, s *session, req *Request) error {
	id, ok := req.String("connection_id")
	if !ok {
		return requestError("Missing connection id")
	}
	if id == s.id {
		// Answer first; closing ourselves ends the read loop.
		if err := b.reply(ctx, s, req, nil); err != nil {
			return err
		}
		b.CloseConnection(id)
		return nil
	}
	if !b.CloseConnection(id) {
		return requestError("Cannot find connection id")
	}
	return b.reply(ctx, s, req, nil)
}

func (b *Broker) handleCloseAllConnections(ctx context.Context, s *session, req *Request) error {
	n := b.CloseAll(s.id)
	return b.reply(ctx, s, req, map[string]interface{}{"closed": n})
}
