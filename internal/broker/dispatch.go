package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rzbill/rtm/internal/apps"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

type handlerFunc func(b *Broker, ctx context.Context, s *session, req *Request) error

var handlers = map[string]handlerFunc{
	"auth/handshake":              (*Broker).handleHandshake,
	"auth/authenticate":           (*Broker).handleAuthenticate,
	"rtm/publish":                 (*Broker).handlePublish,
	"rtm/subscribe":               (*Broker).handleSubscribe,
	"rtm/unsubscribe":             (*Broker).handleUnsubscribe,
	"rtm/read":                    (*Broker).handleRead,
	"rtm/write":                   (*Broker).handleWrite,
	"rtm/delete":                  (*Broker).handleDelete,
	"admin/get_connections":       (*Broker).handleGetConnections,
	"admin/close_connection":      (*Broker).handleCloseConnection,
	"admin/close_all_connections": (*Broker).handleCloseAllConnections,
}

// Actions lists the actions the broker answers.
func Actions() []string {
	out := make([]string, 0, len(handlers))
	for a := range handlers {
		out = append(out, a)
	}
	return out
}

// authorized reports whether perms allow action. Auth actions are always
// allowed, admin actions need the admin permission, anything else needs
// its verb.
func authorized(perms map[string]bool, action string) bool {
	group, verb, _ := strings.Cut(action, "/")
	switch group {
	case groupAuth:
		return true
	case groupAdmin:
		return perms[apps.PermAdmin]
	default:
		return perms[verb]
	}
}

// dispatch handles one inbound frame. A non-nil error means the connection
// can no longer be written to; fatal protocol errors only flip s.ok.
func (b *Broker) dispatch(ctx context.Context, s *session, data []byte) error {
	req, err := ParseRequest(data)
	if err != nil {
		return b.badFormat(ctx, s, fmt.Sprintf("malformed json pdu: %v", err))
	}
	s.log().Debug("<", logpkg.Str("pdu", string(data)))

	if req.Action == "" {
		return b.badFormat(ctx, s, "missing action")
	}
	handler, ok := handlers[req.Action]
	if !ok {
		return b.badFormat(ctx, s, "invalid action: "+req.Action)
	}
	if !s.authenticated && !strings.HasPrefix(req.Action, groupAuth+"/") {
		return b.reject(ctx, s, req, requestError("action %q needs authentication", req.Action))
	}
	if !authorized(s.permissions, req.Action) {
		return b.reject(ctx, s, req, requestError("action %q: permission denied", req.Action))
	}
	if err := handler(b, ctx, s, req); err != nil {
		return b.reject(ctx, s, req, err)
	}
	return nil
}

func (b *Broker) badFormat(ctx context.Context, s *session, reason string) error {
	resp := badSchema(reason)
	s.log().Warn("bad request", logpkg.Str("reason", reason))
	s.markFatal(resp)
	return s.write(ctx, resp)
}

// reject answers a handler error. Protocol errors are written back; any
// other error is a transport failure and ends the connection.
func (b *Broker) reject(ctx context.Context, s *session, req *Request, err error) error {
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		return err
	}
	s.log().Warn("request failed", logpkg.Str("action", req.Action), logpkg.Err(perr), logpkg.Bool("fatal", perr.Fatal))
	resp := perr.response(req)
	if perr.Fatal {
		s.markFatal(resp)
	}
	return s.write(ctx, resp)
}

func (b *Broker) reply(ctx context.Context, s *session, req *Request, body interface{}) error {
	return s.write(ctx, req.ok(body))
}
