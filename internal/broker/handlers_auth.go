package broker

import (
	"context"

	"github.com/rzbill/rtm/internal/auth"
)

func (b *Broker) handleHandshake(ctx context.Context, s *session, req *Request) error {
	method, _ := req.Body["method"].(string)
	if method != auth.Method {
		return requestError("invalid auth method: %v", req.Body["method"])
	}
	role := ""
	if data, ok := req.Body["data"].(map[string]interface{}); ok {
		role, _ = data["role"].(string)
	}
	nonce, err := auth.GenerateNonce()
	if err != nil {
		return requestError("handshake: %v", err)
	}
	s.role = role
	s.nonce = nonce
	// A new handshake restarts authentication.
	s.authenticated = false
	s.permissions = nil

	return b.reply(ctx, s, req, map[string]interface{}{
		"data": map[string]interface{}{
			"nonce":         nonce,
			"version":       b.version,
			"connection_id": s.id,
			"node":          b.node,
		},
	})
}

func authFailed(reason string) error {
	return &ProtocolError{Body: map[string]interface{}{"error": "authentication_failed", "reason": reason}}
}

func (b *Broker) handleAuthenticate(ctx context.Context, s *session, req *Request) error {
	secret, err := b.apps.Secret(s.tenant, s.role)
	if err != nil {
		return authFailed("invalid_role")
	}
	var hash string
	if creds, ok := req.Body["credentials"].(map[string]interface{}); ok {
		hash, _ = creds["hash"].(string)
	}
	if s.nonce == "" || !auth.Verify(secret, s.nonce, hash) {
		return authFailed("challenge_failed")
	}
	perms, err := b.apps.Permissions(s.tenant, s.role)
	if err != nil {
		return authFailed("invalid_role")
	}
	s.permissions = make(map[string]bool, len(perms))
	for _, p := range perms {
		s.permissions[p] = true
	}
	s.authenticated = true
	s.log().Info("authenticated")
	return b.reply(ctx, s, req, nil)
}
