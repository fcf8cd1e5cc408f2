package broker

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	logpkg "github.com/rzbill/rtm/pkg/log"
)

// Conn is one client connection. ReadMessage blocks for the next frame;
// WriteMessage is never called concurrently.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}

const defaultRole = "na"

// session is the state of one connection. Fields below mu are touched by
// subscription goroutines too; the rest only by the connection goroutine.
type session struct {
	id        string
	tenant    string
	userAgent string
	conn      Conn
	logger    logpkg.Logger
	cancel    context.CancelFunc

	role          string
	authenticated bool
	permissions   map[string]bool
	nonce         string
	ok            bool
	fatal         *Response

	wmu sync.Mutex

	mu            sync.Mutex
	subscriptions map[string]*subscription
	closing       bool
}

func newSession(id, tenant, userAgent string, conn Conn, logger logpkg.Logger) *session {
	return &session{
		id:            id,
		tenant:        tenant,
		userAgent:     userAgent,
		conn:          conn,
		logger:        logger,
		role:          defaultRole,
		ok:            true,
		subscriptions: make(map[string]*subscription),
	}
}

func (s *session) log() logpkg.Logger {
	return s.logger.With(logpkg.Str(logpkg.RoleKey, s.role))
}

func (s *session) write(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(ctx, data)
}

// markFatal records the error PDU that ends the session.
func (s *session) markFatal(resp Response) {
	s.ok = false
	s.fatal = &resp
}

func (s *session) can(perm string) bool { return s.permissions[perm] }

// addSubscription registers sub, returning the one it replaces if any.
func (s *session) addSubscription(sub *subscription) (*subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, false
	}
	prev := s.subscriptions[sub.key]
	s.subscriptions[sub.key] = sub
	return prev, true
}

func (s *session) removeSubscription(sub *subscription) {
	s.mu.Lock()
	if s.subscriptions[sub.key] == sub {
		delete(s.subscriptions, sub.key)
	}
	s.mu.Unlock()
}

func (s *session) subscription(key string) (*subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[key]
	return sub, ok
}

func (s *session) subscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscriptions)
}

// drain stops accepting subscriptions and returns the live ones.
func (s *session) drain() []*subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	out := make([]*subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// close ends the session from outside its goroutine.
func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.conn.Close()
}
