package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rzbill/rtm/internal/auth"
)

// ErrClosed is returned by calls on a closed Client.
var ErrClosed = errors.New("client: connection closed")

const actionSubscriptionData = "rtm/subscription/data"

// Credentials identify a role of the app the client connects to.
type Credentials struct {
	Role   string
	Secret string
}

// Frame is one PDU as received from the broker.
type Frame struct {
	Action string          `json:"action,omitempty"`
	ID     json.RawMessage `json:"id,omitempty"`
	Body   json.RawMessage `json:"body"`
}

// Error is an `<action>/error` reply, or a bad_schema frame when Action is
// empty.
type Error struct {
	Action string
	Body   map[string]interface{}
}

func (e *Error) Error() string {
	reason, _ := e.Body["reason"].(string)
	code, _ := e.Body["error"].(string)
	switch {
	case code != "" && reason != "":
		return fmt.Sprintf("%s: %s: %s", e.Action, code, reason)
	case reason != "":
		return fmt.Sprintf("%s: %s", e.Action, reason)
	case code != "":
		return fmt.Sprintf("%s: %s", e.Action, code)
	}
	return e.Action + ": error"
}

// Reason returns the reason field of the error body.
func (e *Error) Reason() string {
	r, _ := e.Body["reason"].(string)
	return r
}

// Option customises Dial.
type Option func(*options)

type options struct {
	dialer    *websocket.Dialer
	userAgent string
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option { return func(o *options) { o.dialer = d } }

// WithUserAgent sets the User-Agent header of the upgrade request.
func WithUserAgent(ua string) Option { return func(o *options) { o.userAgent = ua } }

// Client is an authenticated broker connection.
type Client struct {
	ws  *websocket.Conn
	wmu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan *Frame
	subs    map[string]*Subscription
	err     error
	closing bool

	done chan struct{}

	connectionID string
	node         string
	version      string
}

// Dial connects to rawURL (ws:// or wss://) as appkey and authenticates
// with creds.
func Dial(ctx context.Context, rawURL, appkey string, creds Credentials, opts ...Option) (*Client, error) {
	o := options{dialer: websocket.DefaultDialer, userAgent: "rtm-go"}
	for _, opt := range opts {
		opt(&o)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	q := u.Query()
	q.Set("appkey", appkey)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("User-Agent", o.userAgent)
	ws, resp, err := o.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("client: appkey %q rejected: %w", appkey, err)
		}
		return nil, fmt.Errorf("client: dial: %w", err)
	}
	c := &Client{
		ws:      ws,
		pending: make(map[int64]chan *Frame),
		subs:    make(map[string]*Subscription),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	if err := c.authenticate(ctx, creds); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) authenticate(ctx context.Context, creds Credentials) error {
	var hs struct {
		Data struct {
			Nonce        string `json:"nonce"`
			Version      string `json:"version"`
			ConnectionID string `json:"connection_id"`
			Node         string `json:"node"`
		} `json:"data"`
	}
	err := c.call(ctx, "auth/handshake", map[string]interface{}{
		"method": auth.Method,
		"data":   map[string]interface{}{"role": creds.Role},
	}, &hs)
	if err != nil {
		return err
	}
	c.connectionID, c.node, c.version = hs.Data.ConnectionID, hs.Data.Node, hs.Data.Version

	return c.call(ctx, "auth/authenticate", map[string]interface{}{
		"method":      auth.Method,
		"credentials": map[string]interface{}{"hash": auth.ComputeHash([]byte(creds.Secret), hs.Data.Nonce)},
	}, nil)
}

// ConnectionID is the id the broker assigned to this connection.
func (c *Client) ConnectionID() string { return c.connectionID }

// Node is the broker node name reported at handshake.
func (c *Client) Node() string { return c.node }

// Version is the broker version reported at handshake.
func (c *Client) Version() string { return c.version }

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection and waits for the read loop to stop.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	c.wmu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}

func (c *Client) send(id int64, action string, body interface{}) error {
	data, err := json.Marshal(map[string]interface{}{"action": action, "id": id, "body": body})
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// register reserves an id and, optionally, a subscription slot so that
// data pushed right after the ack is not lost.
func (c *Client) register(sub *Subscription) (int64, chan *Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, nil, c.err
	}
	c.nextID++
	ch := make(chan *Frame, 1)
	c.pending[c.nextID] = ch
	if sub != nil {
		if old, ok := c.subs[sub.id]; ok {
			old.finish(nil)
		}
		c.subs[sub.id] = sub
	}
	return c.nextID, ch, nil
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// roundTrip sends a request and waits for the reply carrying its id.
func (c *Client) roundTrip(ctx context.Context, action string, body interface{}, sub *Subscription) (*Frame, error) {
	id, ch, err := c.register(sub)
	if err != nil {
		return nil, err
	}
	defer c.forget(id)
	if err := c.send(id, action, body); err != nil {
		return nil, fmt.Errorf("client: send %s: %w", action, err)
	}
	select {
	case f := <-ch:
		if f.Action == "" || strings.HasSuffix(f.Action, "/error") {
			return f, frameError(f)
		}
		return f, nil
	case <-c.done:
		return nil, c.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// call is roundTrip decoding the reply body into out when out is not nil.
func (c *Client) call(ctx context.Context, action string, body, out interface{}) error {
	f, err := c.roundTrip(ctx, action, body, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(f.Body, out); err != nil {
		return fmt.Errorf("client: decode %s reply: %w", action, err)
	}
	return nil
}

func frameError(f *Frame) error {
	e := &Error{Action: f.Action}
	_ = json.Unmarshal(f.Body, &e.Body)
	if e.Action == "" {
		e.Action = "bad_schema"
	}
	return e
}

func (c *Client) readLoop() {
	var err error
	for {
		var data []byte
		if _, data, err = c.ws.ReadMessage(); err != nil {
			break
		}
		var f Frame
		if jerr := json.Unmarshal(data, &f); jerr != nil {
			continue
		}
		if f.Action == actionSubscriptionData {
			c.deliver(&f)
			continue
		}
		if f.Action == "" {
			// bad_schema is not correlated; the broker drops us next.
			err = frameError(&f)
			break
		}
		id, perr := strconv.ParseInt(string(f.ID), 10, 64)
		if perr != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[id]
		c.mu.Unlock()
		if ok {
			ch <- &f
		}
	}
	c.shutdown(err)
}

func (c *Client) deliver(f *Frame) {
	var m Message
	if err := json.Unmarshal(f.Body, &m); err != nil {
		return
	}
	c.mu.Lock()
	sub, ok := c.subs[m.SubscriptionID]
	c.mu.Unlock()
	if ok {
		sub.push(m)
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if err == nil || c.closing || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		err = ErrClosed
	}
	c.err = err
	subs := c.subs
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()
	close(c.done)
	for _, s := range subs {
		s.finish(err)
	}
}

func (c *Client) dropSubscription(s *Subscription) {
	c.mu.Lock()
	if cur, ok := c.subs[s.id]; ok && cur == s {
		delete(c.subs, s.id)
	}
	c.mu.Unlock()
}
