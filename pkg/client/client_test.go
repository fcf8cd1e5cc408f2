package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/rtm/internal/apps"
	"github.com/rzbill/rtm/internal/broker"
	"github.com/rzbill/rtm/internal/logstore"
	"github.com/rzbill/rtm/internal/publisher"
	"github.com/rzbill/rtm/internal/router"
	httpserver "github.com/rzbill/rtm/internal/server/http"
)

const testApps = `
apps:
  demo:
    roles:
      writer:
        secret: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
        permissions: [publish, subscribe, unsubscribe, read, write, delete]
      admin:
        secret: cccccccccccccccccccccccccccccccc
        permissions: [admin]
`

var (
	writer = Credentials{Role: "writer", Secret: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	admin  = Credentials{Role: "admin", Secret: "cccccccccccccccccccccccccccccccc"}
)

const waitTimeout = 5 * time.Second

func startBroker(t *testing.T) string {
	t.Helper()
	cfg, err := apps.Parse([]byte(testApps))
	require.NoError(t, err)
	d := logstore.NewDialer(logstore.DialerOptions{})
	t.Cleanup(func() { _ = d.Close() })
	ring, err := router.NewRing([]string{"pebble://" + filepath.Join(t.TempDir(), "n0")})
	require.NoError(t, err)
	pool := publisher.NewPool(publisher.Options{Router: ring, Connector: d})
	t.Cleanup(func() { _ = pool.Close(context.Background()) })
	b, err := broker.New(broker.Options{
		Apps:             cfg,
		Router:           ring,
		Pool:             pool,
		Connector:        d,
		MaxSubscriptions: -1,
		Node:             "node-a",
		Version:          "1.2.3",
	})
	require.NoError(t, err)

	ts := httptest.NewServer(httpserver.New(b, httpserver.Options{Apps: cfg}).Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = b.Shutdown(ctx)
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v2"
}

func dial(t *testing.T, url string, creds Credentials) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	c, err := Dial(ctx, url, "demo", creds)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

func TestDialReportsHandshake(t *testing.T) {
	c := dial(t, startBroker(t), writer)
	assert.Equal(t, "node-a", c.Node())
	assert.Equal(t, "1.2.3", c.Version())
	assert.NotEmpty(t, c.ConnectionID())
}

func TestDialWrongSecret(t *testing.T) {
	url := startBroker(t)
	_, err := Dial(testCtx(t), url, "demo", Credentials{Role: "writer", Secret: "nope"})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "auth/authenticate/error", e.Action)
	assert.Equal(t, "challenge_failed", e.Reason())

	_, err = Dial(testCtx(t), url, "demo", Credentials{Role: "ghost", Secret: "x"})
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "invalid_role", e.Reason())
}

func TestDialUnknownAppKey(t *testing.T) {
	_, err := Dial(testCtx(t), startBroker(t), "nope", writer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestPublishSubscribe(t *testing.T) {
	url := startBroker(t)
	sub := dial(t, url, writer)
	pub := dial(t, url, writer)
	ctx := testCtx(t)

	got := make(chan Message, 4)
	s, err := sub.Subscribe(ctx, "news", SubscribeOptions{}, func(_ context.Context, _ *Subscription, m Message) error {
		got <- m
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "news", s.ID())
	assert.Equal(t, "0-0", s.Position)
	assert.False(t, s.StreamExists)

	channels, err := pub.Publish(ctx, "news", map[string]interface{}{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"news"}, channels)

	select {
	case m := <-got:
		require.Len(t, m.Messages, 1)
		assert.JSONEq(t, `{"text":"hi"}`, string(m.Messages[0]))
		assert.NotEmpty(t, m.Position)
	case <-time.After(waitTimeout):
		t.Fatal("no message delivered")
	}

	require.NoError(t, sub.Unsubscribe(ctx, "news"))
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("handler still running after unsubscribe")
	}
	assert.NoError(t, s.Err())
}

func TestSubscribeWithFilter(t *testing.T) {
	url := startBroker(t)
	c := dial(t, url, writer)
	ctx := testCtx(t)

	got := make(chan Message, 4)
	_, err := c.Subscribe(ctx, "", SubscribeOptions{
		SubscriptionID: "hot",
		Filter:         "SELECT temp FROM sensors WHERE temp > 30",
		Position:       "0-0",
	}, func(_ context.Context, _ *Subscription, m Message) error {
		got <- m
		return nil
	})
	require.NoError(t, err)

	_, err = c.Publish(ctx, "sensors", map[string]interface{}{"temp": 10})
	require.NoError(t, err)
	_, err = c.Publish(ctx, "sensors", map[string]interface{}{"temp": 40})
	require.NoError(t, err)

	select {
	case m := <-got:
		assert.Equal(t, "hot", m.SubscriptionID)
		require.Len(t, m.Messages, 1)
		assert.JSONEq(t, `{"temp":40}`, string(m.Messages[0]))
	case <-time.After(waitTimeout):
		t.Fatal("no message delivered")
	}
}

func TestHandlerStop(t *testing.T) {
	url := startBroker(t)
	c := dial(t, url, writer)
	ctx := testCtx(t)

	s, err := c.Subscribe(ctx, "once", SubscribeOptions{}, func(context.Context, *Subscription, Message) error {
		return ErrStop
	})
	require.NoError(t, err)
	_, err = c.Publish(ctx, "once", "x")
	require.NoError(t, err)
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("handler did not stop")
	}
	assert.NoError(t, s.Err())
}

func TestFatalSubscribeEndsConnection(t *testing.T) {
	c := dial(t, startBroker(t), writer)
	_, err := c.Subscribe(testCtx(t), "news", SubscribeOptions{Position: "bogus"}, func(context.Context, *Subscription, Message) error {
		return nil
	})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "rtm/subscribe/error", e.Action)
	assert.Contains(t, e.Error(), "Invalid position: bogus")

	select {
	case <-c.Done():
	case <-time.After(waitTimeout):
		t.Fatal("connection still open after fatal error")
	}
}

func TestKV(t *testing.T) {
	c := dial(t, startBroker(t), writer)
	ctx := testCtx(t)

	v, err := c.Read(ctx, "config", "")
	require.NoError(t, err)
	assert.Nil(t, v)

	pos, err := c.Write(ctx, "config", map[string]interface{}{"mode": "fast"})
	require.NoError(t, err)
	assert.NotEmpty(t, pos)

	v, err = c.Read(ctx, "config", "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"fast"}`, string(v))

	v, err = c.Read(ctx, "config", pos)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"fast"}`, string(v))

	require.NoError(t, c.Delete(ctx, "config"))
	v, err = c.Read(ctx, "config", "")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = c.Write(ctx, "config", nil)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Contains(t, e.Error(), "write: empty message")
}

func TestResumeFromSavedPosition(t *testing.T) {
	url := startBroker(t)
	c := dial(t, url, writer)
	ctx := testCtx(t)

	_, err := c.Publish(ctx, "orders", "first")
	require.NoError(t, err)

	saved := make(chan string, 1)
	s, err := c.Subscribe(ctx, "orders", SubscribeOptions{
		Position:             "0-0",
		ResumeFromPositionID: "orders-cursor",
	}, func(ctx context.Context, s *Subscription, m Message) error {
		if err := s.SavePosition(ctx, m.Position); err != nil {
			return err
		}
		saved <- m.Position
		return ErrStop
	})
	require.NoError(t, err)

	var pos string
	select {
	case pos = <-saved:
	case <-time.After(waitTimeout):
		t.Fatal("position not saved")
	}
	<-s.Done()

	raw, err := c.Read(ctx, "orders-cursor", "")
	require.NoError(t, err)
	var stored string
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, pos, stored)

	_, err = c.Publish(ctx, "orders", "second")
	require.NoError(t, err)

	got := make(chan Message, 4)
	_, err = c.Subscribe(ctx, "orders", SubscribeOptions{
		Position:             "0-0",
		ResumeFromPositionID: "orders-cursor",
	}, func(_ context.Context, _ *Subscription, m Message) error {
		got <- m
		return nil
	})
	require.NoError(t, err)
	select {
	case m := <-got:
		require.Len(t, m.Messages, 1)
		assert.JSONEq(t, `"second"`, string(m.Messages[0]))
	case <-time.After(waitTimeout):
		t.Fatal("no message after resume")
	}
}

func TestAdmin(t *testing.T) {
	url := startBroker(t)
	a := dial(t, url, admin)
	w := dial(t, url, writer)
	ctx := testCtx(t)

	conns, err := a.AdminGetConnections(ctx)
	require.NoError(t, err)
	assert.Contains(t, conns, a.ConnectionID())
	assert.Contains(t, conns, w.ConnectionID())

	require.NoError(t, a.AdminCloseConnection(ctx, w.ConnectionID()))
	select {
	case <-w.Done():
	case <-time.After(waitTimeout):
		t.Fatal("closed connection still open")
	}
	_, err = w.Publish(context.Background(), "x", "y")
	require.Error(t, err)

	err = a.AdminCloseConnection(ctx, "missing")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Contains(t, e.Error(), "Cannot find connection id")
}

func TestPermissionDenied(t *testing.T) {
	c := dial(t, startBroker(t), admin)
	_, err := c.Publish(testCtx(t), "news", "x")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Contains(t, e.Error(), "permission denied")
}

func TestCloseFailsPendingCalls(t *testing.T) {
	c := dial(t, startBroker(t), writer)
	require.NoError(t, c.Close())
	_, err := c.Publish(context.Background(), "x", "y")
	assert.True(t, errors.Is(err, ErrClosed))
	assert.ErrorIs(t, c.Err(), ErrClosed)
}
