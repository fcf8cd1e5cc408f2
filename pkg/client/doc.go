// Package client is a Go client for the rtm websocket protocol.
//
// Dial connects, performs the role_secret handshake and returns an
// authenticated Client. Requests are correlated by id, so a Client may be
// shared by several goroutines. Subscription data is delivered to a
// per-subscription goroutine that calls the Handler in order.
//
//	c, err := client.Dial(ctx, "ws://127.0.0.1:8080/v2", "demo",
//		client.Credentials{Role: "writer", Secret: secret})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	_, err = c.Publish(ctx, "news", map[string]any{"text": "hello"})
package client
