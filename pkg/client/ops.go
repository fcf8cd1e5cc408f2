package client

import (
	"context"
	"encoding/json"
)

// Publish appends message to channel and returns the channels the broker
// acknowledged.
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) ([]string, error) {
	return c.publish(ctx, map[string]interface{}{"channel": channel, "message": message})
}

// PublishMany appends message to each channel.
func (c *Client) PublishMany(ctx context.Context, channels []string, message interface{}) ([]string, error) {
	return c.publish(ctx, map[string]interface{}{"channels": channels, "message": message})
}

func (c *Client) publish(ctx context.Context, body map[string]interface{}) ([]string, error) {
	var out struct {
		Channels []string `json:"channels"`
	}
	if err := c.call(ctx, "rtm/publish", body, &out); err != nil {
		return nil, err
	}
	return out.Channels, nil
}

// Read returns the value stored under channel, or at position when one is
// given. A missing value reads as nil.
func (c *Client) Read(ctx context.Context, channel, position string) (json.RawMessage, error) {
	body := map[string]interface{}{"channel": channel}
	if position != "" {
		body["position"] = position
	}
	var out struct {
		Message json.RawMessage `json:"message"`
	}
	if err := c.call(ctx, "rtm/read", body, &out); err != nil {
		return nil, err
	}
	if string(out.Message) == "null" {
		return nil, nil
	}
	return out.Message, nil
}

// Write replaces the value of channel and returns its position.
func (c *Client) Write(ctx context.Context, channel string, message interface{}) (string, error) {
	var out struct {
		Stream string `json:"stream"`
	}
	err := c.call(ctx, "rtm/write", map[string]interface{}{"channel": channel, "message": message}, &out)
	return out.Stream, err
}

// Delete removes channel.
func (c *Client) Delete(ctx context.Context, channel string) error {
	return c.call(ctx, "rtm/delete", map[string]interface{}{"channel": channel}, nil)
}

// AdminGetConnections lists the connection ids of the broker node.
func (c *Client) AdminGetConnections(ctx context.Context) ([]string, error) {
	var out struct {
		Connections []string `json:"connections"`
	}
	if err := c.call(ctx, "admin/get_connections", map[string]interface{}{}, &out); err != nil {
		return nil, err
	}
	return out.Connections, nil
}

// AdminCloseConnection closes connection id. Closing the client's own
// connection is answered before the broker drops it.
func (c *Client) AdminCloseConnection(ctx context.Context, id string) error {
	return c.call(ctx, "admin/close_connection", map[string]interface{}{"connection_id": id}, nil)
}

// AdminCloseAllConnections closes every other connection and returns how
// many were closed.
func (c *Client) AdminCloseAllConnections(ctx context.Context) (int, error) {
	var out struct {
		Closed int `json:"closed"`
	}
	err := c.call(ctx, "admin/close_all_connections", map[string]interface{}{}, &out)
	return out.Closed, err
}
