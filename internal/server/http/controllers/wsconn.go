package controllers

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// errIdle is returned by ReadMessage when the peer sent nothing for the
// idle timeout.
var errIdle = errors.New("connection idle")

// wsConn adapts a gorilla websocket to broker.Conn. Cancelling the context
// of a pending read or write interrupts it through the deadlines.
type wsConn struct {
	ws           *websocket.Conn
	idleTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, idleTimeout, writeTimeout time.Duration) *wsConn {
	return &wsConn{ws: ws, idleTimeout: idleTimeout, writeTimeout: writeTimeout}
}

func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	var deadline time.Time
	if c.idleTimeout > 0 {
		deadline = time.Now().Add(c.idleTimeout)
	}
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.ws.SetReadDeadline(time.Now()) })
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		var nerr net.Error
		if ctx.Err() == nil && errors.As(err, &nerr) && nerr.Timeout() {
			return nil, errIdle
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) WriteMessage(ctx context.Context, data []byte) error {
	var deadline time.Time
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.ws.SetWriteDeadline(time.Now()) })
	defer stop()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame on a best-effort basis and closes the socket.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
