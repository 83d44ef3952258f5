package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// transport adapts a gorilla connection to hub.Transport. The hub runs a
// single writer per subscriber, so WriteFrame is never called concurrently;
// pings and the close frame go through WriteControl, which gorilla allows
// alongside other writes.
type transport struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

func (t *transport) WriteFrame(ctx context.Context, frame []byte) error {
	deadline := time.Now().Add(t.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *transport) ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
}

// Close sends a going-away close frame and closes the socket.
func (t *transport) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.writeWait))
	return t.conn.Close()
}
