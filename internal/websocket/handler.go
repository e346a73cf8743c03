package websocket

import (
	"context"

	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection under sessionId and blocks until it closes.
func ServeWs(ctx context.Context, hub *Hub, c *websocket.Conn, sessionId string, handle MessageHandler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := &Client{Hub: hub, Conn: c, SessionId: sessionId, Send: make(chan []byte, 256)}
	if !hub.join(client) {
		c.Close()
		return
	}

	go client.writePump()
	client.readPump(ctx, handle)
}
