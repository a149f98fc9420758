package websocket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	heartbeatEvery = 54 * time.Second
	maxMessageSize = 512
)

// WritePump pushes hub updates and heartbeats to the connection
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(heartbeatEvery)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case update, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(update); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			heartbeat := Update{Type: "heartbeat", Timestamp: time.Now()}
			if err := c.Conn.WriteJSON(heartbeat); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// ReadPump consumes client messages, currently subscription changes and
// pings, until the connection drops
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.unregister <- c
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg map[string]any
			if err := c.Conn.ReadJSON(&msg); err != nil {
				return
			}
			c.handleMessage(msg)
		}
	}
}

// sourceFilter parses a subscription filter; unknown names clear the filter
func sourceFilter(name string) types.ObservationSource {
	source := types.ObservationSource(name)
	if !source.Valid() {
		return ""
	}
	return source
}

func (c *Client) handleMessage(msg map[string]any) {
	msgType, ok := msg["type"].(string)
	if !ok {
		return
	}

	switch msgType {
	case "subscribe":
		if source, ok := msg["source"].(string); ok {
			c.Source = sourceFilter(source)
		}

	case "unsubscribe":
		c.Source = ""

	case "ping":
		pong := Update{Type: "heartbeat", Timestamp: time.Now()}
		select {
		case c.Send <- pong:
		default:
		}
	}
}
