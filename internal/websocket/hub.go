// Package websocket pushes live telemetry updates to connected dashboards.
// A hub fans monitor snapshots out to every registered client; clients can
// narrow their stream to a single observation source.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Damatnic/astral-core-v7-sub003/internal/logging"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// Update is one pushed dashboard message
type Update struct {
	Type      string                  `json:"type"`
	Source    types.ObservationSource `json:"source,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
	Payload   any                     `json:"payload,omitempty"`
}

// Client is one connected dashboard
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan Update
	hub  *Hub

	// Source narrows the stream when set; empty receives everything
	Source types.ObservationSource

	mu     sync.Mutex
	closed bool
}

// SafeClose closes the client's send channel exactly once
func (c *Client) SafeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed && c.Send != nil {
		close(c.Send)
		c.closed = true
	}
}

// Hub manages dashboard connections and broadcasts
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Update
	mutex      sync.RWMutex
	log        logging.Logger
}

// NewHub creates a hub. A nil logger disables logging.
func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Update, 256),
		log:        log.WithComponent("websocket"),
	}
}

// Run drives the hub until the context is canceled
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mutex.Lock()
		for client := range h.clients {
			client.SafeClose()
			_ = client.Conn.Close()
		}
		h.mutex.Unlock()
	}()

	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()

			h.log.Debug("dashboard client registered", "client_id", client.ID, "total", total)

			welcome := Update{
				Type:      "connected",
				Timestamp: time.Now(),
				Payload:   map[string]any{"client_id": client.ID},
			}
			select {
			case client.Send <- welcome:
			default:
				h.removeClient(client)
			}

		case client := <-h.unregister:
			h.removeClient(client)

		case update := <-h.broadcast:
			h.mutex.RLock()
			var slow []*Client
			for client := range h.clients {
				if !h.shouldSend(client, &update) {
					continue
				}
				select {
				case client.Send <- update:
				default:
					// Send buffer full, drop the slow client once
					// the read lock is released.
					slow = append(slow, client)
				}
			}
			h.mutex.RUnlock()

			for _, client := range slow {
				h.removeClient(client)
			}

		case <-ctx.Done():
			h.log.Info("dashboard hub shutting down")
			return
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeClientUnsafe(client)
}

func (h *Hub) removeClientUnsafe(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.SafeClose()
		_ = client.Conn.Close()
		h.log.Debug("dashboard client disconnected", "client_id", client.ID, "total", len(h.clients))
	}
}

func (h *Hub) shouldSend(client *Client, update *Update) bool {
	if update.Type == "connected" || update.Type == "heartbeat" {
		return true
	}
	if client.Source != "" && update.Source != "" && client.Source != update.Source {
		return false
	}
	return true
}

// RegisterClient adds a client to the hub
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient removes a client from the hub
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// Broadcast queues an update for every interested client. A full queue drops
// the update rather than blocking the producer.
func (h *Hub) Broadcast(update Update) {
	select {
	case h.broadcast <- update:
	default:
		h.log.Warn("broadcast queue full, dropping update", "type", update.Type)
	}
}

// ClientCount returns the number of connected dashboards
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// NewClient wraps a connection for hub registration
func NewClient(id string, conn *websocket.Conn, hub *Hub, source types.ObservationSource) *Client {
	return &Client{
		ID:     id,
		Conn:   conn,
		Send:   make(chan Update, 256),
		hub:    hub,
		Source: source,
	}
}

// SnapshotUpdate builds a source-tagged update carrying a monitor snapshot
func SnapshotUpdate(source types.ObservationSource, payload any) Update {
	return Update{
		Type:      "snapshot",
		Source:    source,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
