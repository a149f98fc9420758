package websocket

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Damatnic/astral-core-v7-sub003/internal/logging"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

// Server upgrades HTTP requests into hub-managed dashboard connections
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      logging.Logger
}

// NewServer creates a websocket server for the given hub
func NewServer(hub *Hub, log logging.Logger) *Server {
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is same-origin in production; embedders
			// that need stricter checks wrap the handler.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.WithComponent("websocket"),
	}
}

// HandleConnection upgrades the request and runs the client's pumps. An
// optional ?source= query parameter narrows the stream to one monitor.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	source := types.ObservationSource(r.URL.Query().Get("source"))
	if !source.Valid() {
		source = ""
	}

	client := NewClient(uuid.New().String(), conn, s.hub, source)
	s.hub.RegisterClient(client)

	// The request context ends when this handler returns; the pumps live
	// for the connection's lifetime instead.
	go client.WritePump(context.Background())
	go client.ReadPump(context.Background())
}
