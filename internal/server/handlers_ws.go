package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/innkeep/innkeep/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   1024,
	EnableCompression: false, // latency predictability over bandwidth
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboards may load from any origin
	},
}

func (s *Server) handleWebSocket(c echo.Context) error {
	sock, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}
	sock.SetReadLimit(s.config.WSMaxMessageBytes)

	conn, err := s.hub.Register(sock)
	if err != nil {
		// The capacity path closes the socket inside the hub; every other
		// registration failure leaves it to us.
		slog.Warn("Failed to register connection", "error", err)
		_ = sock.Close()
		return nil
	}

	// Read pump - blocks until the connection closes. The only meaningful
	// inbound frame is the auth handshake; everything else is discarded.
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			break
		}
		if hs, ok := realtime.ParseHandshake(data); ok {
			conn.SetPeer(hs.UserID, hs.BranchID)
			slog.Debug("Connection authenticated",
				"connection_id", conn.ID.String(),
				"branch_id", hs.BranchID,
			)
		}
	}

	s.hub.Unregister(conn)

	return nil
}
