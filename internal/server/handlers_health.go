package server

import (
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()
	return c.JSON(200, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	// The hub is the only dependency; Stats returns the zero value when it
	// is stopped or wedged.
	stats := s.hub.Stats()
	return c.JSON(200, map[string]any{
		"status":      "ready",
		"connections": stats.Connections,
	})
}
