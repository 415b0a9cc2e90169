package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/innkeep/innkeep/internal/notify"
	"github.com/innkeep/innkeep/internal/realtime"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Realtime endpoint (upgrade only, no auth - handshake identity is
	// opaque and used purely for broadcast scoping)
	s.echo.GET("/ws", s.handleWebSocket)

	// One mutation group per domain, each wrapped by the change notifier.
	// CRUD handlers mount onto these via Server.API.
	for _, domain := range realtime.Domains {
		s.apiGroups[domain] = s.echo.Group("/api/"+string(domain), notify.Middleware(s.hub, domain))
	}
}
