package server

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/innkeep/innkeep/internal/config"
	apperrors "github.com/innkeep/innkeep/internal/errors"
	"github.com/innkeep/innkeep/internal/logging"
	"github.com/innkeep/innkeep/internal/realtime"
)

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	hub       *realtime.Hub
	startTime time.Time
	apiGroups map[realtime.Domain]*echo.Group
}

func NewServer(cfg *config.Config, hub *realtime.Hub) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(correlationMiddleware)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		hub:       hub,
		startTime: time.Now(),
		apiGroups: make(map[realtime.Domain]*echo.Group),
	}

	srv.registerRoutes()

	return srv
}

// API returns the mutation route group for a domain. Handlers mounted here
// are wrapped by the change notifier: every 2xx response broadcasts that
// the domain changed for the request's branch. The CRUD handlers themselves
// live outside this core.
func (s *Server) API(domain realtime.Domain) *echo.Group {
	return s.apiGroups[domain]
}

// correlationMiddleware tags each request context with a correlation ID so
// slog lines emitted while handling it can be grouped.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := logging.WithCorrelationID(c.Request().Context(), logging.NewCorrelationID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
