// Package notify bridges HTTP mutation handlers and the realtime hub.
//
// Any route group that mutates shared state mounts the middleware with its
// domain tag; after a handler commits a 2xx response, the hub is told that
// the domain changed for the request's branch. The notification is a pure
// side effect: body and status pass through untouched.
package notify

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/innkeep/innkeep/internal/metrics"
	"github.com/innkeep/innkeep/internal/realtime"
)

// HeaderBranchID carries the tenant scope of a mutation. Absent header and
// query param means the change is unscoped and fans out to every connection.
const HeaderBranchID = "X-Branch-ID"

// Broadcaster is the hub surface the notifier needs. Satisfied by
// *realtime.Hub.
type Broadcaster interface {
	Broadcast(domain realtime.Domain, branch string)
}

// Middleware returns an echo middleware that emits a change notification
// for the given domain after every successful mutation response.
func Middleware(b Broadcaster, domain realtime.Domain) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				// The error middleware decides the status; it is never 2xx.
				return err
			}

			status := c.Response().Status
			if status < http.StatusOK || status >= http.StatusMultipleChoices {
				return nil
			}

			b.Broadcast(domain, BranchScope(c))
			metrics.NotificationsTotal.WithLabelValues(string(domain)).Inc()
			return nil
		}
	}
}

// BranchScope extracts the tenant scope of a request: header first, query
// param fallback. The value is opaque and only filters fan-out.
func BranchScope(c echo.Context) string {
	if branch := c.Request().Header.Get(HeaderBranchID); branch != "" {
		return branch
	}
	return c.QueryParam("branch_id")
}
