// Package server implements the HTTP server using Echo framework.
//
// Routes: health (liveness/readiness), metrics (Prometheus), /ws (realtime
// upgrade), and per-domain /api mutation groups wrapped by the change
// notifier. Handlers split by concern: handlers_ws.go, handlers_health.go.
package server
