// Package metrics defines the Prometheus metrics for the realtime core.
//
// The core recovers every transport failure locally and never surfaces them
// to callers, so these counters are the only way operators see connection
// churn. Exposed on /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub metrics
var (
	// HubActiveConnections tracks currently registered WebSocket connections.
	HubActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_connections",
			Help: "Number of currently registered WebSocket connections",
		},
	)

	// HubConnectionsTotal counts accepted connections since start.
	HubConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_connections_total",
			Help: "Total WebSocket connections accepted",
		},
	)

	// HubEvictionsTotal counts evicted connections by reason
	// (stale, write_error, slow_client, capacity).
	HubEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_evictions_total",
			Help: "Total connections evicted by reason",
		},
		[]string{"reason"},
	)

	// HubCommandChannelDepth tracks command backlog in the hub actor.
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Current depth of the hub command channel",
		},
	)

	// HeartbeatSweepsTotal counts heartbeat sweeps run.
	HeartbeatSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_sweeps_total",
			Help: "Total heartbeat sweeps executed",
		},
	)
)

// Broadcast metrics
var (
	// BroadcastsTotal counts broadcast calls by domain tag.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total broadcasts issued by domain",
		},
		[]string{"domain"},
	)

	// BroadcastDeliveriesTotal counts individual frame deliveries.
	BroadcastDeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Total broadcast frames enqueued to connections",
		},
	)

	// BroadcastSkipsTotal counts connections skipped by branch scoping.
	BroadcastSkipsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_skips_total",
			Help: "Total connections skipped due to branch scope mismatch",
		},
	)

	// EnvelopeMarshalsTotal counts envelope serializations. A broadcast
	// serializes at most once regardless of fan-out size, and not at all
	// when the registry is empty.
	EnvelopeMarshalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "envelope_marshals_total",
			Help: "Total broadcast envelope serializations",
		},
	)
)

// Notifier metrics
var (
	// NotificationsTotal counts change notifications by domain tag.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "change_notifications_total",
			Help: "Total change notifications emitted after 2xx mutations",
		},
		[]string{"domain"},
	)
)

// Client metrics
var (
	// ClientReconnectsTotal counts scheduled reconnects by cause
	// (transport, setup).
	ClientReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "client_reconnects_total",
			Help: "Total client reconnect attempts scheduled by cause",
		},
		[]string{"cause"},
	)

	// ClientInvalidationsTotal counts cache invalidations by domain tag,
	// with "unknown" for the invalidate-everything fallback.
	ClientInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "client_invalidations_total",
			Help: "Total client cache invalidations dispatched by domain",
		},
		[]string{"domain"},
	)
)
