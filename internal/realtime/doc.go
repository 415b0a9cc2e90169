// Package realtime implements the change-propagation core: a WebSocket
// connection registry with heartbeat-driven liveness eviction and a
// branch-scoped broadcast router.
//
// The Hub runs as a single goroutine fed by a command channel (no mutexes on
// the hot path). Per-connection write goroutines absorb slow clients; the
// heartbeat sweep evicts peers that miss a full ping interval.
package realtime
