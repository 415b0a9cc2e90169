package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/innkeep/innkeep/internal/metrics"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultMaxConnections    = 1024
	commandTimeout           = 5 * time.Second
	stopTimeout              = 10 * time.Second
)

// Eviction reasons, used as metric labels.
const (
	reasonStale      = "stale"
	reasonWriteError = "write_error"
	reasonSlowClient = "slow_client"
	reasonCapacity   = "capacity"
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	sock    *websocket.Conn
	replyCh chan registerReply
}

type registerReply struct {
	conn *Conn
	err  error
}

type unregisterCmd struct {
	baseHubCmd
	conn   *Conn
	reason string
}

type broadcastCmd struct {
	baseHubCmd
	domain Domain
	branch string
}

type statsCmd struct {
	baseHubCmd
	replyCh chan Stats
}

type stopCmd struct {
	baseHubCmd
}

// Stats is a point-in-time view of the hub for readiness checks and tests.
type Stats struct {
	Connections int
	Branches    map[string]int
}

// Config tunes the hub. Zero values fall back to production defaults.
type Config struct {
	// HeartbeatInterval is the period of the liveness sweep. A connection
	// that fails to pong within one full interval is evicted.
	HeartbeatInterval time.Duration
	// MaxConnections caps registrations; beyond it new sockets are closed
	// with a policy-violation frame.
	MaxConnections int
}

// Hub tracks open connections and fans out change events to them.
// Single goroutine plus command channel, after the actor pattern: all
// registry mutation happens on one goroutine, so broadcast traversal and
// sweep eviction can never race each other.
type Hub struct {
	cmdCh    chan hubCmd
	registry *Registry
	clock    clockwork.Clock
	interval time.Duration
	maxConns int
	done     chan struct{}
}

// NewHub creates and starts a hub. Pass a fake clock in tests to drive the
// heartbeat sweep deterministically.
func NewHub(clock clockwork.Clock, cfg Config) *Hub {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	h := &Hub{
		cmdCh:    make(chan hubCmd, 256),
		registry: NewRegistry(),
		clock:    clock,
		interval: cfg.HeartbeatInterval,
		maxConns: cfg.MaxConnections,
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)

	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		metrics.HubCommandChannelDepth.Set(float64(len(h.cmdCh)))

		select {
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c.conn, c.reason)
			case broadcastCmd:
				h.handleBroadcast(c.domain, c.branch)
			case statsCmd:
				c.replyCh <- h.stats()
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-ticker.Chan():
			h.handleSweep()
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if h.registry.Len() >= h.maxConns {
		slog.Warn("Rejecting connection: capacity reached", "max_connections", h.maxConns)
		metrics.HubEvictionsTotal.WithLabelValues(reasonCapacity).Inc()
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "connection limit reached")
		_ = c.sock.SetWriteDeadline(time.Now().Add(writeDeadline))
		_ = c.sock.WriteMessage(websocket.CloseMessage, msg)
		_ = c.sock.Close()
		c.replyCh <- registerReply{err: fmt.Errorf("connection limit (%d) reached", h.maxConns)}
		return
	}

	var conn *Conn
	writer := newConnWriter(c.sock, func() {
		h.evictAsync(conn, reasonWriteError)
	})
	conn = newConn(c.sock, writer)

	c.sock.SetPongHandler(func(string) error {
		conn.alive.Store(true)
		return nil
	})

	h.registry.Add(conn)
	metrics.HubActiveConnections.Set(float64(h.registry.Len()))
	metrics.HubConnectionsTotal.Inc()

	slog.Debug("Connection registered", "connection_id", conn.ID.String(), "total_connections", h.registry.Len())
	c.replyCh <- registerReply{conn: conn}
}

func (h *Hub) handleUnregister(conn *Conn, reason string) {
	if conn == nil || !h.registry.Remove(conn) {
		return
	}
	conn.writer.stop()

	metrics.HubActiveConnections.Set(float64(h.registry.Len()))
	if reason != "closed" {
		metrics.HubEvictionsTotal.WithLabelValues(reason).Inc()
		slog.Info("Connection evicted", "connection_id", conn.ID.String(), "reason", reason)
	} else {
		slog.Debug("Connection closed", "connection_id", conn.ID.String(), "remaining_connections", h.registry.Len())
	}
}

// handleSweep is the liveness algorithm: a connection that did not pong
// since the previous sweep is dead; survivors have their flag reset and get
// a fresh probe, which only the pong handler restores.
func (h *Hub) handleSweep() {
	metrics.HeartbeatSweepsTotal.Inc()

	for _, conn := range h.registry.Snapshot() {
		if !conn.alive.Load() {
			h.handleUnregister(conn, reasonStale)
			continue
		}
		conn.alive.Store(false)
		// A failed probe write kills the writer, which evicts the
		// connection via its failure callback rather than waiting a sweep.
		conn.writer.ping()
	}
}

func (h *Hub) handleBroadcast(domain Domain, branch string) {
	snapshot := h.registry.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	data, err := json.Marshal(NewEnvelope(domain, h.clock.Now()))
	metrics.EnvelopeMarshalsTotal.Inc()
	if err != nil {
		slog.Error("Failed to marshal broadcast envelope", "domain", string(domain), "error", err)
		return
	}

	// Scoped broadcasts skip only connections stored under a different
	// branch. Connections that never scoped themselves receive everything.
	var evict []*Conn
	for _, conn := range snapshot {
		if branch != "" {
			if b := conn.Branch(); b != "" && b != branch {
				metrics.BroadcastSkipsTotal.Inc()
				continue
			}
		}
		if !conn.writer.enqueue(data) {
			evict = append(evict, conn)
			continue
		}
		metrics.BroadcastDeliveriesTotal.Inc()
	}

	// Evictions apply after the fan-out pass so one bad connection never
	// aborts delivery to the rest.
	for _, conn := range evict {
		h.handleUnregister(conn, reasonSlowClient)
	}
}

func (h *Hub) stats() Stats {
	s := Stats{Branches: make(map[string]int)}
	for _, conn := range h.registry.Snapshot() {
		s.Connections++
		if b := conn.Branch(); b != "" {
			s.Branches[b]++
		}
	}
	return s
}

func (h *Hub) handleStop() {
	snapshot := h.registry.Snapshot()
	slog.Info("Hub shutting down", "connections", len(snapshot))

	for _, conn := range snapshot {
		h.registry.Remove(conn)
		conn.writer.stopGraceful(websocket.CloseNormalClosure, "server shutting down")
	}
	metrics.HubActiveConnections.Set(0)
}

// evictAsync schedules an eviction from outside the actor goroutine.
// Non-blocking: once the hub has stopped every socket is closed anyway, and
// a send dropped on a full command channel is recovered by the heartbeat
// sweep, since a connection with a dead writer stops answering pings and is
// reclaimed as stale.
func (h *Hub) evictAsync(conn *Conn, reason string) {
	select {
	case h.cmdCh <- unregisterCmd{conn: conn, reason: reason}:
	case <-h.done:
	default:
	}
}

// --- Public API ---

// Register adds a freshly upgraded socket to the hub. The returned Conn is
// the registry entry; the caller's read pump should pass handshake metadata
// to Conn.SetPeer and call Unregister when the socket dies.
func (h *Hub) Register(sock *websocket.Conn) (*Conn, error) {
	replyCh := make(chan registerReply, 1)
	select {
	case h.cmdCh <- registerCmd{sock: sock, replyCh: replyCh}:
	case <-h.done:
		return nil, fmt.Errorf("hub is stopped")
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply.conn, reply.err
	case <-timer.Chan():
		return nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a connection after its read pump ends. Idempotent.
func (h *Hub) Unregister(conn *Conn) {
	select {
	case h.cmdCh <- unregisterCmd{conn: conn, reason: "closed"}:
	case <-h.done:
	}
}

// Broadcast fans a change event out to every matching live connection.
// An empty branch means the event is unscoped and reaches everyone.
// Fire-and-forget: delivery failures evict the failing connection and are
// never surfaced to the caller.
func (h *Hub) Broadcast(domain Domain, branch string) {
	metrics.BroadcastsTotal.WithLabelValues(string(domain)).Inc()
	select {
	case h.cmdCh <- broadcastCmd{domain: domain, branch: branch}:
	case <-h.done:
	}
}

// Stats returns a snapshot of connection counts. Returns the zero value if
// the hub is stopped or stuck.
func (h *Hub) Stats() Stats {
	replyCh := make(chan Stats, 1)
	select {
	case h.cmdCh <- statsCmd{replyCh: replyCh}:
	case <-h.done:
		return Stats{}
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case s := <-replyCh:
		return s
	case <-timer.Chan():
		slog.Warn("Stats timed out", "timeout", commandTimeout)
		return Stats{}
	}
}

// Stop closes every connection with a normal-closure frame and shuts the
// hub down. Blocks until the actor goroutine exits or the timeout passes.
func (h *Hub) Stop() {
	select {
	case h.cmdCh <- stopCmd{}:
	case <-h.done:
		return
	}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}
