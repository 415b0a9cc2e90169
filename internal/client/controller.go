// Package client implements the dashboard-side socket controller: a single
// reconnecting WebSocket connection that turns data_update events into cache
// invalidations.
//
// Loss of the connection degrades the dashboard to "stale until reconnect",
// never to an error: all transport failures are recovered locally with a
// bounded, resettable retry delay.
package client

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/innkeep/innkeep/internal/metrics"
	"github.com/innkeep/innkeep/internal/realtime"
)

const (
	establishTimeout    = 10 * time.Second
	transportRetryDelay = 3 * time.Second
	setupRetryDelay     = 5 * time.Second
)

// Invalidator receives cache-invalidation requests. The data-fetching layer
// implements it; this package never fetches anything itself.
type Invalidator interface {
	Invalidate(keys ...string)
	InvalidateAll()
}

// State is the controller's connection state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures a Controller.
type Config struct {
	// URL is the ws:// or wss:// endpoint.
	URL string
	// UserID and BranchID are sent in the auth handshake. Both optional;
	// an empty BranchID subscribes the connection to every broadcast.
	UserID   string
	BranchID string
	// Disabled skips connecting entirely. Deployment-mode switch for
	// development environments whose tooling owns the same transport.
	Disabled bool
}

// Controller owns one outbound connection and its reconnect state. At most
// one live socket and one pending reconnect timer exist at any time.
type Controller struct {
	cfg         Config
	invalidator Invalidator
	clock       clockwork.Clock
	dialer      *websocket.Dialer

	mu             sync.Mutex
	state          State
	sock           *websocket.Conn
	reconnectTimer clockwork.Timer
	closed         bool
}

// New creates a controller. Call Start to connect and Close to tear down.
func New(cfg Config, invalidator Invalidator, clock clockwork.Clock) *Controller {
	return &Controller{
		cfg:         cfg,
		invalidator: invalidator,
		clock:       clock,
		dialer:      &websocket.Dialer{HandshakeTimeout: establishTimeout},
	}
}

// Start begins connecting in the background. No-op when disabled.
func (c *Controller) Start() {
	if c.cfg.Disabled {
		slog.Info("Socket controller disabled, not connecting")
		return
	}
	go c.connect()
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	sock, resp, err := c.dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		slog.Warn("Socket setup failed", "url", c.cfg.URL, "error", err)
		c.scheduleReconnect(setupRetryDelay, "setup")
		return
	}

	c.mu.Lock()
	if c.closed {
		// Teardown raced the dial; never leak the socket.
		c.mu.Unlock()
		_ = sock.Close()
		return
	}
	c.sock = sock
	c.state = StateOpen
	c.mu.Unlock()

	// Handshake failures are non-fatal: the connection still receives.
	hs := realtime.NewHandshake(c.cfg.UserID, c.cfg.BranchID, c.clock.Now())
	if err := sock.WriteJSON(hs); err != nil {
		slog.Debug("Handshake send failed", "error", err)
	}

	slog.Debug("Socket connected", "url", c.cfg.URL)
	c.readLoop(sock)
}

func (c *Controller) readLoop(sock *websocket.Conn) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			c.onDisconnect(err)
			return
		}
		env, ok := realtime.ParseEnvelope(data)
		if !ok {
			// Malformed frames are transport noise, never fatal.
			continue
		}
		Dispatch(env.Data.Type, c.invalidator)
	}
}

func (c *Controller) onDisconnect(err error) {
	c.mu.Lock()
	if c.sock != nil {
		_ = c.sock.Close()
		c.sock = nil
	}
	c.state = StateClosed
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if code, ok := closeCode(err); ok &&
		(code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway) {
		slog.Debug("Socket closed normally, not reconnecting", "code", code)
		return
	}

	slog.Warn("Socket lost, scheduling reconnect", "error", err)
	c.scheduleReconnect(transportRetryDelay, "transport")
}

func closeCode(err error) (int, bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}

// scheduleReconnect arms a single retry timer. A new schedule cancels any
// prior one, so two rapid close events still produce at most one attempt.
func (c *Controller) scheduleReconnect(delay time.Duration, cause string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	metrics.ClientReconnectsTotal.WithLabelValues(cause).Inc()
	c.reconnectTimer = c.clock.AfterFunc(delay, c.connect)
}

// Close tears the controller down: cancels any pending reconnect, closes
// the live socket with a normal-closure frame, and never reconnects after.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.state = StateClosed
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()

	if sock != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = sock.Close()
	}
}
