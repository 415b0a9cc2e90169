package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is one registered logical connection and its handshake metadata.
// The registry entry owns the underlying socket: closing or terminating it
// is exclusively the hub's job.
type Conn struct {
	ID uuid.UUID

	sock   *websocket.Conn
	writer *connWriter

	// alive is reset by each heartbeat sweep and restored by the pong
	// handler. Coarse last-writer-wins signal, not a correctness value.
	alive atomic.Bool

	mu       sync.Mutex
	identity string
	branch   string
}

func newConn(sock *websocket.Conn, writer *connWriter) *Conn {
	c := &Conn{
		ID:     uuid.New(),
		sock:   sock,
		writer: writer,
	}
	c.alive.Store(true)
	return c
}

// SetPeer records the identity and branch supplied by the auth handshake.
// Safe to call from the connection's read goroutine.
func (c *Conn) SetPeer(identity, branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
	c.branch = branch
}

// Identity returns the opaque identity from the handshake, if any.
func (c *Conn) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Branch returns the tenant scope from the handshake. Empty means the
// connection never scoped itself and receives every broadcast.
func (c *Conn) Branch() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.branch
}

// Registry tracks the set of currently open connections. Pure in-memory
// state, never persisted. All methods are safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[*Conn]struct{})}
}

// Add registers a connection. Adding the same connection twice is a no-op;
// the registry never holds two entries for one socket.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
}

// Remove unregisters a connection. Idempotent: removing an absent or
// already-removed connection returns false and never panics.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		return false
	}
	delete(r.conns, c)
	return true
}

// Snapshot returns the current connections as a slice. Callers iterate the
// copy, so removals triggered mid-traversal (failed writes scheduling
// eviction) cannot corrupt the walk.
func (r *Registry) Snapshot() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
