package port

import (
	"log/slog"
	"sync"

	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/internal/errmap"
	"github.com/aelexs/chat-relay/internal/relay/app"
)

// Registry owns the set of live connections. It implements app.Broadcaster,
// so every fan-out in the app layer flows through here.
type Registry struct {
	mu     sync.RWMutex
	conns  map[domain.ConnectionID]*Conn
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[domain.ConnectionID]*Conn),
		logger: logger,
	}
}

// Add registers a connection. A live connection with the same ephemeral id
// is superseded: the old socket gets a close frame and is evicted first, so
// one id maps to at most one socket.
func (r *Registry) Add(c *Conn) {
	id := c.Session().Conn

	r.mu.Lock()
	old, exists := r.conns[id]
	r.conns[id] = c
	r.mu.Unlock()

	if exists {
		r.logger.Info("superseding duplicate connection", "conn_id", id.String())
		old.CloseWith(errmap.CloseDuplicateSession)
	}
}

// Remove drops a connection if it is still the registered one for its id.
// A superseded socket closing late must not evict its replacement.
func (r *Registry) Remove(c *Conn) {
	id := c.Session().Conn

	r.mu.Lock()
	if current, ok := r.conns[id]; ok && current == c {
		delete(r.conns, id)
	}
	r.mu.Unlock()
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast enqueues a frame on every live connection.
func (r *Registry) Broadcast(frame any) {
	for _, c := range r.snapshot() {
		c.Enqueue(frame)
	}
}

// BroadcastExcept enqueues a frame on every connection but one.
func (r *Registry) BroadcastExcept(exclude domain.ConnectionID, frame any) {
	for _, c := range r.snapshot() {
		if c.Session().Conn == exclude {
			continue
		}
		c.Enqueue(frame)
	}
}

// SendTo enqueues a frame on one connection. Returns false if the
// connection is gone or could not accept the frame.
func (r *Registry) SendTo(conn domain.ConnectionID, frame any) bool {
	r.mu.RLock()
	c, ok := r.conns[conn]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return c.Enqueue(frame)
}

// SendToStable enqueues a frame on every connection sharing a stable id
// (one browser, several tabs). Returns the number of connections reached.
func (r *Registry) SendToStable(sid domain.StableID, frame any) int {
	reached := 0
	for _, c := range r.snapshot() {
		if c.Session().Stable != sid {
			continue
		}
		if c.Enqueue(frame) {
			reached++
		}
	}
	return reached
}

// StableRole reports the role of a live connection with the given stable id.
func (r *Registry) StableRole(sid domain.StableID) (domain.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.Session().Stable == sid {
			return c.Session().Role, true
		}
	}
	return "", false
}

// CloseAll tears every connection down, used during graceful shutdown.
func (r *Registry) CloseAll(wsClose errmap.WebSocketClose) {
	for _, c := range r.snapshot() {
		c.CloseWith(wsClose)
	}
}

// snapshot copies the connection list so fan-out iterates without holding
// the lock across socket operations.
func (r *Registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Ensure Registry implements the app port at compile time.
var _ app.Broadcaster = (*Registry)(nil)
