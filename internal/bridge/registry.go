package bridge

import (
	"sync"

	ws "nhooyr.io/websocket"
)

// Registry keeps at most one bridge connection per session.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Conn
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]*Conn)} }

// Replace sets the connection for a session and closes the previous one if
// present. The close handshake runs in the background.
func (r *Registry) Replace(sessionID string, c *Conn) (prevClosed bool) {
	r.mu.Lock()
	old := r.conns[sessionID]
	r.conns[sessionID] = c
	r.mu.Unlock()
	if old != nil && old != c {
		go old.close(ws.StatusPolicyViolation, "replaced")
		prevClosed = true
	}
	return
}

// Remove forgets c if it is still the session's connection.
func (r *Registry) Remove(sessionID string, c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[sessionID] != c {
		return false
	}
	delete(r.conns, sessionID)
	return true
}

// CloseSession drops and closes the connection of an ended session.
func (r *Registry) CloseSession(sessionID string) {
	r.mu.Lock()
	c := r.conns[sessionID]
	delete(r.conns, sessionID)
	r.mu.Unlock()
	if c != nil {
		c.close(ws.StatusNormalClosure, "session ended")
	}
}

// Len reports how many bridges are connected.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
