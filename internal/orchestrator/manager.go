package orchestrator

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Manager owns the live sessions of a process.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	base     Options
}

// NewManager uses base for every session it opens; only ID differs.
func NewManager(base Options) *Manager {
	return &Manager{sessions: make(map[string]*Session), base: base}
}

// Open returns the session for id, starting it if needed. An empty id gets a
// fresh uuid.
func (m *Manager) Open(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	o := m.base
	o.ID = id
	s, err := New(o)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = s
	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close stops and forgets the session. It reports whether it existed.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Stop()
	}
	return ok
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Stop()
	}
}

func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
