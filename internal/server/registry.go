package server

import (
	"sync"

	"github.com/drewpri411/kaathumaaa/pkg/agent"
)

// Registry tracks live sessions by ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*agent.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*agent.Session)}
}

func (r *Registry) Add(s *agent.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Get(id string) (*agent.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Snapshots returns the status surface of every live session.
func (r *Registry) Snapshots() []agent.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
