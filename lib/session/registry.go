package session

import (
	"sync"

	"github.com/go-mud/go-mud-portal/lib/chat"
)

// Registry is the live set of sessions. Thread-safe; the bridge registers
// on accept and sessions unregister themselves through their OnClose hook.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register adds s to the live set. Returns ErrDuplicateID when the ID is
// already present.
func (r *Registry) Register(s *Session) error {
	if s == nil || s.ID() == "" {
		return ErrSessionNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID()]; exists {
		return ErrDuplicateID
	}
	r.sessions[s.ID()] = s
	return nil
}

// Unregister removes the session with the given ID. Returns
// ErrSessionNotFound when it is not registered.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; !exists {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Get returns the session with the given ID, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Has reports whether a session with the given ID is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sessions[id]
	return exists
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the live sessions at this instant. Broadcasts iterate
// the snapshot so a teardown during the loop cannot invalidate it.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Sessions implements chat.Roster for the online-users listing.
func (r *Registry) Sessions() []chat.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chat.Member, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Close tears down every session and clears the registry. Sessions are
// collected under the lock and torn down outside it, because teardown's
// OnClose hook calls back into Unregister.
func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Teardown()
	}
	return nil
}
