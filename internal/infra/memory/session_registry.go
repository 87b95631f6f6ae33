package memory

import (
	"sync"

	"quiz-duel-client/internal/app"
	"quiz-duel-client/internal/domain"
)

// SessionRegistry is an in-memory implementation of app.SessionRegistry.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*app.Handle
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*app.Handle),
	}
}

// Register stores h unless a live session for gameID exists. Stopped sessions are replaced.
func (r *SessionRegistry) Register(gameID string, h *app.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[gameID]; ok && existing != h && !existing.Closed() {
		return domain.ErrSessionActive
	}
	r.sessions[gameID] = h
	return nil
}

func (r *SessionRegistry) Get(gameID string) (*app.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[gameID]
	return h, ok
}

func (r *SessionRegistry) Remove(gameID string, h *app.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[gameID]; ok && existing == h {
		delete(r.sessions, gameID)
	}
}
