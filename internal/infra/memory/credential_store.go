package memory

import (
	"context"
	"sync"
)

// CredentialStore holds the bearer token in process memory.
type CredentialStore struct {
	mu    sync.RWMutex
	token string
}

func NewCredentialStore(token string) *CredentialStore {
	return &CredentialStore{token: token}
}

// Token returns the stored token, or "" when none is set.
func (s *CredentialStore) Token(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *CredentialStore) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *CredentialStore) Clear() {
	s.Set("")
}
