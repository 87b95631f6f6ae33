package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-duel-client/internal/app"
	"quiz-duel-client/internal/domain"
)

// SessionRegistry is a Redis-aware implementation of app.SessionRegistry.
// Handles stay in a local map; Redis holds a liveness marker per game so that
// two client processes for the same account cannot drive the same duel.
// The marker is refreshed while the session runs and expires after a crash.
type SessionRegistry struct {
	client       *redis.Client
	ttl          time.Duration
	refreshEvery time.Duration
	owner        string
	logger       *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*app.Handle
	stops    map[string]chan struct{}
}

type RegistryOption func(*SessionRegistry)

// WithRefreshInterval overrides how often live markers are extended (default ttl/3).
func WithRefreshInterval(d time.Duration) RegistryOption {
	return func(s *SessionRegistry) {
		if d > 0 {
			s.refreshEvery = d
		}
	}
}

func NewSessionRegistry(client *redis.Client, ttl time.Duration, logger *zap.Logger, opts ...RegistryOption) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SessionRegistry{
		client:       client,
		ttl:          ttl,
		refreshEvery: ttl / 3,
		owner:        uuid.NewString(),
		logger:       logger,
		sessions:     make(map[string]*app.Handle),
		stops:        make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionRegistry) Register(gameID string, h *app.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[gameID]; ok && existing != h && !existing.Closed() {
		return domain.ErrSessionActive
	}

	ctx := context.Background()
	key := s.key(gameID)
	acquired, err := s.client.SetNX(ctx, key, s.owner, s.ttl).Result()
	if err != nil {
		// Redis down: fall back to process-local exclusivity.
		s.logger.Warn("session_marker_failed", zap.String("game_id", gameID), zap.Error(err))
	} else if !acquired {
		holder, err := s.client.Get(ctx, key).Result()
		if err == nil && holder != s.owner {
			return domain.ErrSessionActive
		}
		_ = s.client.Expire(ctx, key, s.ttl).Err()
	}

	s.sessions[gameID] = h
	s.startRefreshLocked(gameID, h)
	return nil
}

func (s *SessionRegistry) Get(gameID string) (*app.Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.sessions[gameID]
	return h, ok
}

// Remove drops h and releases the marker if this process holds it.
func (s *SessionRegistry) Remove(gameID string, h *app.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[gameID]; !ok || existing != h {
		return
	}
	delete(s.sessions, gameID)
	s.stopRefreshLocked(gameID)

	ctx := context.Background()
	key := s.key(gameID)
	if holder, err := s.client.Get(ctx, key).Result(); err == nil && holder == s.owner {
		_ = s.client.Del(ctx, key).Err()
	}
}

func (s *SessionRegistry) startRefreshLocked(gameID string, h *app.Handle) {
	s.stopRefreshLocked(gameID)
	if s.ttl <= 0 || s.refreshEvery <= 0 {
		return
	}
	stop := make(chan struct{})
	s.stops[gameID] = stop

	var done <-chan struct{}
	if h != nil {
		done = h.Done()
	}
	go s.refresh(gameID, stop, done)
}

func (s *SessionRegistry) stopRefreshLocked(gameID string) {
	if stop, ok := s.stops[gameID]; ok {
		close(stop)
		delete(s.stops, gameID)
	}
}

// refresh extends the marker until the registration is removed or the session stops.
func (s *SessionRegistry) refresh(gameID string, stop, done <-chan struct{}) {
	ticker := time.NewTicker(s.refreshEvery)
	defer ticker.Stop()
	key := s.key(gameID)
	for {
		select {
		case <-stop:
			return
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			holder, err := s.client.Get(ctx, key).Result()
			switch {
			case err == nil && holder != s.owner:
				cancel()
				s.logger.Warn("session_marker_taken", zap.String("game_id", gameID))
				return
			case err == nil:
				err = s.client.Expire(ctx, key, s.ttl).Err()
			case errors.Is(err, redis.Nil):
				err = s.client.SetNX(ctx, key, s.owner, s.ttl).Err()
			}
			cancel()
			if err != nil {
				s.logger.Warn("session_marker_refresh_failed", zap.String("game_id", gameID), zap.Error(err))
			}
		}
	}
}

func (s *SessionRegistry) key(gameID string) string {
	return "duel:session:" + gameID
}
