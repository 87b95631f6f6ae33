package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-duel-client/internal/domain"
)

// SnapshotLoader fetches a game snapshot from the authority.
type SnapshotLoader interface {
	FetchGame(ctx context.Context, gameID string) (domain.GameSession, error)
}

// SnapshotRepository caches finished snapshots with TTL. Live games always reach the loader,
// but concurrent fetches of the same game share one request.
type SnapshotRepository struct {
	loader SnapshotLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedSnapshot
}

type cachedSnapshot struct {
	game      domain.GameSession
	expiresAt time.Time
}

func NewSnapshotRepository(loader SnapshotLoader, ttl time.Duration) *SnapshotRepository {
	return &SnapshotRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSnapshot),
	}
}

func (r *SnapshotRepository) FetchGame(ctx context.Context, gameID string) (domain.GameSession, error) {
	if game, ok := r.cached(gameID); ok {
		return game, nil
	}

	result, err, _ := r.sf.Do(gameID, func() (interface{}, error) {
		if game, ok := r.cached(gameID); ok {
			return game, nil
		}
		game, err := r.loader.FetchGame(ctx, gameID)
		if err != nil {
			return domain.GameSession{}, err
		}
		if game.Status == domain.StatusFinished && r.ttl > 0 {
			r.mu.Lock()
			r.cache[gameID] = cachedSnapshot{
				game:      game.Clone(),
				expiresAt: r.clock().Add(r.ttlWithJitter()),
			}
			r.mu.Unlock()
		}
		return game, nil
	})
	if err != nil {
		return domain.GameSession{}, err
	}
	return result.(domain.GameSession).Clone(), nil
}

func (r *SnapshotRepository) cached(gameID string) (domain.GameSession, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[gameID]; ok && entry.expiresAt.After(now) {
		return entry.game.Clone(), true
	}
	return domain.GameSession{}, false
}

// StaticSnapshotLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticSnapshotLoader struct {
	games map[string]domain.GameSession
}

func NewStaticSnapshotLoader(games map[string]domain.GameSession) *StaticSnapshotLoader {
	return &StaticSnapshotLoader{games: games}
}

func (l *StaticSnapshotLoader) FetchGame(_ context.Context, gameID string) (domain.GameSession, error) {
	if game, ok := l.games[gameID]; ok {
		return game.Clone(), nil
	}
	return domain.GameSession{}, domain.ErrGameNotFound
}

func (r *SnapshotRepository) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
