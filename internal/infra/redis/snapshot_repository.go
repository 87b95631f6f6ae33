package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quiz-duel-client/internal/domain"
)

// SnapshotLoader fetches a game snapshot from the authority.
type SnapshotLoader interface {
	FetchGame(ctx context.Context, gameID string) (domain.GameSession, error)
}

// SnapshotRepository caches finished game snapshots in Redis and falls back to a loader on miss.
// Snapshots are stored as JSON: SET duel:snapshot:{gameID} {json} EX ttl
// Games still in progress are never cached.
type SnapshotRepository struct {
	client *redis.Client
	loader SnapshotLoader
	ttl    time.Duration
	logger *zap.Logger
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewSnapshotRepository(client *redis.Client, loader SnapshotLoader, ttl time.Duration, logger *zap.Logger) *SnapshotRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *SnapshotRepository) FetchGame(ctx context.Context, gameID string) (domain.GameSession, error) {
	if game, ok := r.cached(ctx, gameID); ok {
		return game, nil
	}

	result, err, _ := r.sf.Do(gameID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if game, ok := r.cached(ctx, gameID); ok {
			return game, nil
		}

		game, err := r.loader.FetchGame(ctx, gameID)
		if err != nil {
			return domain.GameSession{}, err
		}
		if game.Status == domain.StatusFinished {
			r.store(ctx, game)
		}
		return game, nil
	})
	if err != nil {
		return domain.GameSession{}, err
	}
	return result.(domain.GameSession).Clone(), nil
}

func (r *SnapshotRepository) cached(ctx context.Context, gameID string) (domain.GameSession, bool) {
	raw, err := r.client.Get(ctx, r.key(gameID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("snapshot_cache_read_failed", zap.String("game_id", gameID), zap.Error(err))
		}
		return domain.GameSession{}, false
	}
	var game domain.GameSession
	if err := json.Unmarshal(raw, &game); err != nil {
		r.logger.Warn("snapshot_cache_corrupt", zap.String("game_id", gameID), zap.Error(err))
		_ = r.client.Del(ctx, r.key(gameID)).Err()
		return domain.GameSession{}, false
	}
	return game, true
}

func (r *SnapshotRepository) store(ctx context.Context, game domain.GameSession) {
	raw, err := json.Marshal(game)
	if err != nil {
		return
	}
	// best-effort; a failed write only costs a reload
	if err := r.client.Set(ctx, r.key(game.ID), raw, r.ttlWithJitter()).Err(); err != nil {
		r.logger.Warn("snapshot_cache_write_failed", zap.String("game_id", game.ID), zap.Error(err))
	}
}

func (r *SnapshotRepository) key(gameID string) string {
	return "duel:snapshot:" + gameID
}

func (r *SnapshotRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
