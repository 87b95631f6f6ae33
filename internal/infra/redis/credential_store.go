package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-duel-client/internal/domain"
)

// CredentialStore reads the bearer token from a Redis key shared with the login flow.
type CredentialStore struct {
	client *redis.Client
	key    string
}

func NewCredentialStore(client *redis.Client, key string) *CredentialStore {
	return &CredentialStore{client: client, key: key}
}

// Token returns "" when the key is absent.
func (s *CredentialStore) Token(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read credential: %v", domain.ErrConnection, err)
	}
	return token, nil
}
