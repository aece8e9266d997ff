package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a thin byte cache in front of hot read paths. The engine
// never depends on it; a miss always falls through to the database.
type RedisStore struct {
	Client *redis.Client
}

func NewRedisStore(opt *redis.Options) *RedisStore {
	return &RedisStore{Client: redis.NewClient(opt)}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.Client.Del(ctx, key).Err()
}

// QuoteKey caches the next vote price per epoch and candidate.
func QuoteKey(epoch uint64, candidateID string) string {
	return fmt.Sprintf("arena:quote:%d:%s", epoch, candidateID)
}

// StandingsKey caches the candidate leaderboard of one epoch.
func StandingsKey(epoch uint64) string {
	return fmt.Sprintf("arena:standings:%d", epoch)
}
