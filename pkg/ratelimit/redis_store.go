package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the limiter with a shared Redis counter so all instances
// of the service enforce one combined limit.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a RedisStore over an established client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Incr bumps the window counter. The expiry is attached only by the request
// that created the key, with a grace margin so a counter never outlives its
// window by less than it takes stragglers to observe it.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl+time.Second).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}
