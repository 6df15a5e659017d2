package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// scanBatchSize keeps SCAN iterations short so pattern invalidation never
// blocks the server the way KEYS would.
const scanBatchSize = 500

// RedisCache implements Cache on the shared Redis client.
type RedisCache struct {
	client redis.UniversalClient
	log    *slog.Logger
}

// NewRedisCache creates a RedisCache. A nil logger discards log output.
func NewRedisCache(client redis.UniversalClient, log *slog.Logger) *RedisCache {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &RedisCache{
		client: client,
		log:    log.With(logger.Component("entitlement_cache")),
	}
}

func (c *RedisCache) Get(ctx context.Context, userID, productID string) (*Entitlement, bool) {
	key := entitlementKey(userID, productID)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// Backend failure degrades to a miss; the store remains correct.
			c.log.WarnContext(ctx, "cache read failed", logger.CacheKey(key), logger.Error(err))
		}
		return nil, false
	}

	var e Entitlement
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.WarnContext(ctx, "cache entry corrupt, dropping", logger.CacheKey(key), logger.Error(err))
		c.client.Del(ctx, key)
		return nil, false
	}

	return &e, true
}

func (c *RedisCache) Set(ctx context.Context, e *Entitlement, ttl time.Duration) {
	if e == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	key := entitlementKey(e.UserID, e.ProductID)

	raw, err := json.Marshal(e)
	if err != nil {
		c.log.WarnContext(ctx, "cache entry marshal failed", logger.CacheKey(key), logger.Error(err))
		return
	}

	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "cache write failed", logger.CacheKey(key), logger.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, userID, productID string) {
	key := entitlementKey(userID, productID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.WarnContext(ctx, "cache invalidation failed", logger.CacheKey(key), logger.Error(err))
	}
}

func (c *RedisCache) InvalidateUser(ctx context.Context, userID string) {
	for _, pattern := range userPatterns(userID) {
		var cursor uint64
		for {
			keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
			if err != nil {
				c.log.WarnContext(ctx, "cache pattern scan failed",
					logger.UserID(userID), slog.String("pattern", pattern), logger.Error(err))
				break
			}
			if len(keys) > 0 {
				if err := c.client.Del(ctx, keys...).Err(); err != nil {
					c.log.WarnContext(ctx, "cache pattern delete failed",
						logger.UserID(userID), logger.Error(err))
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
}

func (c *RedisCache) IncrementUsage(ctx context.Context, userID, productID string, amount int64, ttl time.Duration) (int64, error) {
	key := usageKey(userID, productID)

	count, err := c.client.IncrBy(ctx, key, amount).Result()
	if err != nil {
		return 0, err
	}

	// The creating increment is the only one that sees count == amount;
	// attaching the TTL here and never refreshing it keeps the reset cadence
	// bounded regardless of traffic.
	if count == amount && ttl > 0 {
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			c.log.WarnContext(ctx, "usage counter ttl attach failed",
				logger.CacheKey(key), logger.Error(err))
		}
	}

	return count, nil
}

func (c *RedisCache) UsageCount(ctx context.Context, userID, productID string) (int64, bool) {
	key := usageKey(userID, productID)

	count, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WarnContext(ctx, "usage counter read failed", logger.CacheKey(key), logger.Error(err))
		}
		return 0, false
	}

	return count, true
}

func (c *RedisCache) TakeUsage(ctx context.Context, userID, productID string) (int64, error) {
	key := usageKey(userID, productID)

	count, err := c.client.GetDel(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	return count, nil
}
