package entitlement

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache implements Cache with in-process storage. It mirrors the Redis
// implementation's semantics (TTL-on-create counters, pattern invalidation)
// so tests and single-instance dev setups exercise the same contract the
// production substrate enforces.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	counters map[string]*memoryCounter
}

type memoryEntry struct {
	value     Entitlement
	expiresAt time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time // zero means no TTL attached yet
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:  make(map[string]memoryEntry),
		counters: make(map[string]*memoryCounter),
	}
}

func (c *MemoryCache) Get(ctx context.Context, userID, productID string) (*Entitlement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[entitlementKey(userID, productID)]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}

	value := entry.value
	return &value, true
}

func (c *MemoryCache) Set(ctx context.Context, e *Entitlement, ttl time.Duration) {
	if e == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entitlementKey(e.UserID, e.ProductID)] = memoryEntry{
		value:     *e,
		expiresAt: time.Now().Add(ttl),
	}
}

func (c *MemoryCache) Invalidate(ctx context.Context, userID, productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, entitlementKey(userID, productID))
}

func (c *MemoryCache) InvalidateUser(ctx context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, pattern := range userPatterns(userID) {
		prefix := strings.TrimSuffix(pattern, "*")
		for key := range c.entries {
			if strings.HasPrefix(key, prefix) {
				delete(c.entries, key)
			}
		}
		for key := range c.counters {
			if strings.HasPrefix(key, prefix) {
				delete(c.counters, key)
			}
		}
	}
}

func (c *MemoryCache) IncrementUsage(ctx context.Context, userID, productID string, amount int64, ttl time.Duration) (int64, error) {
	key := usageKey(userID, productID)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	counter, ok := c.counters[key]
	if ok && !counter.expiresAt.IsZero() && now.After(counter.expiresAt) {
		ok = false
	}
	if !ok {
		counter = &memoryCounter{}
		c.counters[key] = counter
	}

	counter.count += amount

	// TTL attaches only on the creating increment, matching the Redis path.
	if counter.count == amount && ttl > 0 {
		counter.expiresAt = now.Add(ttl)
	}

	return counter.count, nil
}

func (c *MemoryCache) UsageCount(ctx context.Context, userID, productID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counter, ok := c.counters[usageKey(userID, productID)]
	if !ok || (!counter.expiresAt.IsZero() && time.Now().After(counter.expiresAt)) {
		return 0, false
	}

	return counter.count, true
}

func (c *MemoryCache) TakeUsage(ctx context.Context, userID, productID string) (int64, error) {
	key := usageKey(userID, productID)

	c.mu.Lock()
	defer c.mu.Unlock()

	counter, ok := c.counters[key]
	if !ok {
		return 0, nil
	}
	delete(c.counters, key)

	if !counter.expiresAt.IsZero() && time.Now().After(counter.expiresAt) {
		return 0, nil
	}

	return counter.count, nil
}

// ExpiresAt exposes a counter's TTL deadline for tests verifying the
// TTL-on-create invariant. The second result reports key existence.
func (c *MemoryCache) ExpiresAt(userID, productID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counter, ok := c.counters[usageKey(userID, productID)]
	if !ok {
		return time.Time{}, false
	}
	return counter.expiresAt, true
}
