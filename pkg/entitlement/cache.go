package entitlement

import (
	"context"
	"fmt"
	"time"
)

// DefaultCacheTTL bounds staleness of cached entitlement snapshots to one
// window while keeping the read path off the database.
const DefaultCacheTTL = 60 * time.Second

// Cache is the volatile layer over the entitlement store. Entries are
// derivative and disposable: losing the cache degrades latency, never
// correctness. Implementations must treat backend failures as misses on the
// read side and swallow them (logged) on the write side; only the counter
// operations surface errors so the caller can fall back to the durable path.
type Cache interface {
	// Get returns a cached snapshot, or miss. Backend failure is a miss.
	Get(ctx context.Context, userID, productID string) (*Entitlement, bool)

	// Set stores a snapshot with the given TTL (DefaultCacheTTL when <= 0).
	// Best-effort: failures are logged, never returned.
	Set(ctx context.Context, e *Entitlement, ttl time.Duration)

	// Invalidate drops the snapshot for one (user, product) pair. Best-effort.
	Invalidate(ctx context.Context, userID, productID string)

	// InvalidateUser drops all snapshots and counters under the user's key
	// prefix. Unreconciled usage counters are lost; callers use this for
	// destructive administrative changes only. Best-effort.
	InvalidateUser(ctx context.Context, userID string)

	// IncrementUsage atomically adds amount to the usage counter and returns
	// the new value. The TTL is attached only on the increment that creates
	// the key (post-increment value == amount); later increments must not
	// refresh it, or a continuously active user would hold the counter past
	// its reset boundary forever.
	IncrementUsage(ctx context.Context, userID, productID string, amount int64, ttl time.Duration) (int64, error)

	// UsageCount returns the live in-window counter value, or miss.
	UsageCount(ctx context.Context, userID, productID string) (int64, bool)

	// TakeUsage atomically reads and deletes the counter, returning the
	// value to flush into the durable store at a reset boundary.
	// An absent counter is zero, not an error.
	TakeUsage(ctx context.Context, userID, productID string) (int64, error)
}

func entitlementKey(userID, productID string) string {
	return fmt.Sprintf("entitlement:%s:%s", userID, productID)
}

func usageKey(userID, productID string) string {
	return fmt.Sprintf("usage:%s:%s", userID, productID)
}

func userPatterns(userID string) []string {
	return []string{
		fmt.Sprintf("entitlement:%s:*", userID),
		fmt.Sprintf("usage:%s:*", userID),
	}
}
