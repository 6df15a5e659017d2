package ratelimit

import (
	"context"
	"time"
)

// Store is the counter backend for fixed-window limiting. Keys already
// encode the window start, so Incr only needs to bump and expire.
type Store interface {
	// Incr atomically increments the counter at key, attaching ttl when the
	// increment created the key. Returns the post-increment count.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
