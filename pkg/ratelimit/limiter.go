package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Limiter enforces fixed-window limits over a Store. Store failures fail
// open: a throttling outage must degrade to unthrottled traffic, never to an
// API outage.
type Limiter struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(log *slog.Logger) LimiterOption {
	return func(l *Limiter) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLimiter creates a Limiter over the given store.
func NewLimiter(store Store, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		store: store,
		log:   slog.New(slog.DiscardHandler),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check consumes one request slot for (identity, endpoint) under cfg and
// never returns an error: when the store is unreachable the request is
// allowed and the failure logged.
func (l *Limiter) Check(ctx context.Context, identity, endpoint string, cfg Config) Result {
	now := l.now()
	windowStart := now.Truncate(cfg.Window)
	resetAt := windowStart.Add(cfg.Window)

	key := fmt.Sprintf("ratelimit:%s:%s:%d", identity, endpoint, windowStart.Unix())

	count, err := l.store.Incr(ctx, key, cfg.Window)
	if err != nil {
		l.log.WarnContext(ctx, "rate limit store unavailable, failing open",
			logger.Identity(identity), logger.Endpoint(endpoint), logger.Error(err))
		return Result{Allowed: true, Limit: cfg.Limit, Remaining: cfg.Limit, ResetAt: resetAt}
	}

	remaining := cfg.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(cfg.Limit),
		Limit:     cfg.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
