package entitlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// DefaultUsageWindow bounds a usage counter's lifetime when the entitlement
// carries no explicit reset boundary.
const DefaultUsageWindow = 30 * 24 * time.Hour

// EntitlementStore is the durable persistence surface the service needs.
// *Store satisfies it.
type EntitlementStore interface {
	Get(ctx context.Context, userID, productID string) (*Entitlement, error)
	Upsert(ctx context.Context, g Grant) (*Entitlement, error)
	AddUsage(ctx context.Context, userID, productID string, delta int64, resetAt *time.Time) error
}

// UsageResult reports the outcome of recording a metered action.
type UsageResult struct {
	Count         int64 // durable count plus the live in-window counter
	OverLimit     bool  // past the plan limit: warn
	OverSoftLimit bool  // past the grace ceiling: enforce
}

// GrantRequest describes an administrative or provisioning grant. Limits and
// flags default from the resolved plan when unset.
type GrantRequest struct {
	UserID       string
	ProductID    string
	PlanID       string
	UsageLimit   *int64
	SoftLimit    *int64
	ValidUntil   *time.Time
	FeatureFlags map[string]any
}

// Service is the read-through entitlement surface: cache in front, store as
// truth, counters in the cache substrate.
type Service struct {
	store EntitlementStore
	cache Cache
	plans *Registry
	log   *slog.Logger

	cacheTTL    time.Duration
	usageWindow time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCacheTTL overrides the snapshot TTL.
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithUsageWindow overrides the fallback counter lifetime.
func WithUsageWindow(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.usageWindow = d
		}
	}
}

// NewService creates a Service. Panics on nil dependencies to fail fast at
// startup rather than on the first request.
func NewService(store EntitlementStore, cache Cache, plans *Registry, log *slog.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("entitlement: store is required")
	}
	if cache == nil {
		panic("entitlement: cache is required")
	}
	if plans == nil {
		panic("entitlement: plan registry is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Service{
		store:       store,
		cache:       cache,
		plans:       plans,
		log:         log.With(logger.Component("entitlement")),
		cacheTTL:    DefaultCacheTTL,
		usageWindow: DefaultUsageWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the entitlement for a (user, product) pair, serving from the
// cache when possible and falling back to the store on a miss. Expiry is
// applied lazily on the way out, so a snapshot cached while valid still
// reads as expired once valid_until elapses.
func (s *Service) Get(ctx context.Context, userID, productID string) (*Entitlement, error) {
	if e, ok := s.cache.Get(ctx, userID, productID); ok {
		e.Status = e.EffectiveStatus(time.Now().UTC())
		return e, nil
	}

	e, err := s.store.Get(ctx, userID, productID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, e, s.cacheTTL)

	e.Status = e.EffectiveStatus(time.Now().UTC())
	return e, nil
}

// Grant idempotently upserts an entitlement. The plan must resolve to an
// active catalog entry; unset limits and flags default from it. The cached
// snapshot is invalidated afterward, best-effort.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*Entitlement, error) {
	if req.UserID == "" || req.ProductID == "" || req.PlanID == "" {
		return nil, ErrInvalidGrant
	}

	plan, err := s.plans.Resolve(req.PlanID)
	if err != nil {
		return nil, err
	}

	g := Grant{
		UserID:       req.UserID,
		ProductID:    req.ProductID,
		PlanID:       plan.ID,
		Status:       StatusActive,
		UsageLimit:   plan.UsageLimit,
		SoftLimit:    plan.SoftLimit,
		ValidUntil:   req.ValidUntil,
		FeatureFlags: plan.Features,
	}
	if req.UsageLimit != nil {
		g.UsageLimit = *req.UsageLimit
	}
	if req.SoftLimit != nil {
		g.SoftLimit = *req.SoftLimit
	}
	if req.FeatureFlags != nil {
		g.FeatureFlags = req.FeatureFlags
	}
	if g.ValidUntil == nil && plan.TrialDays > 0 {
		trialEnd := time.Now().UTC().AddDate(0, 0, plan.TrialDays)
		g.ValidUntil = &trialEnd
	}

	e, err := s.store.Upsert(ctx, g)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, req.UserID, req.ProductID)

	return e, nil
}

// RecordUsage increments the usage counter for a metered action and reports
// the combined count against the entitlement's limits. Counter failures fall
// back to the durable store so no usage is lost, at the cost of a slower
// request; the cache substrate being down must never fail the caller.
func (s *Service) RecordUsage(ctx context.Context, userID, productID string, amount int64) (UsageResult, error) {
	e, err := s.Get(ctx, userID, productID)
	if err != nil {
		return UsageResult{}, err
	}

	count, err := s.cache.IncrementUsage(ctx, userID, productID, amount, s.counterTTL(e))
	if err != nil {
		s.log.WarnContext(ctx, "usage counter unavailable, falling back to store",
			logger.UserID(userID), logger.ProductID(productID), logger.Error(err))

		if err := s.store.AddUsage(ctx, userID, productID, amount, nil); err != nil {
			return UsageResult{}, err
		}
		count = amount
	}

	total := e.UsageCount + count
	return UsageResult{
		Count:         total,
		OverLimit:     e.OverLimit(total),
		OverSoftLimit: e.OverSoftLimit(total),
	}, nil
}

// Usage returns the combined durable-plus-live usage count.
func (s *Service) Usage(ctx context.Context, userID, productID string) (int64, error) {
	e, err := s.Get(ctx, userID, productID)
	if err != nil {
		return 0, err
	}

	count, _ := s.cache.UsageCount(ctx, userID, productID)
	return e.UsageCount + count, nil
}

// Reconcile flushes the live counter into the durable usage_count at a reset
// boundary and drops the cached snapshot so the next read sees the flushed
// figure. A zero counter is a no-op apart from recording the next boundary.
func (s *Service) Reconcile(ctx context.Context, userID, productID string, nextReset time.Time) error {
	delta, err := s.cache.TakeUsage(ctx, userID, productID)
	if err != nil {
		return err
	}

	if err := s.store.AddUsage(ctx, userID, productID, delta, &nextReset); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, userID, productID)
	return nil
}

// counterTTL sizes a new counter's lifetime to the entitlement's reset
// boundary when one is set and still ahead of us.
func (s *Service) counterTTL(e *Entitlement) time.Duration {
	if e.UsageResetAt != nil {
		if until := time.Until(*e.UsageResetAt); until > 0 {
			return until
		}
	}
	return s.usageWindow
}
