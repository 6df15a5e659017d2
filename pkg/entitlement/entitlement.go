package entitlement

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of an entitlement.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Unlimited indicates no usage limit (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// Entitlement grants a user access to a product under a plan, with usage
// bounds and feature flags. Rows are unique per (user_id, product_id) and
// are never hard-deleted, only status-transitioned.
type Entitlement struct {
	ID           uuid.UUID
	UserID       string
	ProductID    string
	PlanID       string
	Status       Status
	FeatureFlags map[string]any
	UsageLimit   int64
	UsageCount   int64 // durable count; the live in-window figure lives in the cache substrate
	SoftLimit    int64 // grace ceiling above UsageLimit where hard enforcement starts
	UsageResetAt *time.Time
	ValidUntil   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EffectiveStatus returns the status as of now, accounting for lazy expiry:
// no handler transitions entitlements to expired, readers detect it when
// valid_until has elapsed.
func (e *Entitlement) EffectiveStatus(now time.Time) Status {
	if e.Status == StatusCancelled || e.Status == StatusExpired {
		return e.Status
	}
	if e.ValidUntil != nil && now.After(*e.ValidUntil) {
		return StatusExpired
	}
	return e.Status
}

// IsActive reports whether the entitlement grants access as of now.
func (e *Entitlement) IsActive(now time.Time) bool {
	return e.EffectiveStatus(now) == StatusActive
}

// OverLimit reports whether count exceeds the plan's usage limit.
// Callers typically warn here and keep serving until OverSoftLimit.
func (e *Entitlement) OverLimit(count int64) bool {
	if e.UsageLimit == Unlimited {
		return false
	}
	return count > e.UsageLimit
}

// OverSoftLimit reports whether count exceeds the grace ceiling, the point
// of hard enforcement. A zero soft limit means no grace: the usage limit
// itself is the ceiling.
func (e *Entitlement) OverSoftLimit(count int64) bool {
	if e.UsageLimit == Unlimited {
		return false
	}
	ceiling := e.SoftLimit
	if ceiling <= 0 || ceiling < e.UsageLimit {
		ceiling = e.UsageLimit
	}
	return count > ceiling
}

// HasFeature reports whether a boolean feature flag is enabled.
func (e *Entitlement) HasFeature(name string) bool {
	v, ok := e.FeatureFlags[name]
	if !ok {
		return false
	}
	enabled, ok := v.(bool)
	return ok && enabled
}
