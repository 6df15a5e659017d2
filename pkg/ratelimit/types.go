package ratelimit

import "time"

// Config describes one fixed-window rate limit: at most Limit requests per
// Window per identity.
type Config struct {
	Limit  int
	Window time.Duration
}

// Validate reports whether the config describes an enforceable limit.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return ErrInvalidLimit
	}
	if c.Window <= 0 {
		return ErrInvalidWindow
	}
	return nil
}

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is the time when the current window closes and counters reset.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Named tiers matching the plan catalog's rate_tier values.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// DefaultTiers returns the standard tier table. Callers may override
// individual entries before handing the table to middleware.
func DefaultTiers() map[string]Config {
	return map[string]Config{
		TierFree:       {Limit: 60, Window: time.Minute},
		TierPro:        {Limit: 600, Window: time.Minute},
		TierEnterprise: {Limit: 6000, Window: time.Minute},
	}
}
