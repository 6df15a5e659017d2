// Package ratelimit provides distributed fixed-window rate limiting keyed by
// identity and endpoint.
//
// The window start is encoded into the counter key, so the storage contract
// is a single atomic increment. RedisStore shares one counter across all
// service instances; MemoryStore serves tests and single-instance setups.
//
// Store failures fail open: requests pass unthrottled and the failure is
// logged. The limiter protects the API from abusive traffic, it must never
// turn a Redis outage into an API outage.
//
//	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(client),
//		ratelimit.WithLogger(log))
//
//	r.Use(ratelimit.Middleware(limiter, ratelimit.DefaultTiers()[ratelimit.TierFree], nil))
package ratelimit
