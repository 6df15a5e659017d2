// Package redis provides the shared Redis client used by the entitlement
// cache, the usage counters, and the rate limiter: connect-with-retry at
// startup plus a readiness probe. Domain packages talk to the go-redis
// client directly; this package only manages its lifecycle.
package redis
