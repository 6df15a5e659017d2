package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/clientip"
)

type ctxKey struct{}

// WithIdentity stores an authenticated subject on the context so rate limits
// follow the account rather than the network address.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity)
}

// IdentityFromContext returns the subject set by WithIdentity, if any.
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(ctxKey{}).(string)
	return identity, ok && identity != ""
}

// KeyFunc extracts the rate limit identity from a request.
type KeyFunc func(*http.Request) string

// SubjectOrIP is the default KeyFunc: the authenticated subject when present,
// the client IP otherwise.
func SubjectOrIP(r *http.Request) string {
	if identity, ok := IdentityFromContext(r.Context()); ok {
		return identity
	}
	return clientip.GetIP(r)
}

// Middleware enforces cfg per identity and request path. Every response
// carries the X-RateLimit-* headers; rejections get 429 with Retry-After.
// Panics on an invalid config: a misconfigured limit is a deploy error.
func Middleware(limiter *Limiter, cfg Config, keyFunc KeyFunc) func(http.Handler) http.Handler {
	if err := cfg.Validate(); err != nil {
		panic("ratelimit.Middleware: " + err.Error())
	}
	if keyFunc == nil {
		keyFunc = SubjectOrIP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := keyFunc(r)
			if identity == "" {
				next.ServeHTTP(w, r)
				return
			}

			result := limiter.Check(r.Context(), identity, r.URL.Path, cfg)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", result.ResetAt.UTC().Format(time.RFC3339))

			if !result.Allowed {
				retryAfter := int(result.RetryAfter().Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TierMiddleware looks up the tier by name in the table and delegates to
// Middleware. Returns ErrUnknownTier instead of panicking so startup wiring
// can surface a typo as a config error.
func TierMiddleware(limiter *Limiter, tiers map[string]Config, tier string, keyFunc KeyFunc) (func(http.Handler) http.Handler, error) {
	cfg, ok := tiers[tier]
	if !ok {
		return nil, ErrUnknownTier
	}
	return Middleware(limiter, cfg, keyFunc), nil
}
