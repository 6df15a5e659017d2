package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mountable is anything that exposes itself as an http.Handler subtree.
type Mountable interface {
	Handle() http.Handler
}

// RouterOptions configures which services to mount in the billing module.
// Each service is optional and will only be mounted if provided.
type RouterOptions struct {
	// Webhook is the provider-facing ingress, mounted at /webhooks/billing.
	Webhook Mountable

	// Entitlements is the read/usage surface, mounted at /entitlements.
	// RateLimit, when set, wraps it.
	Entitlements Mountable
	RateLimit    func(http.Handler) http.Handler

	// Internal is the trusted provisioning surface, mounted at /internal.
	// The caller is expected to guard it at the network or gateway layer.
	Internal Mountable
}

// Router assembles the billing module's HTTP surface.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/", billing.Router(billing.RouterOptions{
//	    Webhook:      webhookSvc,
//	    Entitlements: entitlementSvc,
//	    RateLimit:    ratelimit.Middleware(limiter, tier, nil),
//	    Internal:     entitlementSvc.Internal(),
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	if opts.Webhook != nil {
		r.Mount("/webhooks/billing", opts.Webhook.Handle())
	}

	if opts.Entitlements != nil {
		r.Route("/entitlements", func(er chi.Router) {
			if opts.RateLimit != nil {
				er.Use(opts.RateLimit)
			}
			er.Mount("/", opts.Entitlements.Handle())
		})
	}

	if opts.Internal != nil {
		r.Mount("/internal", opts.Internal.Handle())
	}

	return r
}
