package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billingkit/pkg/entitlement"
)

// EntitlementMutator is the transactional write surface the handlers need.
// Satisfied by *entitlement.Store.
type EntitlementMutator interface {
	UpsertTx(ctx context.Context, tx entitlement.DBTX, g entitlement.Grant) (*entitlement.Entitlement, error)
	ActivateTx(ctx context.Context, tx entitlement.DBTX, userID, productID string, validUntil *time.Time) error
	ChangePlanTx(ctx context.Context, tx entitlement.DBTX, userID, productID, planID string, status entitlement.Status, validUntil *time.Time) error
	CancelTx(ctx context.Context, tx entitlement.DBTX, userID, productID string) error
}

// PlanResolver resolves plan identifiers to catalog entries. Satisfied by
// *entitlement.Registry.
type PlanResolver interface {
	Resolve(planID string) (entitlement.Plan, error)
}

// DefaultHandlers builds the standard event-to-mutation routing table over an
// entitlement store and plan catalog.
//
// Errors returned from any handler roll back the claim transaction, so the
// provider redelivers. That policy also covers out-of-order arrival: an
// invoice-paid landing before its checkout-completed fails with not-found and
// succeeds on a later delivery.
func DefaultHandlers(store EntitlementMutator, plans PlanResolver) map[string]Handler {
	return map[string]Handler{
		"checkout_completed": func(ctx context.Context, tx pgx.Tx, evt Event) error {
			e := evt.(CheckoutCompleted)

			// Unknown plans are a catalog gap, not bad data: keep the event
			// retryable so it lands once the catalog ships the plan.
			plan, err := plans.Resolve(e.PlanID)
			if err != nil {
				return fmt.Errorf("failed to resolve plan %s: %w", e.PlanID, err)
			}

			_, err = store.UpsertTx(ctx, tx, entitlement.Grant{
				UserID:       e.UserID,
				ProductID:    e.ProductID,
				PlanID:       plan.ID,
				Status:       entitlement.StatusActive,
				UsageLimit:   plan.UsageLimit,
				SoftLimit:    plan.SoftLimit,
				ValidUntil:   e.ValidUntil,
				FeatureFlags: plan.Features,
			})
			return err
		},

		"invoice_paid": func(ctx context.Context, tx pgx.Tx, evt Event) error {
			e := evt.(InvoicePaid)
			return store.ActivateTx(ctx, tx, e.UserID, e.ProductID, e.PeriodEnd)
		},

		"subscription_updated": func(ctx context.Context, tx pgx.Tx, evt Event) error {
			e := evt.(SubscriptionUpdated)
			return store.ChangePlanTx(ctx, tx, e.UserID, e.ProductID, e.PlanID, mapStatus(e.Status), e.ValidUntil)
		},

		"subscription_canceled": func(ctx context.Context, tx pgx.Tx, evt Event) error {
			e := evt.(SubscriptionCanceled)
			return store.CancelTx(ctx, tx, e.UserID, e.ProductID)
		},
	}
}

// mapStatus normalizes provider subscription statuses onto the entitlement
// state set. Unknown statuses stay active rather than silently revoking
// access on vocabulary drift.
func mapStatus(providerStatus string) entitlement.Status {
	switch providerStatus {
	case "canceled", "cancelled":
		return entitlement.StatusCancelled
	case "past_due", "paused", "trialing", "pending":
		return entitlement.StatusPending
	case "expired":
		return entitlement.StatusExpired
	default:
		return entitlement.StatusActive
	}
}
