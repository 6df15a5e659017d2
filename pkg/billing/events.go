package billing

import (
	"encoding/json"
	"errors"
	"time"
)

// Event is the closed set of billing events the router understands. Each
// supported provider event type maps to exactly one variant; everything else
// becomes Unrecognized. Variants are produced by a validating parse at the
// ingress boundary so handlers never inspect raw provider JSON.
type Event interface {
	EventID() string
	EventType() string

	// sealed prevents variants outside this package.
	sealed()
}

// Meta carries the fields every event shares.
type Meta struct {
	ID         string
	Type       string
	OccurredAt time.Time
}

func (m Meta) EventID() string   { return m.ID }
func (m Meta) EventType() string { return m.Type }
func (m Meta) sealed()           {}

// CheckoutCompleted signals a finished checkout: the first provisioning
// event for a (user, product) pair.
type CheckoutCompleted struct {
	Meta
	UserID     string
	ProductID  string
	PlanID     string
	ValidUntil *time.Time
}

// InvoicePaid signals a successful payment: activates a pending entitlement
// or renews an active one, refreshing its validity window.
type InvoicePaid struct {
	Meta
	UserID    string
	ProductID string
	PeriodEnd *time.Time
}

// SubscriptionUpdated signals a plan or status change.
type SubscriptionUpdated struct {
	Meta
	UserID     string
	ProductID  string
	PlanID     string
	Status     string
	ValidUntil *time.Time
}

// SubscriptionCanceled signals a cancellation.
type SubscriptionCanceled struct {
	Meta
	UserID    string
	ProductID string
}

// Unrecognized is an authentic event of a type this system intentionally
// ignores. It is not an error: the router claims and commits it so the
// provider stops retrying.
type Unrecognized struct {
	Meta
	Raw json.RawMessage
}

// wireEvent is the generic JSON envelope shared by HMAC-signed providers.
type wireEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       wireData  `json:"data"`
}

type wireData struct {
	UserID     string     `json:"user_id"`
	ProductID  string     `json:"product_id"`
	PlanID     string     `json:"plan_id"`
	Status     string     `json:"status"`
	PeriodEnd  *time.Time `json:"period_end"`
	ValidUntil *time.Time `json:"valid_until"`
}

// Generic wire event types, following the common checkout/invoice/
// subscription naming billing providers use.
const (
	TypeCheckoutCompleted    = "checkout.session.completed"
	TypeInvoicePaid          = "invoice.paid"
	TypeSubscriptionUpdated  = "customer.subscription.updated"
	TypeSubscriptionCanceled = "customer.subscription.deleted"
)

// parseWireEvent validates a generic envelope and produces the matching
// variant. Recognized types with missing identifiers are malformed: the
// provider will not send better data on retry, so they fail as 4xx.
func parseWireEvent(payload []byte) (Event, error) {
	var we wireEvent
	if err := json.Unmarshal(payload, &we); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	if we.EventID == "" || we.EventType == "" {
		return nil, ErrMalformedPayload
	}

	meta := Meta{ID: we.EventID, Type: we.EventType, OccurredAt: we.OccurredAt}

	switch we.EventType {
	case TypeCheckoutCompleted:
		if we.Data.UserID == "" || we.Data.ProductID == "" || we.Data.PlanID == "" {
			return nil, ErrMalformedPayload
		}
		return CheckoutCompleted{
			Meta:       meta,
			UserID:     we.Data.UserID,
			ProductID:  we.Data.ProductID,
			PlanID:     we.Data.PlanID,
			ValidUntil: we.Data.ValidUntil,
		}, nil

	case TypeInvoicePaid:
		if we.Data.UserID == "" || we.Data.ProductID == "" {
			return nil, ErrMalformedPayload
		}
		return InvoicePaid{
			Meta:      meta,
			UserID:    we.Data.UserID,
			ProductID: we.Data.ProductID,
			PeriodEnd: we.Data.PeriodEnd,
		}, nil

	case TypeSubscriptionUpdated:
		if we.Data.UserID == "" || we.Data.ProductID == "" {
			return nil, ErrMalformedPayload
		}
		return SubscriptionUpdated{
			Meta:       meta,
			UserID:     we.Data.UserID,
			ProductID:  we.Data.ProductID,
			PlanID:     we.Data.PlanID,
			Status:     we.Data.Status,
			ValidUntil: we.Data.ValidUntil,
		}, nil

	case TypeSubscriptionCanceled:
		if we.Data.UserID == "" || we.Data.ProductID == "" {
			return nil, ErrMalformedPayload
		}
		return SubscriptionCanceled{
			Meta:      meta,
			UserID:    we.Data.UserID,
			ProductID: we.Data.ProductID,
		}, nil

	default:
		return Unrecognized{Meta: meta, Raw: json.RawMessage(payload)}, nil
	}
}

// affectedPair reports the (user, product) pair an event touches, for
// post-commit cache invalidation. Unrecognized events touch nothing.
func affectedPair(evt Event) (userID, productID string, ok bool) {
	switch e := evt.(type) {
	case CheckoutCompleted:
		return e.UserID, e.ProductID, true
	case InvoicePaid:
		return e.UserID, e.ProductID, true
	case SubscriptionUpdated:
		return e.UserID, e.ProductID, true
	case SubscriptionCanceled:
		return e.UserID, e.ProductID, true
	default:
		return "", "", false
	}
}
