package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Outcome classifies how a webhook was disposed of. Duplicate and Ignored are
// success-shaped: the provider must stop retrying in both cases.
type Outcome int

const (
	// Processed means the event mutated state and the claim committed.
	Processed Outcome = iota
	// Duplicate means the event was already claimed by an earlier delivery.
	Duplicate
	// Ignored means the event type is not acted on; the claim committed so
	// redeliveries short-circuit as duplicates.
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Processed:
		return "processed"
	case Duplicate:
		return "duplicate"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// TxBeginner opens database transactions. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EventClaimer records event ownership inside the caller's transaction.
// Satisfied by *ledger.Ledger.
type EventClaimer interface {
	Claim(ctx context.Context, tx ledger.DBTX, eventID, eventType string) (bool, error)
}

// Handler applies one event variant's business mutation inside the claim
// transaction. A returned error rolls back both the mutation and the claim,
// leaving the event retryable.
type Handler func(ctx context.Context, tx pgx.Tx, evt Event) error

// Invalidator drops cached reads for a (user, product) pair after commit.
// Satisfied by the entitlement cache; invalidation is best-effort and the
// implementation owns logging its failures.
type Invalidator interface {
	Invalidate(ctx context.Context, userID, productID string)
}

// Processor drives a webhook from raw bytes to a committed state change:
// verify signature, open a transaction, claim the event, route to the
// variant's handler, commit, then invalidate caches best-effort. The claim
// and the mutation share one transaction so an event is observable as
// processed if and only if its effects are.
type Processor struct {
	provider    Provider
	db          TxBeginner
	ledger      EventClaimer
	handlers    map[string]Handler
	invalidator Invalidator
	log         *slog.Logger
}

// ProcessorOption configures optional Processor collaborators.
type ProcessorOption func(*Processor)

// WithInvalidator attaches post-commit cache invalidation.
func WithInvalidator(inv Invalidator) ProcessorOption {
	return func(p *Processor) {
		p.invalidator = inv
	}
}

// WithProcessorLogger sets the logger. Defaults to discarding.
func WithProcessorLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// NewProcessor wires a Processor. The handlers map routes by concrete event
// variant type name as produced by handlerKey; use RegisterHandlers to build
// it from typed functions.
func NewProcessor(provider Provider, db TxBeginner, ledger EventClaimer, handlers map[string]Handler, opts ...ProcessorOption) *Processor {
	p := &Processor{
		provider: provider,
		db:       db,
		ledger:   ledger,
		handlers: handlers,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the full pipeline for one delivery. The returned Outcome is
// meaningful only when err is nil. Errors wrap the package sentinels so the
// HTTP layer can map them: ErrInvalidSignature and ErrMalformedPayload are
// terminal (4xx), everything else is retryable (5xx).
func (p *Processor) Process(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	evt, err := p.provider.VerifyAndParse(ctx, payload, signature)
	if err != nil {
		p.log.WarnContext(ctx, "webhook rejected", logger.Error(err))
		return 0, err
	}

	log := p.log.With(logger.EventID(evt.EventID()), logger.EventType(evt.EventType()))

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is a no-op after commit.
	defer tx.Rollback(ctx) //nolint:errcheck

	claimed, err := p.ledger.Claim(ctx, tx, evt.EventID(), evt.EventType())
	if err != nil {
		return 0, fmt.Errorf("failed to claim event: %w", err)
	}
	if !claimed {
		log.InfoContext(ctx, "duplicate webhook delivery skipped")
		return Duplicate, nil
	}

	outcome := Processed
	if handler, ok := p.handlers[handlerKey(evt)]; ok {
		if err := handler(ctx, tx, evt); err != nil {
			// Rollback discards the claim with the mutation: the next
			// delivery of this event starts clean.
			return 0, fmt.Errorf("failed to handle %s: %w", evt.EventType(), err)
		}
	} else {
		// Commit the bare claim so the provider stops redelivering.
		log.InfoContext(ctx, "webhook event type not handled")
		outcome = Ignored
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Best-effort: a skipped invalidation self-heals at the cache TTL.
	if userID, productID, ok := affectedPair(evt); ok && p.invalidator != nil {
		p.invalidator.Invalidate(ctx, userID, productID)
	}

	log.InfoContext(ctx, "webhook processed", slog.String("outcome", outcome.String()))
	return outcome, nil
}

// handlerKey routes an event variant to its handler.
func handlerKey(evt Event) string {
	switch evt.(type) {
	case CheckoutCompleted:
		return "checkout_completed"
	case InvoicePaid:
		return "invoice_paid"
	case SubscriptionUpdated:
		return "subscription_updated"
	case SubscriptionCanceled:
		return "subscription_canceled"
	default:
		return ""
	}
}
