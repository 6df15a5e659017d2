package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// DBTX is the minimal query surface the store needs. Both *pgxpool.Pool and
// pgx.Tx satisfy it; webhook handlers pass their transaction so entitlement
// mutations share the idempotency claim's commit/abort boundary.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Grant describes an idempotent entitlement upsert, used both by the
// internal grant endpoint and the checkout-completed handler.
type Grant struct {
	UserID       string
	ProductID    string
	PlanID       string
	Status       Status
	UsageLimit   int64
	SoftLimit    int64
	ValidUntil   *time.Time
	FeatureFlags map[string]any
}

const entitlementColumns = `id, user_id, product_id, plan_id, status, feature_flags,
	usage_limit, usage_count, soft_limit, usage_reset_at, valid_until, created_at, updated_at`

// Store persists entitlements in PostgreSQL.
type Store struct {
	db DBTX
}

// NewStore creates a Store over the given pool.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// Get retrieves the entitlement for a (user, product) pair.
// Returns ErrNotFound when no row exists.
func (s *Store) Get(ctx context.Context, userID, productID string) (*Entitlement, error) {
	return s.GetTx(ctx, s.db, userID, productID)
}

// GetTx is Get on the caller's transaction.
func (s *Store) GetTx(ctx context.Context, tx DBTX, userID, productID string) (*Entitlement, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+entitlementColumns+`
		 FROM entitlements
		 WHERE user_id = $1 AND product_id = $2`,
		userID, productID)

	return scanEntitlement(row)
}

// Upsert inserts or updates an entitlement keyed on (user_id, product_id).
// The row's id is stable across repeated grants: a conflict keeps the
// original id and only refreshes plan, status, limits, flags, and updated_at.
func (s *Store) Upsert(ctx context.Context, g Grant) (*Entitlement, error) {
	return s.UpsertTx(ctx, s.db, g)
}

// UpsertTx is Upsert on the caller's transaction.
func (s *Store) UpsertTx(ctx context.Context, tx DBTX, g Grant) (*Entitlement, error) {
	if g.UserID == "" || g.ProductID == "" || g.PlanID == "" {
		return nil, ErrInvalidGrant
	}

	status := g.Status
	if status == "" {
		status = StatusActive
	}
	flags := g.FeatureFlags
	if flags == nil {
		flags = map[string]any{}
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO entitlements
		 (id, user_id, product_id, plan_id, status, feature_flags, usage_limit, usage_count, soft_limit, valid_until, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, now(), now())
		 ON CONFLICT (user_id, product_id) DO UPDATE SET
			plan_id       = EXCLUDED.plan_id,
			status        = EXCLUDED.status,
			feature_flags = EXCLUDED.feature_flags,
			usage_limit   = EXCLUDED.usage_limit,
			soft_limit    = EXCLUDED.soft_limit,
			valid_until   = EXCLUDED.valid_until,
			updated_at    = now()
		 RETURNING `+entitlementColumns,
		uuid.New(), g.UserID, g.ProductID, g.PlanID, status, flags,
		g.UsageLimit, g.SoftLimit, g.ValidUntil)

	return scanEntitlement(row)
}

// ActivateTx transitions a pending entitlement to active and refreshes the
// validity window. Used by the invoice-paid handler; already-active rows are
// renewed the same way.
func (s *Store) ActivateTx(ctx context.Context, tx DBTX, userID, productID string, validUntil *time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE entitlements
		 SET status = $3, valid_until = COALESCE($4, valid_until), updated_at = now()
		 WHERE user_id = $1 AND product_id = $2 AND status <> $5`,
		userID, productID, StatusActive, validUntil, StatusCancelled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ChangePlanTx applies a plan or status change from the billing provider.
func (s *Store) ChangePlanTx(ctx context.Context, tx DBTX, userID, productID, planID string, status Status, validUntil *time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE entitlements
		 SET plan_id = $3, status = $4, valid_until = COALESCE($5, valid_until), updated_at = now()
		 WHERE user_id = $1 AND product_id = $2`,
		userID, productID, planID, status, validUntil)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelTx transitions an entitlement to cancelled.
func (s *Store) CancelTx(ctx context.Context, tx DBTX, userID, productID string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE entitlements
		 SET status = $3, updated_at = now()
		 WHERE user_id = $1 AND product_id = $2`,
		userID, productID, StatusCancelled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddUsage flushes a usage delta from the cache counter into the durable
// count at a reset boundary. resetAt, when non-nil, records the next boundary.
func (s *Store) AddUsage(ctx context.Context, userID, productID string, delta int64, resetAt *time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE entitlements
		 SET usage_count = usage_count + $3, usage_reset_at = COALESCE($4, usage_reset_at), updated_at = now()
		 WHERE user_id = $1 AND product_id = $2`,
		userID, productID, delta, resetAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntitlement(row pgx.Row) (*Entitlement, error) {
	var e Entitlement
	err := row.Scan(
		&e.ID, &e.UserID, &e.ProductID, &e.PlanID, &e.Status, &e.FeatureFlags,
		&e.UsageLimit, &e.UsageCount, &e.SoftLimit, &e.UsageResetAt, &e.ValidUntil,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
