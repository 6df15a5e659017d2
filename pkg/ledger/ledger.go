package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal query surface the ledger needs. Both *pgxpool.Pool and
// pgx.Tx satisfy it, which is the point: Claim must run on the caller's
// transaction while Stats and Prune run on the pool.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DefaultRetention is how long processed-event rows are kept. Once the
// upstream provider stops retrying an event, its dedup row has no value.
const DefaultRetention = 90 * 24 * time.Hour

// Ledger records which billing events have already been processed.
//
// A row's existence is the sole proof that the event's side effect committed.
// Claim therefore must run inside the same transaction as the side effect:
// if the transaction aborts, the claim rolls back with it and a provider
// retry gets a fresh chance.
type Ledger struct {
	db        DBTX
	retention time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRetention overrides the prune retention period.
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.retention = d
		}
	}
}

// New creates a Ledger over the given pool.
func New(db DBTX, opts ...Option) *Ledger {
	l := &Ledger{
		db:        db,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Claim attempts to record eventID as processed on the caller's transaction.
// It returns true if this invocation owns processing, false if the event was
// already claimed. The unique index on event_id is the concurrency control:
// of N concurrent inserts exactly one reports an affected row.
func (l *Ledger) Claim(ctx context.Context, tx DBTX, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return false, ErrEmptyEventID
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO processed_events (event_id, event_type, processed_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// Stats reports per-type processed-event counts over a trailing window.
func (l *Ledger) Stats(ctx context.Context, window time.Duration) (map[string]int64, error) {
	cutoff := time.Now().UTC().Add(-window)

	rows, err := l.db.Query(ctx,
		`SELECT event_type, count(*)
		 FROM processed_events
		 WHERE processed_at >= $1
		 GROUP BY event_type`,
		cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		stats[eventType] = count
	}

	return stats, rows.Err()
}

// Prune deletes ledger rows older than the retention period and returns the
// number of rows removed. Safe because the provider no longer retries events
// that old, so the dedup guarantee they carried is moot.
func (l *Ledger) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-l.retention)

	tag, err := l.db.Exec(ctx,
		`DELETE FROM processed_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}
