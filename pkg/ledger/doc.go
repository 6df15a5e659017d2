// Package ledger implements the idempotency ledger that turns at-least-once
// webhook delivery into at-most-once effect. Claim inserts a processed-event
// row on the caller's transaction; sharing the commit/abort boundary with the
// business mutation is the entire correctness mechanism, so the ledger never
// opens transactions of its own.
package ledger
