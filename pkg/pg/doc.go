// Package pg wires the pgx connection pool used as the entitlement system's
// source of truth: connect-with-retry, goose migrations, a readiness probe,
// and error classifiers (not-found, duplicate key, foreign key) so callers
// branch on predicates instead of SQLSTATE strings.
package pg
