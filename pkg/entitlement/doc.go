// Package entitlement owns the per-(user, product) access records: the
// PostgreSQL store that is the source of truth, the Redis read-through cache
// that keeps the read path fast, the atomic usage counters living in the
// cache substrate, and the read-only plan catalog.
//
// The cache is derivative by design. Every read-side failure is a miss and
// every write-side failure is logged and dropped; correctness never depends
// on the volatile layer being present. Usage counters follow a deliberate
// divergence policy: the counter in Redis is authoritative between reset
// boundaries and is flushed into the durable usage_count by Reconcile, with
// the counter's TTL attached only on the increment that creates the key.
package entitlement
