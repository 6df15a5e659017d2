// Package billing is the webhook ingress for the entitlement system: it
// verifies provider signatures, parses payloads into a closed event variant
// set, and processes each event exactly once.
//
// Exactly-once semantics come from pairing the idempotency claim with the
// business mutation in a single database transaction. The Processor claims
// the event ID, routes the event to its handler inside the same transaction,
// and commits both together. A duplicate delivery fails the claim and returns
// a success-shaped Duplicate outcome; a handler failure rolls back the claim
// with the mutation, leaving the event retryable.
//
// # Providers
//
// Two Provider implementations ship: PaddleProvider wraps the official Paddle
// SDK webhook verifier, HMACProvider implements the generic timestamped
// HMAC-SHA256 scheme (header `t=<unix>,v1=<hex>`, message `<unix>.<payload>`)
// for providers following the Stripe convention.
//
// # Usage
//
//	provider, err := billing.NewProvider(cfg)
//	if err != nil {
//		return err
//	}
//
//	processor := billing.NewProcessor(provider, pool, eventLedger,
//		billing.DefaultHandlers(store, registry),
//		billing.WithInvalidator(cache),
//		billing.WithProcessorLogger(log),
//	)
//
//	outcome, err := processor.Process(ctx, payload, signatureHeader)
//
// Unrecognized event types are not errors: the claim commits so the provider
// stops redelivering, and the outcome is Ignored.
package billing
