// Package triggerbox provides a durable event inbox with webhook fan-out.
//
// Triggerbox is a library, not a service. Import it into your application to
// ingest externally-produced events, hold them durably until a consumer
// acknowledges or deletes them, and push signed notifications to registered
// webhook subscribers with at-least-once delivery.
//
// Key features:
//   - Idempotent ingestion via caller-supplied idempotency keys
//   - One-way pending → acknowledged lifecycle with race-safe conditional updates
//   - Per-caller fixed-window rate limiting with a fail-open error policy
//   - HMAC-SHA256 signed webhook deliveries with retry, backoff and dead-lettering
//   - Cursor-based pagination over the unbounded event set
//   - Pluggable store and queue backends (Redis, in-memory)
//
// Quick start:
//
//	tb, err := triggerbox.New(
//	    triggerbox.WithStore(memory.New()),
//	    triggerbox.WithQueue(memqueue.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tb.Start(ctx)
//	defer tb.Stop(ctx)
//
//	evt, err := tb.Ingest(ctx, "acct_123", event.CreateInput{
//	    Source:  "billing",
//	    Type:    "invoice.created",
//	    Payload: json.RawMessage(`{"invoice_id":"inv_42"}`),
//	})
//
// All cross-process coordination is delegated to the store's conditional
// writes; no in-process locks are shared across requests, so any number of
// workers can run the same code against the same backend.
package triggerbox
