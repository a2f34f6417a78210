// Package store defines the composite Store interface for all Triggerbox
// persistence.
//
// Each subsystem defines its own narrow store interface, and the aggregate
// Store composes them all. Backends live in subpackages: memory for tests
// and embedding, redis for production.
package store

import (
	"context"

	"github.com/triggerbox/triggerbox/dlq"
	"github.com/triggerbox/triggerbox/event"
	"github.com/triggerbox/triggerbox/idempotency"
	"github.com/triggerbox/triggerbox/ratelimit"
	"github.com/triggerbox/triggerbox/webhook"
)

// Store is the aggregate persistence interface.
type Store interface {
	event.Store
	idempotency.Store
	ratelimit.WindowStore
	webhook.Store
	dlq.Store

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
