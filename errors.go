package triggerbox

import "errors"

// Sentinel errors returned by Triggerbox operations. Store backends return
// these for expected outcomes (missing rows, lost conditional writes) so
// callers can tell an expected race from a genuine backend failure.
var (
	// ErrNoStore is returned when an Engine is created without a store.
	ErrNoStore = errors.New("triggerbox: store is required")

	// ErrNoQueue is returned when an Engine is created without a delivery queue.
	ErrNoQueue = errors.New("triggerbox: delivery queue is required")

	// ErrEventNotFound is returned when an event cannot be found.
	ErrEventNotFound = errors.New("triggerbox: event not found")

	// ErrEventConflict is returned when a conditional status transition loses:
	// the event was already acknowledged by a concurrent caller.
	ErrEventConflict = errors.New("triggerbox: event already acknowledged")

	// ErrWebhookNotFound is returned when a webhook cannot be found.
	ErrWebhookNotFound = errors.New("triggerbox: webhook not found")

	// ErrDLQNotFound is returned when a dead-letter entry cannot be found.
	ErrDLQNotFound = errors.New("triggerbox: dead-letter entry not found")

	// ErrStoreClosed is returned when a store operation is attempted after the
	// store is closed.
	ErrStoreClosed = errors.New("triggerbox: store is closed")
)
