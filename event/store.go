package event

import (
	"context"
	"time"

	"github.com/triggerbox/triggerbox/cursor"
)

// ListOpts configures filtering and pagination for pending-event listing.
//
// The store pages strictly by the (status, created_at) index; the attribute
// filters are applied to each fetched page after the fact, so a page may come
// back shorter than Limit even when more results exist.
type ListOpts struct {
	// Limit caps the page size. The store clamps it to its own maximum.
	Limit int

	// StartKey resumes listing after a previous page's NextKey.
	StartKey cursor.PageKey

	// Source, Type, Priority filter on event attributes.
	Source   string
	Type     string
	Priority Priority

	// CreatedAfter and CreatedBefore bound the creation time.
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// Page is one page of pending events in ascending creation order.
type Page struct {
	Events []*Event

	// NextKey resumes the listing; nil means the listing is exhausted.
	NextKey cursor.PageKey
}

// Store defines the persistence contract for events.
//
// Implementations coordinate concurrent callers exclusively through
// conditional writes: AcknowledgeEvent must be a compare-and-swap on status,
// and no method may rely on in-process locking visible across processes.
type Store interface {
	// CreateEvent persists a new event. Must be durable before returning.
	CreateEvent(ctx context.Context, evt *Event) error

	// GetEvent returns an event by ID. Returns ErrEventNotFound when the
	// event does not exist.
	GetEvent(ctx context.Context, eventID string) (*Event, error)

	// AcknowledgeEvent transitions status pending → acknowledged with a
	// conditional update, guaranteeing at most one winner among concurrent
	// callers. Returns the updated event, ErrEventConflict when the condition
	// fails (already acknowledged), or ErrEventNotFound.
	AcknowledgeEvent(ctx context.Context, eventID string, ackAt time.Time) (*Event, error)

	// DeleteEvent removes an event. Deleting a missing event is not an error.
	DeleteEvent(ctx context.Context, eventID string) error

	// ListPending returns one page of pending events ordered by ascending
	// creation time.
	ListPending(ctx context.Context, opts ListOpts) (*Page, error)
}
