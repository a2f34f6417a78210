package dlq

import (
	"context"
	"time"
)

// Store defines the persistence contract for the dead letter queue.
type Store interface {
	// PushDLQ stores a permanently failed delivery.
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries newest first, optionally filtered.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ returns an entry by ID. Returns ErrDLQNotFound when absent.
	GetDLQ(ctx context.Context, dlqID string) (*Entry, error)

	// MarkReplayed records that an entry was re-enqueued.
	MarkReplayed(ctx context.Context, dlqID string, at time.Time) error

	// PurgeDLQ deletes entries that failed before the threshold and returns
	// how many were removed.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of entries.
	CountDLQ(ctx context.Context) (int64, error)
}
