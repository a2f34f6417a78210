// Package dlq manages the dead letter queue: the terminal destination for
// delivery messages that exhausted their retries. Entries exist for manual
// inspection and optional replay; nothing consumes them automatically.
package dlq

import (
	"encoding/json"
	"time"
)

// Entry is a permanently failed webhook delivery.
type Entry struct {
	// ID is the entry's UUID.
	ID string `json:"dlq_id"`

	// WebhookID is the delivery target that kept failing.
	WebhookID string `json:"webhook_id"`

	// URL is the webhook URL at the time of failure.
	URL string `json:"url"`

	// Event is the event snapshot that failed to deliver.
	Event json.RawMessage `json:"event_data"`

	// Error is the error message from the final attempt.
	Error string `json:"error"`

	// LastStatusCode is the HTTP status from the final attempt, if any.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// AttemptCount is the total number of delivery attempts made.
	AttemptCount int `json:"attempt_count"`

	// FailedAt is when the delivery permanently failed.
	FailedAt time.Time `json:"failed_at"`

	// ReplayedAt is set when the entry has been re-enqueued for delivery.
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`
}

// ListOpts configures filtering for DLQ listing.
type ListOpts struct {
	Limit     int
	WebhookID string
	From      *time.Time
	To        *time.Time
}
