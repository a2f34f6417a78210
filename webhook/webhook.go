// Package webhook manages webhook subscriptions: registration, ownership,
// event-type matching and secret handling.
package webhook

import (
	"time"
)

// Wildcard subscribes a webhook to every event type.
const Wildcard = "*"

// MinSecretLen is the minimum length of a signing secret.
const MinSecretLen = 16

// Webhook is a registered delivery target owned by a single principal.
type Webhook struct {
	// ID is the webhook's UUID.
	ID string `json:"webhook_id"`

	// URL is the subscriber endpoint notified on matching events.
	URL string `json:"url"`

	// EventTypes are the subscribed event types. May contain the wildcard
	// "*" to receive every type.
	EventTypes []string `json:"events"`

	// Secret signs every delivery. Never serialized after creation.
	Secret string `json:"-"`

	// Owner is the principal that created the webhook. Events are only
	// fanned out to webhooks owned by the ingesting principal.
	Owner string `json:"-"`

	// IsActive gates delivery. Deactivation takes effect immediately:
	// the delivery worker re-reads the webhook before every attempt.
	IsActive bool `json:"is_active"`

	// CreatedAt is when the webhook was registered.
	CreatedAt time.Time `json:"created_at"`
}

// Subscribes reports whether the webhook should receive an event of the
// given type, honoring the wildcard subscription.
func (w *Webhook) Subscribes(eventType string) bool {
	for _, t := range w.EventTypes {
		if t == Wildcard || t == eventType {
			return true
		}
	}
	return false
}

// Input is the creation/update payload for webhooks.
type Input struct {
	// URL is the delivery URL.
	URL string `json:"url"`

	// EventTypes are the event types to subscribe to; ["*"] for all.
	EventTypes []string `json:"events"`

	// Secret is the HMAC signing secret. Auto-generated if empty on create.
	Secret string `json:"secret,omitempty"`

	// IsActive toggles delivery on update. Ignored on create (always true).
	IsActive *bool `json:"is_active,omitempty"`
}

// ListOpts configures filtering for webhook listing.
type ListOpts struct {
	Limit    int
	IsActive *bool
}
