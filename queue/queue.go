// Package queue defines the transient delivery-message queue feeding the
// webhook dispatch workers.
//
// The queue owns retry timing: a received message is invisible to other
// consumers until it is deleted (terminal outcome) or released back with a
// delay (failed attempt). Attempt counting rides on the queue's redelivery
// counter, so retry state survives any single worker's lifetime.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrMessageNotFound is returned when deleting or releasing a message that is
// no longer in flight.
var ErrMessageNotFound = errors.New("queue: message not found")

// Message is one pending webhook delivery. It exists only in the queue and is
// discarded on a terminal outcome (success, client rejection, or exhausted
// retries).
type Message struct {
	// ID is the queue's handle for this message.
	ID string `json:"message_id"`

	// WebhookID is the delivery target. The worker re-reads the webhook at
	// delivery time, so queued messages never pin stale webhook state.
	WebhookID string `json:"webhook_id"`

	// Event is the serialized event snapshot to deliver.
	Event json.RawMessage `json:"event_data"`

	// EnqueuedAt is when the message first entered the queue.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Attempt is the number of times this message has been received,
	// starting at 1 on first receipt. Maintained by the queue.
	Attempt int `json:"delivery_attempt"`
}

// Queue is the delivery queue contract.
//
// Implementations must tolerate arbitrarily many concurrent consumers: a
// message received by one consumer must not be received by another until its
// visibility lapses or it is released.
type Queue interface {
	// Enqueue makes a message visible for delivery.
	Enqueue(ctx context.Context, msg *Message) error

	// Receive claims up to max visible messages, incrementing each message's
	// Attempt counter. Claimed messages stay invisible until Delete or
	// Release. Returns an empty slice when nothing is due.
	Receive(ctx context.Context, max int) ([]*Message, error)

	// Delete removes a claimed message permanently (terminal outcome).
	Delete(ctx context.Context, msgID string) error

	// Release returns a claimed message to the queue, making it visible
	// again after delay. The attempt counter is preserved.
	Release(ctx context.Context, msgID string, delay time.Duration) error
}
