// Package event implements the event lifecycle: ingestion with idempotency,
// retrieval, acknowledgment and deletion against a shared durable store.
package event

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an event.
type Status string

const (
	// StatusPending indicates the event is awaiting acknowledgment.
	StatusPending Status = "pending"

	// StatusAcknowledged indicates a consumer has processed the event.
	// The transition is one-way; an acknowledged event never becomes
	// pending again.
	StatusAcknowledged Status = "acknowledged"
)

// Priority classifies an event for consumers. It has no influence on
// delivery ordering.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Validation limits enforced on ingestion.
const (
	// MaxPayloadBytes is the maximum serialized payload size (400 KiB).
	MaxPayloadBytes = 400 * 1024

	// MaxFieldLen bounds the source and event type strings.
	MaxFieldLen = 100

	// DefaultTTL is how long an event survives if never deleted.
	DefaultTTL = 7 * 24 * time.Hour
)

// Metadata is the optional envelope attached to an event. It is a tagged
// struct rather than an open map so that the fields the system acts on are
// explicit; free-form data belongs in the payload.
type Metadata struct {
	// CorrelationID links the event to an external trace or transaction.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Priority classifies the event for consumers. Defaults to normal.
	Priority Priority `json:"priority,omitempty"`

	// IdempotencyKey is the caller-supplied deduplication token. Carried in
	// metadata on the wire; acted on by the lifecycle service.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Event is a durably stored, externally-produced event.
//
// The pair (ID, CreatedAt) uniquely identifies an event in the store;
// CreatedAt doubles as the sort key for inbox ordering.
type Event struct {
	// ID is the event's UUID.
	ID string `json:"event_id"`

	// CreatedAt is when the event was ingested. Also the store sort key.
	CreatedAt time.Time `json:"created_at"`

	// Source identifies the producing system.
	Source string `json:"source"`

	// Type is the dot-separated event type name (e.g. "user.created").
	Type string `json:"event_type"`

	// Payload is the free-form JSON body supplied by the producer.
	Payload json.RawMessage `json:"payload"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// AcknowledgedAt is set exactly once, by the winning acknowledge call.
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`

	// Metadata is the optional envelope.
	Metadata *Metadata `json:"metadata,omitempty"`

	// ExpiresAt is when the store may reap the event if never deleted.
	ExpiresAt time.Time `json:"expires_at"`
}

// EffectivePriority returns the event's priority, defaulting to normal when
// the metadata envelope is absent or silent.
func (e *Event) EffectivePriority() Priority {
	if e.Metadata == nil || e.Metadata.Priority == "" {
		return PriorityNormal
	}
	return e.Metadata.Priority
}

// MatchesFilter reports whether the event passes the attribute filters of
// opts. Pagination fields are ignored.
func (e *Event) MatchesFilter(opts ListOpts) bool {
	if opts.Source != "" && e.Source != opts.Source {
		return false
	}
	if opts.Type != "" && e.Type != opts.Type {
		return false
	}
	if opts.Priority != "" && e.EffectivePriority() != opts.Priority {
		return false
	}
	if opts.CreatedAfter != nil && !e.CreatedAt.After(*opts.CreatedAfter) {
		return false
	}
	if opts.CreatedBefore != nil && !e.CreatedAt.Before(*opts.CreatedBefore) {
		return false
	}
	return true
}

// CreateInput is the caller-facing input for event creation.
type CreateInput struct {
	Source   string
	Type     string
	Payload  json.RawMessage
	Metadata *Metadata
}

// IdempotencyKey returns the idempotency key from the metadata envelope,
// or "" when none was supplied.
func (in CreateInput) IdempotencyKey() string {
	if in.Metadata == nil {
		return ""
	}
	return in.Metadata.IdempotencyKey
}
