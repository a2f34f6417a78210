package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/triggerbox/triggerbox/id"
	"github.com/triggerbox/triggerbox/idempotency"
)

// Service is the event lifecycle manager: it creates, retrieves, acknowledges
// and deletes events, enforcing idempotent ingestion and conditional state
// transitions. It is stateless; all coordination happens in the store.
type Service struct {
	store  Store
	ledger idempotency.Store
	logger *slog.Logger
}

// NewService creates an event lifecycle service.
func NewService(store Store, ledger idempotency.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		ledger: ledger,
		logger: logger,
	}
}

// Create ingests an event. The returned bool reports whether this call
// created the event; an idempotent replay returns the original event with
// false, letting callers skip side effects that already ran.
//
// When an idempotency key is supplied, the key is claimed in the ledger with
// a single create-if-absent write BEFORE the event is created. Exactly one
// caller wins the claim and creates the event; every other caller, whether
// concurrent or hours later, reads the winner's event ID out of the ledger
// and returns that event verbatim. Repeated calls with the same key within
// the ledger's window always yield the same event and exactly one event row.
func (svc *Service) Create(ctx context.Context, in CreateInput) (*Event, bool, error) {
	if err := validateCreate(in); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	evt := &Event{
		ID:        id.NewEventID(),
		CreatedAt: now,
		Source:    in.Source,
		Type:      in.Type,
		Payload:   in.Payload,
		Status:    StatusPending,
		Metadata:  in.Metadata,
		ExpiresAt: now.Add(DefaultTTL),
	}

	key := in.IdempotencyKey()
	if key == "" {
		if err := svc.store.CreateEvent(ctx, evt); err != nil {
			return nil, false, fmt.Errorf("event: create: %w", err)
		}
		return evt, true, nil
	}

	rec, claimed, err := svc.ledger.PutRecord(ctx, idempotency.NewRecord(key, evt.ID, now))
	if err != nil {
		return nil, false, fmt.Errorf("event: claim idempotency key: %w", err)
	}

	if !claimed {
		// Another call owns this key. Its event may still be in flight, so
		// the read is retried briefly before giving up.
		existing, getErr := svc.getEventually(ctx, rec.EventID)
		if getErr != nil {
			return nil, false, fmt.Errorf("event: fetch event %s for idempotency key: %w", rec.EventID, getErr)
		}
		svc.logger.DebugContext(ctx, "idempotent replay",
			"event_id", existing.ID, "idempotency_key", key)
		return existing, false, nil
	}

	if err := svc.store.CreateEvent(ctx, evt); err != nil {
		// The claim stays in the ledger until its TTL lapses; callers
		// retrying the same key before then hit the retry loop above and
		// eventually surface not-found. Accepted: the write failed, so the
		// request failed.
		return nil, false, fmt.Errorf("event: create: %w", err)
	}

	return evt, true, nil
}

// getEventually reads an event, retrying briefly to ride out the gap between
// a concurrent caller's ledger claim and its event write.
func (svc *Service) getEventually(ctx context.Context, eventID string) (*Event, error) {
	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}

		evt, err := svc.store.GetEvent(ctx, eventID)
		if err == nil {
			return evt, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Get returns an event by ID.
func (svc *Service) Get(ctx context.Context, eventID string) (*Event, error) {
	if _, err := id.Parse(eventID); err != nil {
		return nil, &ValidationError{Field: "event_id", Message: "must be a UUID"}
	}
	return svc.store.GetEvent(ctx, eventID)
}

// Acknowledge transitions an event from pending to acknowledged. Among N
// concurrent calls for the same event exactly one succeeds; the rest receive
// ErrEventConflict, never a silently accepted second acknowledgment.
func (svc *Service) Acknowledge(ctx context.Context, eventID string) (*Event, error) {
	if _, err := id.Parse(eventID); err != nil {
		return nil, &ValidationError{Field: "event_id", Message: "must be a UUID"}
	}

	evt, err := svc.store.AcknowledgeEvent(ctx, eventID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	svc.logger.DebugContext(ctx, "event acknowledged", "event_id", evt.ID)
	return evt, nil
}

// Delete removes an event. Deleting a missing or already-deleted event
// succeeds; the operation is idempotent.
func (svc *Service) Delete(ctx context.Context, eventID string) error {
	if _, err := id.Parse(eventID); err != nil {
		return &ValidationError{Field: "event_id", Message: "must be a UUID"}
	}
	return svc.store.DeleteEvent(ctx, eventID)
}

// ListPending returns one page of pending events in ascending creation order.
func (svc *Service) ListPending(ctx context.Context, opts ListOpts) (*Page, error) {
	return svc.store.ListPending(ctx, opts)
}

func validateCreate(in CreateInput) error {
	if in.Source == "" {
		return &ValidationError{Field: "source", Message: "required"}
	}
	if len(in.Source) > MaxFieldLen {
		return &ValidationError{Field: "source", Message: fmt.Sprintf("exceeds %d characters", MaxFieldLen)}
	}
	if in.Type == "" {
		return &ValidationError{Field: "event_type", Message: "required"}
	}
	if len(in.Type) > MaxFieldLen {
		return &ValidationError{Field: "event_type", Message: fmt.Sprintf("exceeds %d characters", MaxFieldLen)}
	}

	if len(in.Payload) > MaxPayloadBytes {
		return &PayloadTooLargeError{Size: len(in.Payload), Max: MaxPayloadBytes}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(in.Payload, &obj); err != nil {
		return &ValidationError{Field: "payload", Message: "must be a JSON object"}
	}
	if len(obj) == 0 {
		return &ValidationError{Field: "payload", Message: "must not be empty"}
	}

	if in.Metadata != nil {
		switch in.Metadata.Priority {
		case "", PriorityLow, PriorityNormal, PriorityHigh:
		default:
			return &ValidationError{Field: "metadata.priority", Message: "must be low, normal or high"}
		}
	}

	return nil
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "event validation: " + e.Field + ": " + e.Message
}

// PayloadTooLargeError indicates the serialized payload exceeds the limit.
type PayloadTooLargeError struct {
	Size int
	Max  int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("event payload size %d exceeds maximum %d", e.Size, e.Max)
}
