package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/triggerbox/triggerbox/id"
	"github.com/triggerbox/triggerbox/queue"
)

// Service manages the dead letter queue.
type Service struct {
	store  Store
	queue  queue.Queue
	logger *slog.Logger
}

// NewService creates a DLQ service. The queue is used for replay and may be
// nil when replay is not needed.
func NewService(store Store, q queue.Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		queue:  q,
		logger: logger,
	}
}

// PushFailed dead-letters a delivery message after its final attempt.
// Implements dispatch.DeadLetterer.
func (svc *Service) PushFailed(ctx context.Context, msg *queue.Message, url, lastError string, lastStatusCode int) error {
	entry := &Entry{
		ID:             id.NewDLQID(),
		WebhookID:      msg.WebhookID,
		URL:            url,
		Event:          msg.Event,
		Error:          lastError,
		LastStatusCode: lastStatusCode,
		AttemptCount:   msg.Attempt,
		FailedAt:       time.Now().UTC(),
	}

	if err := svc.store.PushDLQ(ctx, entry); err != nil {
		return fmt.Errorf("dlq: push: %w", err)
	}

	svc.logger.WarnContext(ctx, "delivery dead-lettered",
		"dlq_id", entry.ID, "webhook_id", entry.WebhookID,
		"attempts", entry.AttemptCount, "error", lastError)
	return nil
}

// List returns entries matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListDLQ(ctx, opts)
}

// Get returns an entry by ID.
func (svc *Service) Get(ctx context.Context, dlqID string) (*Entry, error) {
	return svc.store.GetDLQ(ctx, dlqID)
}

// Replay re-enqueues an entry's delivery message with a fresh attempt budget
// and marks the entry replayed. The entry itself is kept for the audit trail.
func (svc *Service) Replay(ctx context.Context, dlqID string) error {
	entry, err := svc.store.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}

	msg := &queue.Message{
		ID:         id.NewMessageID(),
		WebhookID:  entry.WebhookID,
		Event:      entry.Event,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := svc.queue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("dlq: replay enqueue: %w", err)
	}

	if err := svc.store.MarkReplayed(ctx, dlqID, time.Now().UTC()); err != nil {
		return fmt.Errorf("dlq: mark replayed: %w", err)
	}

	svc.logger.InfoContext(ctx, "dlq entry replayed",
		"dlq_id", dlqID, "webhook_id", entry.WebhookID)
	return nil
}

// Purge removes entries that failed before the threshold.
func (svc *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return svc.store.PurgeDLQ(ctx, before)
}

// Count returns the total number of entries.
func (svc *Service) Count(ctx context.Context) (int64, error) {
	return svc.store.CountDLQ(ctx)
}
