// Package dispatch implements the webhook delivery pipeline: fan-out of
// freshly created events onto the delivery queue, the signed HTTP sender,
// the retry decision table, and the worker engine that drains the queue.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/triggerbox/triggerbox/event"
	"github.com/triggerbox/triggerbox/id"
	"github.com/triggerbox/triggerbox/queue"
	"github.com/triggerbox/triggerbox/webhook"
)

// Dispatcher fans out created events to the delivery queue.
type Dispatcher struct {
	webhooks *webhook.Service
	queue    queue.Queue
	sender   *Sender
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. The sender is used only for
// synchronous test deliveries.
func NewDispatcher(webhooks *webhook.Service, q queue.Queue, sender *Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		webhooks: webhooks,
		queue:    q,
		sender:   sender,
		logger:   logger,
	}
}

// Dispatch selects the ingesting principal's active webhooks subscribed to
// the event's type and enqueues one delivery message per match. It is
// fire-and-forget with respect to the ingestion call: failures are logged and
// counted, never propagated. Returns the number of messages enqueued.
func (d *Dispatcher) Dispatch(ctx context.Context, owner string, evt *event.Event) int {
	hooks, err := d.webhooks.FindMatching(ctx, owner, evt.Type)
	if err != nil {
		d.logger.ErrorContext(ctx, "webhook selection failed",
			"event_id", evt.ID, "event_type", evt.Type, "error", err)
		return 0
	}
	if len(hooks) == 0 {
		return 0
	}

	snapshot, err := json.Marshal(evt)
	if err != nil {
		d.logger.ErrorContext(ctx, "marshal event snapshot failed",
			"event_id", evt.ID, "error", err)
		return 0
	}

	enqueued := 0
	now := time.Now().UTC()
	for _, wh := range hooks {
		msg := &queue.Message{
			ID:         id.NewMessageID(),
			WebhookID:  wh.ID,
			Event:      snapshot,
			EnqueuedAt: now,
		}
		if err := d.queue.Enqueue(ctx, msg); err != nil {
			d.logger.ErrorContext(ctx, "enqueue delivery failed",
				"event_id", evt.ID, "webhook_id", wh.ID, "error", err)
			continue
		}
		enqueued++
	}

	d.logger.DebugContext(ctx, "event dispatched",
		"event_id", evt.ID, "event_type", evt.Type, "deliveries", enqueued)
	return enqueued
}

// TestDeliver performs one synchronous signed delivery of a synthetic event
// to the webhook and returns the observed result without retrying. Used by
// the webhook test endpoint.
func (d *Dispatcher) TestDeliver(ctx context.Context, wh *webhook.Webhook) Result {
	now := time.Now().UTC()
	sample := &event.Event{
		ID:        id.NewEventID(),
		CreatedAt: now,
		Source:    "triggerbox",
		Type:      "webhook.test",
		Payload:   json.RawMessage(`{"test":true,"message":"test delivery"}`),
		Status:    event.StatusPending,
		ExpiresAt: now.Add(event.DefaultTTL),
	}

	snapshot, err := json.Marshal(sample)
	if err != nil {
		return Result{Error: err.Error()}
	}
	return d.sender.Send(ctx, wh, snapshot)
}
