package triggerbox

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"github.com/triggerbox/triggerbox/dispatch"
	"github.com/triggerbox/triggerbox/dlq"
	"github.com/triggerbox/triggerbox/event"
	"github.com/triggerbox/triggerbox/observability"
	"github.com/triggerbox/triggerbox/ratelimit"
	"github.com/triggerbox/triggerbox/store"
	"github.com/triggerbox/triggerbox/webhook"
)

// wireServices initializes the internal services after options have been
// applied.
func (e *Engine) wireServices() {
	e.eventSvc = event.NewService(e.store, e.store, e.logger)
	e.webhookSvc = webhook.NewService(e.store, e.logger)
	e.dlqSvc = dlq.NewService(e.store, e.queue, e.logger)
	e.limiter = ratelimit.New(e.store, e.config.RateLimitWindow, e.logger)

	e.dispatcher = dispatch.NewDispatcher(
		e.webhookSvc,
		e.queue,
		dispatch.NewSender(e.config.RequestTimeout),
		e.logger,
	)

	e.worker = dispatch.NewEngine(e.queue, liveWebhooks{svc: e.webhookSvc}, e.dlqSvc, dispatch.EngineConfig{
		Concurrency:    e.config.Concurrency,
		PollInterval:   e.config.PollInterval,
		BatchSize:      e.config.BatchSize,
		RequestTimeout: e.config.RequestTimeout,
		MaxAttempts:    e.config.MaxAttempts,
		Metrics:        e.metrics,
		Tracer:         e.tracer,
	}, e.logger)
}

// liveWebhooks adapts the webhook service to the delivery engine's view:
// a deleted webhook reads as (nil, nil) rather than an error, so the engine
// can distinguish "gone" from a transient store failure.
type liveWebhooks struct {
	svc *webhook.Service
}

func (l liveWebhooks) GetWebhook(ctx context.Context, webhookID string) (*webhook.Webhook, error) {
	wh, err := l.svc.Get(ctx, webhookID)
	if errors.Is(err, ErrWebhookNotFound) {
		return nil, nil
	}
	return wh, err
}

// Start begins the delivery engine.
func (e *Engine) Start(ctx context.Context) {
	e.worker.Start(ctx)
}

// Stop gracefully shuts down the delivery engine.
func (e *Engine) Stop(ctx context.Context) {
	e.worker.Stop(ctx)
}

// Ingest validates and durably stores an event, then fans out delivery
// messages to the owner's matching webhooks.
//
// The critical path:
//  1. Validate and persist the event; idempotency key dedup happens here,
//     so replays return the original event without a second fan-out.
//  2. Enqueue one delivery message per matching active webhook.
//
// Fan-out failures never surface to the producer: once the event is durable
// the ingestion has succeeded, and undeliverable messages are the delivery
// engine's problem.
func (e *Engine) Ingest(ctx context.Context, owner string, in event.CreateInput) (*event.Event, error) {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.StartIngestSpan(ctx, in.Source, in.Type)
		defer span.End()
	}

	evt, created, err := e.eventSvc.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	if !created {
		// Idempotent replay: the first request already fanned out.
		return evt, nil
	}

	if e.metrics != nil {
		e.metrics.EventsCreatedTotal.Inc()
	}

	e.dispatcher.Dispatch(ctx, owner, evt)
	return evt, nil
}

// Acknowledge transitions an event from pending to acknowledged. Exactly one
// of N concurrent calls succeeds.
func (e *Engine) Acknowledge(ctx context.Context, eventID string) (*event.Event, error) {
	evt, err := e.eventSvc.Acknowledge(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.EventsAcknowledgedTotal.Inc()
	}
	return evt, nil
}

// TestWebhook performs one synchronous delivery of a synthetic test event to
// the webhook, bypassing the queue.
func (e *Engine) TestWebhook(ctx context.Context, webhookID string) (dispatch.Result, error) {
	wh, err := e.webhookSvc.Get(ctx, webhookID)
	if err != nil {
		return dispatch.Result{}, err
	}
	return e.dispatcher.TestDeliver(ctx, wh), nil
}

// Ping checks store connectivity.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Events returns the event lifecycle service.
func (e *Engine) Events() *event.Service {
	return e.eventSvc
}

// Webhooks returns the webhook management service.
func (e *Engine) Webhooks() *webhook.Service {
	return e.webhookSvc
}

// DLQ returns the dead letter queue service.
func (e *Engine) DLQ() *dlq.Service {
	return e.dlqSvc
}

// Limiter returns the rate limiter.
func (e *Engine) Limiter() *ratelimit.Limiter {
	return e.limiter
}

// Metrics returns the attached Prometheus instruments, or nil when none were
// configured.
func (e *Engine) Metrics() *observability.Metrics {
	return e.metrics
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store {
	return e.store
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}
