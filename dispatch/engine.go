package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/triggerbox/triggerbox/observability"
	"github.com/triggerbox/triggerbox/queue"
	"github.com/triggerbox/triggerbox/webhook"
)

// WebhookGetter is the slice of the webhook store the engine needs: live
// webhook state at delivery time, so deactivation takes effect immediately.
// Implementations return (nil, nil) when the webhook no longer exists.
type WebhookGetter interface {
	GetWebhook(ctx context.Context, webhookID string) (*webhook.Webhook, error)
}

// DeadLetterer receives messages whose retry budget is exhausted.
type DeadLetterer interface {
	PushFailed(ctx context.Context, msg *queue.Message, url, lastError string, lastStatusCode int) error
}

// EngineConfig holds delivery engine configuration.
type EngineConfig struct {
	Concurrency    int
	PollInterval   time.Duration
	BatchSize      int
	RequestTimeout time.Duration
	MaxAttempts    int
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
}

// Engine is the delivery worker pool that drains the queue and performs
// webhook deliveries.
type Engine struct {
	queue    queue.Queue
	webhooks WebhookGetter
	sender   *Sender
	retrier  *Retrier
	dlq      DeadLetterer
	config   EngineConfig
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a delivery engine.
func NewEngine(q queue.Queue, webhooks WebhookGetter, dlq DeadLetterer, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		queue:    q,
		webhooks: webhooks,
		sender:   NewSender(cfg.RequestTimeout),
		retrier:  NewRetrier(cfg.MaxAttempts),
		dlq:      dlq,
		config:   cfg,
		logger:   logger,
	}
}

// Start begins the delivery workers and poll loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight deliveries to complete.
func (e *Engine) Stop(_ context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// pollLoop periodically receives due messages and hands them to workers.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.queue.Receive(ctx, e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "queue receive failed", "error", err)
				continue
			}

			for _, msg := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(m *queue.Message) {
					defer e.wg.Done()
					defer func() { <-sem }()
					e.process(ctx, m)
				}(msg)
			}
		}
	}
}

// process handles a single delivery message: re-read the webhook, send,
// decide, settle with the queue.
func (e *Engine) process(ctx context.Context, msg *queue.Message) {
	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, msg.ID, msg.WebhookID, msg.Attempt)
	}

	wh, err := e.webhooks.GetWebhook(ctx, msg.WebhookID)
	if err != nil {
		// Transient store errors leave the message claimed so the visibility
		// timeout redelivers it.
		e.logger.ErrorContext(ctx, "get webhook failed",
			"message_id", msg.ID, "webhook_id", msg.WebhookID, "error", err)
		endSpan(e.config.Tracer, span, 0, err.Error())
		return
	}
	if wh == nil {
		// A deleted webhook is a terminal outcome.
		e.logger.WarnContext(ctx, "webhook gone, dropping delivery",
			"message_id", msg.ID, "webhook_id", msg.WebhookID)
		e.settle(ctx, msg, "discarded")
		endSpan(e.config.Tracer, span, 0, "webhook deleted")
		return
	}

	if !wh.IsActive {
		// Deactivation wins over queued work; skip silently.
		e.logger.DebugContext(ctx, "webhook inactive, skipping delivery",
			"message_id", msg.ID, "webhook_id", wh.ID)
		e.settle(ctx, msg, "skipped")
		endSpan(e.config.Tracer, span, 0, "")
		return
	}

	result := e.sender.Send(ctx, wh, msg.Event)
	decision := e.retrier.Decide(result, msg.Attempt)
	latencySeconds := float64(result.LatencyMs) / 1000.0

	switch decision {
	case Delivered:
		e.settle(ctx, msg, "delivered")
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("delivered", latencySeconds)
		}
		e.logger.DebugContext(ctx, "delivered",
			"message_id", msg.ID, "webhook_id", wh.ID,
			"status", result.StatusCode, "attempt", msg.Attempt)

	case Reject:
		e.settle(ctx, msg, "rejected")
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("rejected", latencySeconds)
		}
		e.logger.WarnContext(ctx, "delivery rejected by subscriber",
			"message_id", msg.ID, "webhook_id", wh.ID, "status", result.StatusCode)

	case Retry:
		delay := e.retrier.Backoff(msg.Attempt)
		if err := e.queue.Release(ctx, msg.ID, delay); err != nil {
			e.logger.ErrorContext(ctx, "release for retry failed",
				"message_id", msg.ID, "error", err)
		}
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("retried", latencySeconds)
		}
		e.logger.DebugContext(ctx, "retry scheduled",
			"message_id", msg.ID, "webhook_id", wh.ID,
			"attempt", msg.Attempt, "delay", delay)

	case DeadLetter:
		if e.dlq != nil {
			if dlqErr := e.dlq.PushFailed(ctx, msg, wh.URL, result.Error, result.StatusCode); dlqErr != nil {
				e.logger.ErrorContext(ctx, "push to DLQ failed",
					"message_id", msg.ID, "error", dlqErr)
			} else if e.config.Metrics != nil {
				e.config.Metrics.DeadLettersTotal.Inc()
			}
		}
		e.settle(ctx, msg, "failed")
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("failed", latencySeconds)
		}
		e.logger.WarnContext(ctx, "delivery failed permanently",
			"message_id", msg.ID, "webhook_id", wh.ID,
			"status", result.StatusCode, "error", result.Error)
	}

	endSpan(e.config.Tracer, span, result.StatusCode, result.Error)
}

// settle removes a message from the queue on a terminal outcome.
func (e *Engine) settle(ctx context.Context, msg *queue.Message, outcome string) {
	if err := e.queue.Delete(ctx, msg.ID); err != nil && !errors.Is(err, queue.ErrMessageNotFound) {
		e.logger.ErrorContext(ctx, "delete message failed",
			"message_id", msg.ID, "outcome", outcome, "error", err)
	}
}

func endSpan(tracer *observability.Tracer, span trace.Span, statusCode int, errMsg string) {
	if tracer != nil && span != nil {
		tracer.EndDeliverySpan(span, statusCode, errMsg)
	}
}
