package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/triggerbox/triggerbox"

// Tracer provides OpenTelemetry tracing for Triggerbox.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Triggerbox tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartIngestSpan starts a span covering event validation and creation.
func (t *Tracer) StartIngestSpan(ctx context.Context, source, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "triggerbox.ingest",
		trace.WithAttributes(
			attribute.String("triggerbox.source", source),
			attribute.String("triggerbox.event_type", eventType),
		),
	)
}

// StartDeliverySpan starts a span for a single webhook delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, messageID, webhookID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "triggerbox.delivery",
		trace.WithAttributes(
			attribute.String("triggerbox.message_id", messageID),
			attribute.String("triggerbox.webhook_id", webhookID),
			attribute.Int("triggerbox.attempt", attempt),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode int, err string) {
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	if err != "" {
		span.SetAttributes(attribute.String("triggerbox.error", err))
	}
	span.End()
}
