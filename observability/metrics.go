package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for Triggerbox.
type Metrics struct {
	EventsCreatedTotal      prometheus.Counter
	EventsAcknowledgedTotal prometheus.Counter
	DeliveriesTotal         *prometheus.CounterVec
	DeliveryLatency         prometheus.Histogram
	DeadLettersTotal        prometheus.Counter
	RateLimitRejectedTotal  prometheus.Counter
}

// NewMetrics creates and registers Triggerbox instruments on the given
// registerer. Pass prometheus.DefaultRegisterer for standalone usage.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "triggerbox_events_created_total",
			Help: "Total events accepted into the inbox.",
		}),
		EventsAcknowledgedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "triggerbox_events_acknowledged_total",
			Help: "Total events acknowledged by consumers.",
		}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triggerbox_deliveries_total",
			Help: "Total webhook delivery attempts by outcome.",
		}, []string{"status"}),
		DeliveryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "triggerbox_delivery_latency_seconds",
			Help:    "Webhook delivery request latency.",
			Buckets: prometheus.DefBuckets,
		}),
		DeadLettersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "triggerbox_dead_letters_total",
			Help: "Total deliveries moved to the dead letter queue.",
		}),
		RateLimitRejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "triggerbox_rate_limit_rejected_total",
			Help: "Requests rejected by the fixed-window rate limiter.",
		}),
	}
}

// RecordDelivery records a delivery attempt with the given outcome and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}
