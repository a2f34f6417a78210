package triggerbox

import (
	"log/slog"
	"time"

	"github.com/triggerbox/triggerbox/dispatch"
	"github.com/triggerbox/triggerbox/dlq"
	"github.com/triggerbox/triggerbox/event"
	"github.com/triggerbox/triggerbox/observability"
	"github.com/triggerbox/triggerbox/queue"
	"github.com/triggerbox/triggerbox/ratelimit"
	"github.com/triggerbox/triggerbox/store"
	"github.com/triggerbox/triggerbox/webhook"
)

// Engine is the root event inbox and webhook fan-out engine.
type Engine struct {
	config  Config
	store   store.Store
	queue   queue.Queue
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	eventSvc   *event.Service
	webhookSvc *webhook.Service
	dlqSvc     *dlq.Service
	limiter    *ratelimit.Limiter
	dispatcher *dispatch.Dispatcher
	worker     *dispatch.Engine
}

// Option configures an Engine instance.
type Option func(*Engine) error

// New creates a new Engine with the given options.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.store == nil {
		return nil, ErrNoStore
	}
	if e.queue == nil {
		return nil, ErrNoQueue
	}
	e.wireServices()
	return e, nil
}

// WithStore sets the persistence backend for the Engine instance.
func WithStore(s store.Store) Option {
	return func(e *Engine) error {
		e.store = s
		return nil
	}
}

// WithQueue sets the delivery queue backend for the Engine instance.
func WithQueue(q queue.Queue) Option {
	return func(e *Engine) error {
		e.queue = q
		return nil
	}
}

// WithLogger sets the structured logger for the Engine instance.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(e *Engine) error {
		e.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the delivery engine checks for due messages.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of messages received per poll cycle.
func WithBatchSize(n int) Option {
	return func(e *Engine) error {
		e.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.RequestTimeout = d
		return nil
	}
}

// WithMaxAttempts sets the total delivery attempt budget per message.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) error {
		e.config.MaxAttempts = n
		return nil
	}
}

// WithRateLimitWindow sets the fixed window size for request counting.
func WithRateLimitWindow(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.RateLimitWindow = d
		return nil
	}
}

// WithDefaultRateLimit sets the per-window budget for principals without an
// explicit limit.
func WithDefaultRateLimit(n int) Option {
	return func(e *Engine) error {
		e.config.DefaultRateLimit = n
		return nil
	}
}

// WithMetrics attaches Prometheus instruments to the Engine.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithTracer attaches an OpenTelemetry tracer to the Engine.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Engine) error {
		e.tracer = t
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight deliveries
// on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.ShutdownTimeout = d
		return nil
	}
}
