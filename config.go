package triggerbox

import "time"

// Config holds the configuration for an Engine instance.
type Config struct {
	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PollInterval is how often the delivery engine checks for due messages.
	PollInterval time.Duration

	// BatchSize is the maximum number of messages received per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// MaxAttempts is the total delivery attempt budget per message.
	MaxAttempts int

	// RateLimitWindow is the fixed window size for request counting.
	RateLimitWindow time.Duration

	// DefaultRateLimit is the per-window request budget for principals
	// without an explicit limit.
	DefaultRateLimit int

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries
	// on shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:      10,
		PollInterval:     1 * time.Second,
		BatchSize:        50,
		RequestTimeout:   10 * time.Second,
		MaxAttempts:      3,
		RateLimitWindow:  time.Minute,
		DefaultRateLimit: 1000,
		ShutdownTimeout:  30 * time.Second,
	}
}
