// Package ratelimit implements per-principal fixed-window request counting
// backed by the durable store.
//
// Windows are aligned, non-overlapping buckets: window_start is the current
// time truncated to the window size, and one counter row exists per principal
// per window. The counter is advanced with an atomic add-if-below-limit, which
// is the only enforcement point; the preceding read is advisory. Backend
// errors on the read path fail open (availability over strict enforcement);
// a failed conditional increment is authoritative and rejects the request.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Defaults applied when a principal has no configured limit.
const (
	DefaultLimit  = 1000
	DefaultWindow = time.Minute
)

// WindowStore is the persistence contract for rate-limit windows.
type WindowStore interface {
	// GetWindowCount returns the request count for a principal's window,
	// or 0 when no row exists yet.
	GetWindowCount(ctx context.Context, principal string, windowStart int64) (int, error)

	// IncrementWindow atomically adds one to the window counter if and only
	// if the current count is below limit, creating the row (with ttl) when
	// absent. A lost condition returns ErrWindowFull; anything else is a
	// backend failure.
	IncrementWindow(ctx context.Context, principal string, windowStart int64, limit int, ttl time.Duration) error
}

// Result describes the outcome of a rate-limit check.
type Result struct {
	// Allowed is whether the request may proceed.
	Allowed bool

	// Limit is the window's request budget.
	Limit int

	// Remaining is the budget left after this request.
	Remaining int

	// ResetAt is the unix timestamp at which the window rolls over.
	ResetAt int64
}

// RetryAfter returns the seconds until the window resets, floored at 1.
func (r Result) RetryAfter(now time.Time) int64 {
	d := r.ResetAt - now.Unix()
	if d < 1 {
		return 1
	}
	return d
}

// Limiter enforces fixed-window rate limits through a WindowStore.
type Limiter struct {
	store  WindowStore
	window time.Duration
	logger *slog.Logger
}

// New creates a limiter using the given window size. A zero window defaults
// to one minute.
func New(store WindowStore, window time.Duration, logger *slog.Logger) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:  store,
		window: window,
		logger: logger,
	}
}

// Check reads the current window's counter without consuming budget.
// An absent row counts as zero. Backend errors fail open: the request is
// allowed and the full configured limit is reported as remaining.
func (l *Limiter) Check(ctx context.Context, principal string, limit int) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}

	now := time.Now()
	windowStart := l.windowStart(now)
	resetAt := windowStart + int64(l.window/time.Second)

	count, err := l.store.GetWindowCount(ctx, principal, windowStart)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit check failed, allowing request",
			"principal", principal, "error", err)
		return Result{Allowed: true, Limit: limit, Remaining: limit, ResetAt: resetAt}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count < limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Allow performs the full check-then-increment sequence for one request.
//
// The pair is deliberately not atomic: Check may admit a request that the
// conditional increment then rejects because the limit was reached
// concurrently. The increment's own conditional failure is treated as
// authoritative and the request is rejected. Backend errors on the increment
// itself fail open, matching the read path.
func (l *Limiter) Allow(ctx context.Context, principal string, limit int) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}

	res := l.Check(ctx, principal, limit)
	if !res.Allowed {
		return res
	}

	windowStart := l.windowStart(time.Now())
	// Keep the row around one window past rollover for inspection.
	ttl := 2 * l.window

	err := l.store.IncrementWindow(ctx, principal, windowStart, limit, ttl)
	switch {
	case err == nil:
		if res.Remaining > 0 {
			res.Remaining--
		}
		return res
	case errors.Is(err, ErrWindowFull):
		res.Allowed = false
		res.Remaining = 0
		return res
	default:
		l.logger.WarnContext(ctx, "rate limit increment failed, allowing request",
			"principal", principal, "error", err)
		return res
	}
}

// Window returns the configured window size.
func (l *Limiter) Window() time.Duration {
	return l.window
}

func (l *Limiter) windowStart(now time.Time) int64 {
	sec := int64(l.window / time.Second)
	return (now.Unix() / sec) * sec
}

// ErrWindowFull is returned by WindowStore implementations when the
// conditional increment loses: the window's budget is spent.
var ErrWindowFull = errors.New("ratelimit: window full")
