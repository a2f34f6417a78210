package dispatch

import "time"

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the delivery succeeded (2xx).
	Delivered Decision = iota

	// Reject means the subscriber rejected the payload (4xx). Client-side
	// rejection is not transient; the message is discarded without retry.
	Reject

	// Retry means the attempt failed transiently and the message should be
	// released back to the queue with backoff.
	Retry

	// DeadLetter means the retry budget is exhausted and the message moves
	// to the dead letter queue.
	DeadLetter
)

// MaxAttempts is the total delivery attempt budget per message.
const MaxAttempts = 3

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Error      string
	LatencyMs  int
}

// Retrier decides what to do after a delivery attempt.
type Retrier struct {
	maxAttempts int
}

// NewRetrier creates a retrier. maxAttempts <= 0 uses MaxAttempts.
func NewRetrier(maxAttempts int) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = MaxAttempts
	}
	return &Retrier{maxAttempts: maxAttempts}
}

// Decide determines what to do with a message after an attempt.
//
// Decision matrix:
//   - 2xx → Delivered
//   - 4xx → Reject (no retry; client errors won't self-correct)
//   - 5xx, timeout, or network error (status 0) → Retry while attempts
//     remain, else DeadLetter
func (r *Retrier) Decide(res Result, attempt int) Decision {
	code := res.StatusCode

	if code >= 200 && code < 300 {
		return Delivered
	}

	if code >= 400 && code < 500 {
		return Reject
	}

	if attempt < r.maxAttempts {
		return Retry
	}
	return DeadLetter
}

// Backoff returns the delay to apply before re-attempting after the given
// attempt number (1-based): 2^(attempt-1) seconds, so 1s, 2s, 4s, ...
func (r *Retrier) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<(attempt-1)) * time.Second
}
