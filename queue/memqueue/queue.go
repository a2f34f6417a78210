// Package memqueue provides an in-memory Queue implementation for unit
// testing and single-process deployments.
package memqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/triggerbox/triggerbox/queue"
)

// compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

type entry struct {
	msg       *queue.Message
	visibleAt time.Time
	inFlight  bool
}

// Queue is an in-memory implementation of queue.Queue.
type Queue struct {
	mu                sync.Mutex
	entries           map[string]*entry
	visibilityTimeout time.Duration
}

// New creates an in-memory queue with a 30s visibility timeout.
func New() *Queue {
	return NewWithVisibility(30 * time.Second)
}

// NewWithVisibility creates an in-memory queue with a custom visibility
// timeout for claimed messages.
func NewWithVisibility(visibility time.Duration) *Queue {
	return &Queue{
		entries:           make(map[string]*entry),
		visibilityTimeout: visibility,
	}
}

// Enqueue makes a message immediately visible.
func (q *Queue) Enqueue(_ context.Context, msg *queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := *msg
	q.entries[m.ID] = &entry{
		msg:       &m,
		visibleAt: time.Now(),
	}
	return nil
}

// Receive claims up to max due messages in enqueue order.
func (q *Queue) Receive(_ context.Context, max int) ([]*queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()

	due := make([]*entry, 0, max)
	for _, e := range q.entries {
		if e.inFlight && now.Before(e.visibleAt) {
			continue
		}
		if now.Before(e.visibleAt) {
			continue
		}
		due = append(due, e)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].msg.EnqueuedAt.Before(due[j].msg.EnqueuedAt)
	})
	if len(due) > max {
		due = due[:max]
	}

	out := make([]*queue.Message, 0, len(due))
	for _, e := range due {
		e.inFlight = true
		e.visibleAt = now.Add(q.visibilityTimeout)
		e.msg.Attempt++

		m := *e.msg
		out = append(out, &m)
	}
	return out, nil
}

// Delete removes a message permanently.
func (q *Queue) Delete(_ context.Context, msgID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[msgID]; !ok {
		return queue.ErrMessageNotFound
	}
	delete(q.entries, msgID)
	return nil
}

// Release makes a claimed message visible again after delay.
func (q *Queue) Release(_ context.Context, msgID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[msgID]
	if !ok {
		return queue.ErrMessageNotFound
	}
	e.inFlight = false
	e.visibleAt = time.Now().Add(delay)
	return nil
}

// Len returns the number of messages in the queue, in flight or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
