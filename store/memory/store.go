// Package memory provides an in-memory Store implementation for unit testing
// and embedded usage.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/triggerbox/triggerbox"
	"github.com/triggerbox/triggerbox/cursor"
	"github.com/triggerbox/triggerbox/dlq"
	"github.com/triggerbox/triggerbox/event"
	"github.com/triggerbox/triggerbox/idempotency"
	"github.com/triggerbox/triggerbox/ratelimit"
	"github.com/triggerbox/triggerbox/webhook"

	tbstore "github.com/triggerbox/triggerbox/store"
)

// compile-time interface check.
var _ tbstore.Store = (*Store)(nil)

// maxPageSize is the hard cap on a single pending-listing page.
const maxPageSize = 100

type window struct {
	count     int
	expiresAt time.Time
}

// Store is an in-memory implementation of store.Store. All conditional-write
// semantics (create-if-absent, compare-and-swap acknowledge, bounded
// increment) are simulated under a single mutex.
type Store struct {
	mu sync.RWMutex

	events     map[string]*event.Event        // keyed by event ID
	ledger     map[string]*idempotency.Record // keyed by idempotency key
	windows    map[string]*window             // keyed by principal + window start
	webhooks   map[string]*webhook.Webhook    // keyed by webhook ID
	dlqEntries map[string]*dlq.Entry          // keyed by DLQ entry ID

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		events:     make(map[string]*event.Event),
		ledger:     make(map[string]*idempotency.Record),
		windows:    make(map[string]*window),
		webhooks:   make(map[string]*webhook.Webhook),
		dlqEntries: make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return triggerbox.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// CreateEvent persists an event.
func (s *Store) CreateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[evt.ID] = copyEvent(evt)
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(_ context.Context, eventID string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[eventID]
	if !ok {
		return nil, triggerbox.ErrEventNotFound
	}
	return copyEvent(evt), nil
}

// AcknowledgeEvent transitions an event pending → acknowledged. The status
// check and the write happen under one lock, so concurrent callers see
// exactly one winner.
func (s *Store) AcknowledgeEvent(_ context.Context, eventID string, ackAt time.Time) (*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt, ok := s.events[eventID]
	if !ok {
		return nil, triggerbox.ErrEventNotFound
	}
	if evt.Status != event.StatusPending {
		return nil, triggerbox.ErrEventConflict
	}

	evt.Status = event.StatusAcknowledged
	at := ackAt.UTC()
	evt.AcknowledgedAt = &at
	return copyEvent(evt), nil
}

// DeleteEvent removes an event. Deleting a missing event is a no-op.
func (s *Store) DeleteEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, eventID)
	return nil
}

// ListPending returns one page of pending events in ascending creation order.
// Attribute filters apply to the fetched page after the page boundary is
// chosen, so a page may come back shorter than Limit while NextKey is still
// set.
func (s *Store) ListPending(_ context.Context, opts event.ListOpts) (*event.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	pending := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if evt.Status != event.StatusPending {
			continue
		}
		pending = append(pending, evt)
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	start := 0
	if afterID, ok := opts.StartKey["event_id"]; ok {
		for i, evt := range pending {
			if evt.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	if start >= len(pending) {
		return &event.Page{}, nil
	}

	raw := pending[start:]
	var nextKey cursor.PageKey
	if len(raw) > limit {
		raw = raw[:limit]
		last := raw[len(raw)-1]
		nextKey = cursor.PageKey{
			"event_id":   last.ID,
			"created_at": last.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	}

	page := &event.Page{NextKey: nextKey}
	for _, evt := range raw {
		if !evt.MatchesFilter(opts) {
			continue
		}
		page.Events = append(page.Events, copyEvent(evt))
	}
	return page, nil
}

// ──────────────────────────────────────────────────
// idempotency.Store
// ──────────────────────────────────────────────────

// PutRecord claims an idempotency key if it is free or its record has
// expired. Returns the stored record and whether this call claimed the key.
func (s *Store) PutRecord(_ context.Context, rec *idempotency.Record) (*idempotency.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ledger[rec.Key]
	if ok && existing.ExpiresAt.After(time.Now()) {
		cp := *existing
		return &cp, false, nil
	}

	cp := *rec
	s.ledger[rec.Key] = &cp
	out := cp
	return &out, true, nil
}

// GetRecord returns the live record for a key, or (nil, nil) when the key is
// unclaimed or its record has expired.
func (s *Store) GetRecord(_ context.Context, key string) (*idempotency.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.ledger[key]
	if !ok || !rec.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// ──────────────────────────────────────────────────
// ratelimit.WindowStore
// ──────────────────────────────────────────────────

// GetWindowCount returns the request count for a principal's window.
func (s *Store) GetWindowCount(_ context.Context, principal string, windowStart int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.windows[windowKey(principal, windowStart)]
	if !ok || !w.expiresAt.After(time.Now()) {
		return 0, nil
	}
	return w.count, nil
}

// IncrementWindow adds one to the window counter if the count is below limit.
func (s *Store) IncrementWindow(_ context.Context, principal string, windowStart int64, limit int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := windowKey(principal, windowStart)
	w, ok := s.windows[key]
	if !ok || !w.expiresAt.After(time.Now()) {
		w = &window{expiresAt: time.Now().Add(ttl)}
		s.windows[key] = w
	}

	if w.count >= limit {
		return ratelimit.ErrWindowFull
	}
	w.count++
	return nil
}

// ──────────────────────────────────────────────────
// webhook.Store
// ──────────────────────────────────────────────────

// CreateWebhook persists a new webhook.
func (s *Store) CreateWebhook(_ context.Context, wh *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.webhooks[wh.ID] = copyWebhook(wh)
	return nil
}

// GetWebhook returns a webhook by ID, including its secret.
func (s *Store) GetWebhook(_ context.Context, webhookID string) (*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wh, ok := s.webhooks[webhookID]
	if !ok {
		return nil, triggerbox.ErrWebhookNotFound
	}
	return copyWebhook(wh), nil
}

// UpdateWebhook replaces an existing webhook.
func (s *Store) UpdateWebhook(_ context.Context, wh *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[wh.ID]; !ok {
		return triggerbox.ErrWebhookNotFound
	}
	s.webhooks[wh.ID] = copyWebhook(wh)
	return nil
}

// DeleteWebhook removes a webhook. Deleting a missing webhook is a no-op.
func (s *Store) DeleteWebhook(_ context.Context, webhookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.webhooks, webhookID)
	return nil
}

// ListWebhooks returns webhooks owned by a principal, newest first.
func (s *Store) ListWebhooks(_ context.Context, owner string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhook.Webhook, 0, len(s.webhooks))
	for _, wh := range s.webhooks {
		if wh.Owner != owner {
			continue
		}
		if opts.IsActive != nil && wh.IsActive != *opts.IsActive {
			continue
		}
		result = append(result, copyWebhook(wh))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// PushDLQ stores a permanently failed delivery.
func (s *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.dlqEntries[entry.ID] = &cp
	return nil
}

// ListDLQ returns DLQ entries newest first, optionally filtered.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, e := range s.dlqEntries {
		if opts.WebhookID != "" && e.WebhookID != opts.WebhookID {
			continue
		}
		if opts.From != nil && e.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && e.FailedAt.After(*opts.To) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FailedAt.After(result[j].FailedAt)
	})

	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(_ context.Context, dlqID string) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.dlqEntries[dlqID]
	if !ok {
		return nil, triggerbox.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// MarkReplayed records that an entry was re-enqueued.
func (s *Store) MarkReplayed(_ context.Context, dlqID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.dlqEntries[dlqID]
	if !ok {
		return triggerbox.ErrDLQNotFound
	}
	at = at.UTC()
	e.ReplayedAt = &at
	return nil
}

// PurgeDLQ deletes entries that failed before the threshold.
func (s *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for k, e := range s.dlqEntries {
		if e.FailedAt.Before(before) {
			delete(s.dlqEntries, k)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of DLQ entries.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.dlqEntries)), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyEvent(evt *event.Event) *event.Event {
	cp := *evt
	if evt.AcknowledgedAt != nil {
		at := *evt.AcknowledgedAt
		cp.AcknowledgedAt = &at
	}
	if evt.Metadata != nil {
		md := *evt.Metadata
		cp.Metadata = &md
	}
	return &cp
}

func copyWebhook(wh *webhook.Webhook) *webhook.Webhook {
	cp := *wh
	cp.EventTypes = append([]string(nil), wh.EventTypes...)
	return &cp
}

func windowKey(principal string, windowStart int64) string {
	return principal + ":" + strconv.FormatInt(windowStart, 10)
}
