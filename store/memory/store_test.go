package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/triggerbox/triggerbox"
	"github.com/triggerbox/triggerbox/dlq"
	"github.com/triggerbox/triggerbox/event"
	"github.com/triggerbox/triggerbox/id"
	"github.com/triggerbox/triggerbox/idempotency"
	"github.com/triggerbox/triggerbox/ratelimit"
	"github.com/triggerbox/triggerbox/webhook"
)

func ctx() context.Context { return context.Background() }

func newEvent(source, eventType string, createdAt time.Time) *event.Event {
	return &event.Event{
		ID:        id.NewEventID(),
		CreatedAt: createdAt.UTC(),
		Source:    source,
		Type:      eventType,
		Payload:   json.RawMessage(`{"k":"v"}`),
		Status:    event.StatusPending,
		ExpiresAt: createdAt.Add(event.DefaultTTL).UTC(),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := New()

	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, triggerbox.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

func TestEventCRUD(t *testing.T) {
	s := New()
	evt := newEvent("billing", "invoice.created", time.Now())

	if err := s.CreateEvent(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetEvent(ctx(), evt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != "invoice.created" || got.Status != event.StatusPending {
		t.Fatalf("got %+v", got)
	}

	_, err = s.GetEvent(ctx(), id.NewEventID())
	if !errors.Is(err, triggerbox.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}

	if err := s.DeleteEvent(ctx(), evt.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetEvent(ctx(), evt.ID); !errors.Is(err, triggerbox.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound after delete, got %v", err)
	}

	// Deleting again is not an error.
	if err := s.DeleteEvent(ctx(), evt.ID); err != nil {
		t.Fatal(err)
	}
}

func TestAcknowledgeEvent_SingleWinner(t *testing.T) {
	s := New()
	evt := newEvent("billing", "invoice.created", time.Now())
	if err := s.CreateEvent(ctx(), evt); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	got, err := s.AcknowledgeEvent(ctx(), evt.ID, now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != event.StatusAcknowledged {
		t.Fatalf("status = %q", got.Status)
	}
	if got.AcknowledgedAt == nil {
		t.Fatal("AcknowledgedAt not set")
	}

	// Second acknowledge loses the conditional update.
	if _, err := s.AcknowledgeEvent(ctx(), evt.ID, now); !errors.Is(err, triggerbox.ErrEventConflict) {
		t.Fatalf("expected ErrEventConflict, got %v", err)
	}

	if _, err := s.AcknowledgeEvent(ctx(), id.NewEventID(), now); !errors.Is(err, triggerbox.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestListPending_Pagination(t *testing.T) {
	s := New()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		evt := newEvent("billing", "invoice.created", base.Add(time.Duration(i)*time.Second))
		if err := s.CreateEvent(ctx(), evt); err != nil {
			t.Fatal(err)
		}
	}

	var all []*event.Event
	var startKey map[string]string
	pages := 0
	for {
		page, err := s.ListPending(ctx(), event.ListOpts{Limit: 10, StartKey: startKey})
		if err != nil {
			t.Fatal(err)
		}
		pages++
		all = append(all, page.Events...)
		if page.NextKey == nil {
			break
		}
		startKey = page.NextKey
	}

	if pages != 3 {
		t.Fatalf("expected 3 pages, got %d", pages)
	}
	if len(all) != 25 {
		t.Fatalf("expected 25 events across pages, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Fatal("events not in ascending creation order")
		}
	}
}

func TestListPending_EqualTimestampsAcrossPages(t *testing.T) {
	s := New()
	at := time.Now()

	created := make(map[string]bool)
	for i := 0; i < 7; i++ {
		evt := newEvent("billing", "invoice.created", at)
		if err := s.CreateEvent(ctx(), evt); err != nil {
			t.Fatal(err)
		}
		created[evt.ID] = true
	}

	seen := make(map[string]bool)
	var startKey map[string]string
	for pages := 0; ; pages++ {
		if pages > 7 {
			t.Fatal("pagination did not terminate")
		}
		page, err := s.ListPending(ctx(), event.ListOpts{Limit: 3, StartKey: startKey})
		if err != nil {
			t.Fatal(err)
		}
		for _, evt := range page.Events {
			if seen[evt.ID] {
				t.Fatalf("event %s served twice", evt.ID)
			}
			seen[evt.ID] = true
		}
		if page.NextKey == nil {
			break
		}
		startKey = page.NextKey
	}

	if len(seen) != len(created) {
		t.Fatalf("saw %d of %d events sharing one timestamp", len(seen), len(created))
	}
}

func TestListPending_ExcludesAcknowledged(t *testing.T) {
	s := New()
	now := time.Now()

	pending := newEvent("billing", "invoice.created", now)
	acked := newEvent("billing", "invoice.paid", now.Add(time.Second))
	for _, evt := range []*event.Event{pending, acked} {
		if err := s.CreateEvent(ctx(), evt); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.AcknowledgeEvent(ctx(), acked.ID, now); err != nil {
		t.Fatal(err)
	}

	page, err := s.ListPending(ctx(), event.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Events) != 1 || page.Events[0].ID != pending.ID {
		t.Fatalf("expected only the pending event, got %d", len(page.Events))
	}
}

func TestListPending_Filters(t *testing.T) {
	s := New()
	now := time.Now()

	a := newEvent("billing", "invoice.created", now)
	b := newEvent("crm", "contact.created", now.Add(time.Second))
	for _, evt := range []*event.Event{a, b} {
		if err := s.CreateEvent(ctx(), evt); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.ListPending(ctx(), event.ListOpts{Source: "crm"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Events) != 1 || page.Events[0].ID != b.ID {
		t.Fatalf("source filter: got %d events", len(page.Events))
	}

	page, err = s.ListPending(ctx(), event.ListOpts{Type: "invoice.created"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Events) != 1 || page.Events[0].ID != a.ID {
		t.Fatalf("type filter: got %d events", len(page.Events))
	}
}

// ──────────────────────────────────────────────────
// idempotency.Store
// ──────────────────────────────────────────────────

func TestPutRecord_ClaimOnce(t *testing.T) {
	s := New()
	now := time.Now()

	first := idempotency.NewRecord("order-42", id.NewEventID(), now)
	stored, claimed, err := s.PutRecord(ctx(), first)
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("first put should claim the key")
	}
	if stored.EventID != first.EventID {
		t.Fatalf("stored event ID %q", stored.EventID)
	}

	second := idempotency.NewRecord("order-42", id.NewEventID(), now)
	stored, claimed, err = s.PutRecord(ctx(), second)
	if err != nil {
		t.Fatal(err)
	}
	if claimed {
		t.Fatal("second put should lose the claim")
	}
	if stored.EventID != first.EventID {
		t.Fatal("losing put should see the winner's record")
	}
}

func TestPutRecord_ExpiredKeyIsFree(t *testing.T) {
	s := New()

	expired := idempotency.NewRecord("order-42", id.NewEventID(), time.Now().Add(-25*time.Hour))
	if _, _, err := s.PutRecord(ctx(), expired); err != nil {
		t.Fatal(err)
	}

	if rec, err := s.GetRecord(ctx(), "order-42"); err != nil || rec != nil {
		t.Fatalf("expired record should read as absent, got %v, %v", rec, err)
	}

	fresh := idempotency.NewRecord("order-42", id.NewEventID(), time.Now())
	_, claimed, err := s.PutRecord(ctx(), fresh)
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("expired key should be claimable again")
	}
}

func TestGetRecord_Unclaimed(t *testing.T) {
	s := New()
	rec, err := s.GetRecord(ctx(), "never-seen")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

// ──────────────────────────────────────────────────
// ratelimit.WindowStore
// ──────────────────────────────────────────────────

func TestIncrementWindow_EnforcesLimit(t *testing.T) {
	s := New()
	windowStart := (time.Now().Unix() / 60) * 60

	for i := 0; i < 5; i++ {
		if err := s.IncrementWindow(ctx(), "client-1", windowStart, 5, time.Minute); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	err := s.IncrementWindow(ctx(), "client-1", windowStart, 5, time.Minute)
	if !errors.Is(err, ratelimit.ErrWindowFull) {
		t.Fatalf("expected ErrWindowFull, got %v", err)
	}

	count, err := s.GetWindowCount(ctx(), "client-1", windowStart)
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Fatalf("count = %d", count)
	}

	// A different principal has its own window.
	if err := s.IncrementWindow(ctx(), "client-2", windowStart, 5, time.Minute); err != nil {
		t.Fatal(err)
	}
}

func TestGetWindowCount_AbsentIsZero(t *testing.T) {
	s := New()
	count, err := s.GetWindowCount(ctx(), "client-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("count = %d", count)
	}
}

// ──────────────────────────────────────────────────
// webhook.Store
// ──────────────────────────────────────────────────

func newWebhook(owner string, createdAt time.Time) *webhook.Webhook {
	return &webhook.Webhook{
		ID:         id.NewWebhookID(),
		URL:        "https://example.com/hook",
		EventTypes: []string{"invoice.created"},
		Secret:     "whsec_0123456789abcdef",
		Owner:      owner,
		IsActive:   true,
		CreatedAt:  createdAt.UTC(),
	}
}

func TestWebhookCRUD(t *testing.T) {
	s := New()
	wh := newWebhook("client-1", time.Now())

	if err := s.CreateWebhook(ctx(), wh); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetWebhook(ctx(), wh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Secret != wh.Secret {
		t.Fatal("GetWebhook should include the secret")
	}

	got.URL = "https://example.com/v2"
	if err := s.UpdateWebhook(ctx(), got); err != nil {
		t.Fatal(err)
	}
	updated, _ := s.GetWebhook(ctx(), wh.ID)
	if updated.URL != "https://example.com/v2" {
		t.Fatalf("URL = %q", updated.URL)
	}

	missing := newWebhook("client-1", time.Now())
	if err := s.UpdateWebhook(ctx(), missing); !errors.Is(err, triggerbox.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}

	if err := s.DeleteWebhook(ctx(), wh.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetWebhook(ctx(), wh.ID); !errors.Is(err, triggerbox.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound after delete, got %v", err)
	}
	if err := s.DeleteWebhook(ctx(), wh.ID); err != nil {
		t.Fatal(err)
	}
}

func TestListWebhooks(t *testing.T) {
	s := New()
	now := time.Now()

	older := newWebhook("client-1", now.Add(-time.Minute))
	newer := newWebhook("client-1", now)
	inactive := newWebhook("client-1", now.Add(-2*time.Minute))
	inactive.IsActive = false
	other := newWebhook("client-2", now)

	for _, wh := range []*webhook.Webhook{older, newer, inactive, other} {
		if err := s.CreateWebhook(ctx(), wh); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListWebhooks(ctx(), "client-1", webhook.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 webhooks, got %d", len(list))
	}
	if list[0].ID != newer.ID {
		t.Fatal("expected newest first")
	}

	active := true
	list, err = s.ListWebhooks(ctx(), "client-1", webhook.ListOpts{IsActive: &active})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 active webhooks, got %d", len(list))
	}
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

func newDLQEntry(webhookID string, failedAt time.Time) *dlq.Entry {
	return &dlq.Entry{
		ID:           id.NewDLQID(),
		WebhookID:    webhookID,
		URL:          "https://example.com/hook",
		Event:        json.RawMessage(`{"event_id":"x"}`),
		Error:        "connection refused",
		AttemptCount: 3,
		FailedAt:     failedAt.UTC(),
	}
}

func TestDLQLifecycle(t *testing.T) {
	s := New()
	now := time.Now()

	entry := newDLQEntry(id.NewWebhookID(), now)
	if err := s.PushDLQ(ctx(), entry); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDLQ(ctx(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Error != "connection refused" {
		t.Fatalf("got %+v", got)
	}

	if _, err := s.GetDLQ(ctx(), id.NewDLQID()); !errors.Is(err, triggerbox.ErrDLQNotFound) {
		t.Fatalf("expected ErrDLQNotFound, got %v", err)
	}

	if err := s.MarkReplayed(ctx(), entry.ID, now); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetDLQ(ctx(), entry.ID)
	if got.ReplayedAt == nil {
		t.Fatal("ReplayedAt not set")
	}

	count, err := s.CountDLQ(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count = %d", count)
	}
}

func TestDLQListAndPurge(t *testing.T) {
	s := New()
	now := time.Now()
	whID := id.NewWebhookID()

	old := newDLQEntry(whID, now.Add(-48*time.Hour))
	recent := newDLQEntry(whID, now)
	otherHook := newDLQEntry(id.NewWebhookID(), now)

	for _, e := range []*dlq.Entry{old, recent, otherHook} {
		if err := s.PushDLQ(ctx(), e); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListDLQ(ctx(), dlq.ListOpts{WebhookID: whID})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries for webhook, got %d", len(list))
	}
	if list[0].ID != recent.ID {
		t.Fatal("expected newest first")
	}

	purged, err := s.PurgeDLQ(ctx(), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d", purged)
	}
	count, _ := s.CountDLQ(ctx())
	if count != 2 {
		t.Fatalf("count after purge = %d", count)
	}
}
