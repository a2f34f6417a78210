package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/triggerbox/triggerbox"
	"github.com/triggerbox/triggerbox/dlq"
	"github.com/triggerbox/triggerbox/id"
	"github.com/triggerbox/triggerbox/queue"
	"github.com/triggerbox/triggerbox/queue/memqueue"
	"github.com/triggerbox/triggerbox/store/memory"
)

func newService(t *testing.T) (*dlq.Service, *memqueue.Queue) {
	t.Helper()
	st := memory.New()
	t.Cleanup(func() { st.Close() })
	q := memqueue.New()
	return dlq.NewService(st, q, nil), q
}

func failedMessage() *queue.Message {
	return &queue.Message{
		ID:         id.NewMessageID(),
		WebhookID:  id.NewWebhookID(),
		Event:      []byte(`{"event_id":"abc"}`),
		EnqueuedAt: time.Now().UTC(),
		Attempt:    3,
	}
}

func TestPushFailed(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	msg := failedMessage()
	if err := svc.PushFailed(ctx, msg, "https://example.com/hook", "connection refused", 0); err != nil {
		t.Fatalf("push: %v", err)
	}

	entries, err := svc.List(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("listed %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.WebhookID != msg.WebhookID {
		t.Errorf("webhook_id = %q", e.WebhookID)
	}
	if e.AttemptCount != 3 {
		t.Errorf("attempt_count = %d", e.AttemptCount)
	}
	if e.Error != "connection refused" {
		t.Errorf("error = %q", e.Error)
	}
	if e.ReplayedAt != nil {
		t.Error("fresh entry marked replayed")
	}

	n, err := svc.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("count = %d, err %v", n, err)
	}
}

func TestReplay(t *testing.T) {
	svc, q := newService(t)
	ctx := context.Background()

	msg := failedMessage()
	if err := svc.PushFailed(ctx, msg, "https://example.com/hook", "timeout", 504); err != nil {
		t.Fatalf("push: %v", err)
	}
	entries, _ := svc.List(ctx, dlq.ListOpts{})
	entryID := entries[0].ID

	if err := svc.Replay(ctx, entryID); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if q.Len() != 1 {
		t.Fatalf("queue length = %d after replay, want 1", q.Len())
	}
	replayed, err := q.Receive(ctx, 1)
	if err != nil || len(replayed) != 1 {
		t.Fatalf("receive: %v (%d messages)", err, len(replayed))
	}
	if replayed[0].WebhookID != msg.WebhookID {
		t.Errorf("replayed webhook_id = %q", replayed[0].WebhookID)
	}
	// The replayed message carries a fresh attempt budget.
	if replayed[0].Attempt != 1 {
		t.Errorf("replayed attempt = %d, want 1", replayed[0].Attempt)
	}

	// The entry survives replay, now marked.
	entry, err := svc.Get(ctx, entryID)
	if err != nil {
		t.Fatalf("get after replay: %v", err)
	}
	if entry.ReplayedAt == nil {
		t.Fatal("entry not marked replayed")
	}
}

func TestReplay_Missing(t *testing.T) {
	svc, _ := newService(t)

	err := svc.Replay(context.Background(), id.NewDLQID())
	if !errors.Is(err, triggerbox.ErrDLQNotFound) {
		t.Fatalf("error = %v, want ErrDLQNotFound", err)
	}
}

func TestList_FilterByWebhook(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	target := failedMessage()
	if err := svc.PushFailed(ctx, target, "https://example.com/a", "boom", 500); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := svc.PushFailed(ctx, failedMessage(), "https://example.com/b", "boom", 500); err != nil {
		t.Fatalf("push: %v", err)
	}

	entries, err := svc.List(ctx, dlq.ListOpts{WebhookID: target.WebhookID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].WebhookID != target.WebhookID {
		t.Fatalf("filtered listing wrong: %d entries", len(entries))
	}
}

func TestPurge(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if err := svc.PushFailed(ctx, failedMessage(), "https://example.com/hook", "boom", 500); err != nil {
		t.Fatalf("push: %v", err)
	}

	// Entries at or after the threshold survive.
	n, err := svc.Purge(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 0 {
		t.Fatalf("purged %d entries, want 0", n)
	}

	n, err = svc.Purge(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d entries, want 1", n)
	}

	count, _ := svc.Count(ctx)
	if count != 0 {
		t.Fatalf("count = %d after purge", count)
	}
}
