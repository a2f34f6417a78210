package triggerbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/triggerbox/triggerbox"
	"github.com/triggerbox/triggerbox/event"
	"github.com/triggerbox/triggerbox/queue/memqueue"
	"github.com/triggerbox/triggerbox/store/memory"
	"github.com/triggerbox/triggerbox/webhook"
)

func newEngine(t *testing.T, opts ...triggerbox.Option) (*triggerbox.Engine, *memqueue.Queue) {
	t.Helper()

	st := memory.New()
	t.Cleanup(func() { st.Close() })
	q := memqueue.New()

	opts = append([]triggerbox.Option{
		triggerbox.WithStore(st),
		triggerbox.WithQueue(q),
	}, opts...)

	tb, err := triggerbox.New(opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return tb, q
}

func sampleInput() event.CreateInput {
	return event.CreateInput{
		Source:  "billing",
		Type:    "invoice.created",
		Payload: json.RawMessage(`{"invoice_id":"inv_42"}`),
	}
}

func TestNew_RequiresBackends(t *testing.T) {
	if _, err := triggerbox.New(); !errors.Is(err, triggerbox.ErrNoStore) {
		t.Fatalf("no store: error = %v, want ErrNoStore", err)
	}

	st := memory.New()
	defer st.Close()
	if _, err := triggerbox.New(triggerbox.WithStore(st)); !errors.Is(err, triggerbox.ErrNoQueue) {
		t.Fatalf("no queue: error = %v, want ErrNoQueue", err)
	}
}

func TestIngest_FansOutToSubscribers(t *testing.T) {
	tb, q := newEngine(t)
	ctx := context.Background()

	if _, err := tb.Webhooks().Create(ctx, "acct_1", webhook.Input{
		URL:        "https://example.com/hook",
		EventTypes: []string{"invoice.created"},
	}); err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	evt, err := tb.Ingest(ctx, "acct_1", sampleInput())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if evt.Status != event.StatusPending {
		t.Fatalf("status = %q", evt.Status)
	}
	if q.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", q.Len())
	}
}

func TestIngest_NoSubscribersStillSucceeds(t *testing.T) {
	tb, q := newEngine(t)

	if _, err := tb.Ingest(context.Background(), "acct_1", sampleInput()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("queue length = %d, want 0", q.Len())
	}
}

func TestIngest_ReplayDoesNotFanOutTwice(t *testing.T) {
	tb, q := newEngine(t)
	ctx := context.Background()

	if _, err := tb.Webhooks().Create(ctx, "acct_1", webhook.Input{
		URL:        "https://example.com/hook",
		EventTypes: []string{"*"},
	}); err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	in := sampleInput()
	in.Metadata = &event.Metadata{IdempotencyKey: "order-42"}

	first, err := tb.Ingest(ctx, "acct_1", in)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := tb.Ingest(ctx, "acct_1", in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("replay returned event %q, want %q", second.ID, first.ID)
	}
	if q.Len() != 1 {
		t.Fatalf("queue length = %d after replay, want 1", q.Len())
	}
}

func TestIngest_DoesNotSurfaceDeliveryProblems(t *testing.T) {
	tb, _ := newEngine(t)
	ctx := context.Background()

	// A webhook pointing nowhere; ingestion still succeeds because delivery
	// is asynchronous.
	if _, err := tb.Webhooks().Create(ctx, "acct_1", webhook.Input{
		URL:        "http://127.0.0.1:1/unreachable",
		EventTypes: []string{"*"},
	}); err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	if _, err := tb.Ingest(ctx, "acct_1", sampleInput()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
}

func TestAcknowledge(t *testing.T) {
	tb, _ := newEngine(t)
	ctx := context.Background()

	evt, err := tb.Ingest(ctx, "acct_1", sampleInput())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	acked, err := tb.Acknowledge(ctx, evt.ID)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if acked.Status != event.StatusAcknowledged {
		t.Fatalf("status = %q", acked.Status)
	}

	if _, err := tb.Acknowledge(ctx, evt.ID); !errors.Is(err, triggerbox.ErrEventConflict) {
		t.Fatalf("second acknowledge: %v, want ErrEventConflict", err)
	}
}

func TestTestWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tb, _ := newEngine(t)
	ctx := context.Background()

	wh, err := tb.Webhooks().Create(ctx, "acct_1", webhook.Input{
		URL:        srv.URL,
		EventTypes: []string{"*"},
	})
	if err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	res, err := tb.TestWebhook(ctx, wh.ID)
	if err != nil {
		t.Fatalf("test webhook: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, error %q", res.StatusCode, res.Error)
	}
}

func TestEndToEndDelivery(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		select {
		case received <- body:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tb, q := newEngine(t, triggerbox.WithPollInterval(10*time.Millisecond))
	ctx := context.Background()

	if _, err := tb.Webhooks().Create(ctx, "acct_1", webhook.Input{
		URL:        srv.URL,
		EventTypes: []string{"invoice.created"},
	}); err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	evt, err := tb.Ingest(ctx, "acct_1", sampleInput())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	tb.Start(ctx)
	defer tb.Stop(ctx)

	select {
	case body := <-received:
		var snap event.Event
		if err := json.Unmarshal(body, &snap); err != nil {
			t.Fatalf("decode delivery: %v", err)
		}
		if snap.ID != evt.ID {
			t.Fatalf("delivered event %q, want %q", snap.ID, evt.ID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("delivery never arrived")
	}

	deadline := time.After(3 * time.Second)
	for q.Len() > 0 {
		select {
		case <-deadline:
			t.Fatalf("queue not settled, %d messages left", q.Len())
		case <-time.After(20 * time.Millisecond):
		}
	}
}
