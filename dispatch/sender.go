package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/triggerbox/triggerbox/signature"
	"github.com/triggerbox/triggerbox/webhook"
)

const maxResponseBody = 1024 // 1KB cap on response body reads

// Sender performs one signed HTTP webhook delivery per call.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given per-attempt HTTP timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send POSTs the serialized event snapshot to the webhook URL with signature
// headers and returns the observed result. The snapshot bytes are the exact
// signed message; they are not re-serialized here.
func (s *Sender) Send(ctx context.Context, wh *webhook.Webhook, snapshot []byte) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(snapshot))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Triggerbox/1.0")
	req.Header.Set("X-Webhook-Signature", signature.Sign(snapshot, wh.Secret))
	req.Header.Set("X-Webhook-Id", wh.ID)
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339Nano))

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	return Result{
		StatusCode: resp.StatusCode,
		LatencyMs:  int(latency),
	}
}
