package cursor_test

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/triggerbox/triggerbox/cursor"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := cursor.PageKey{
		"event_id":   "550e8400-e29b-41d4-a716-446655440000",
		"created_at": "2025-11-10T12:00:00.000000Z",
		"status":     "pending",
	}

	token := cursor.Encode(key)
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	decoded, err := cursor.Decode(token)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(decoded) != len(key) {
		t.Fatalf("got %d entries, want %d", len(decoded), len(key))
	}
	for k, v := range key {
		if decoded[k] != v {
			t.Fatalf("entry %q: got %q, want %q", k, decoded[k], v)
		}
	}
}

func TestEncodeEmptyKey(t *testing.T) {
	if got := cursor.Encode(nil); got != "" {
		t.Fatalf("expected empty token for nil key, got %q", got)
	}
	if got := cursor.Encode(cursor.PageKey{}); got != "" {
		t.Fatalf("expected empty token for empty key, got %q", got)
	}
}

func TestDecodeEmptyToken(t *testing.T) {
	key, err := cursor.Decode("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != nil {
		t.Fatalf("expected nil key, got %v", key)
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "!!not-base64!!"},
		{"base64 of garbage", base64.URLEncoding.EncodeToString([]byte("not json"))},
		{"base64 of wrong shape", base64.URLEncoding.EncodeToString([]byte(`[1,2,3]`))},
		{"base64 of empty object", base64.URLEncoding.EncodeToString([]byte(`{}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cursor.Decode(tt.token)
			if !errors.Is(err, cursor.ErrInvalidCursor) {
				t.Fatalf("expected ErrInvalidCursor, got %v", err)
			}
		})
	}
}
