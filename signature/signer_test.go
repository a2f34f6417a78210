package signature_test

import (
	"strings"
	"testing"

	"github.com/triggerbox/triggerbox/signature"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"event_id":"abc","payload":{"user_id":"123"}}`)
	secret := "whsec_test_secret_1234567890abcdef"

	sig := signature.Sign(payload, secret)

	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d: %q", len(sig), sig)
	}
	if !signature.Verify(payload, secret, sig) {
		t.Fatal("signature failed to verify against its own payload")
	}
}

func TestVerifyRejectsMutatedPayload(t *testing.T) {
	payload := []byte(`{"event_id":"abc","payload":{"user_id":"123"}}`)
	secret := "whsec_test_secret_1234567890abcdef"
	sig := signature.Sign(payload, secret)

	mutated := []byte(strings.Replace(string(payload), "123", "124", 1))
	if signature.Verify(mutated, secret, sig) {
		t.Fatal("one-byte payload mutation must fail verification")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	sig := signature.Sign(payload, "secret-one-1234567890")

	if signature.Verify(payload, "secret-two-1234567890", sig) {
		t.Fatal("verification must fail under a different secret")
	}
}

func TestSignIsDeterministic(t *testing.T) {
	payload := []byte(`{"a":1}`)
	secret := "whsec_deterministic"

	if signature.Sign(payload, secret) != signature.Sign(payload, secret) {
		t.Fatal("signing the same payload twice must yield the same signature")
	}
}

func TestGenerateSecret(t *testing.T) {
	s1 := signature.GenerateSecret()
	s2 := signature.GenerateSecret()

	if !strings.HasPrefix(s1, "whsec_") {
		t.Fatalf("expected whsec_ prefix, got %q", s1)
	}
	if len(s1) != 70 {
		t.Fatalf("expected 70 chars, got %d", len(s1))
	}
	if s1 == s2 {
		t.Fatal("two generated secrets must differ")
	}
}
