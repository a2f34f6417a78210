// Package signature provides HMAC-SHA256 webhook payload signing and
// verification.
//
// The canonical message is the serialized JSON event snapshot exactly as sent
// in the delivery body; the signature is the hex-encoded MAC of those bytes.
// Subscribers recompute the MAC over the raw request body and compare in
// constant time.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 signature of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the valid signature of payload under secret.
// The comparison is constant-time.
func Verify(payload []byte, secret, sig string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(sig))
}
