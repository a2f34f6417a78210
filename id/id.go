// Package id generates and validates the UUID identifiers used by all
// Triggerbox entities.
//
// Every identifier is a lowercase UUIDv4 string. Callers that accept IDs from
// the outside world should run them through Parse before touching the store so
// a malformed path segment never turns into a store lookup.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewEventID generates a new unique event ID.
func NewEventID() string { return newID() }

// NewWebhookID generates a new unique webhook ID.
func NewWebhookID() string { return newID() }

// NewMessageID generates a new unique queue message ID.
func NewMessageID() string { return newID() }

// NewDLQID generates a new unique dead-letter entry ID.
func NewDLQID() string { return newID() }

// NewRequestID generates a correlation ID attached to every API response.
func NewRequestID() string { return newID() }

func newID() string {
	return strings.ToLower(uuid.NewString())
}

// Parse validates that s is a well-formed UUID and returns its canonical
// lowercase form. Returns an error for anything else, including the empty
// string.
func Parse(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("id: parse: empty string")
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("id: parse %q: %w", s, err)
	}

	return strings.ToLower(u.String()), nil
}

// Valid reports whether s is a well-formed UUID.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}
