// Package idempotency implements the ledger mapping caller-supplied
// idempotency keys to the events they produced.
//
// A record is created at most once per key via the store's create-if-absent
// conditional write and expires after 24 hours. Records are never updated:
// whoever wins the conditional write owns the key for its lifetime, and every
// later call bearing the same key is answered with the winner's event.
package idempotency

import (
	"context"
	"time"
)

// DefaultTTL is the existence window of an idempotency record.
const DefaultTTL = 24 * time.Hour

// Record maps an idempotency key to the event it produced.
type Record struct {
	// Key is the caller-supplied idempotency key.
	Key string `json:"idempotency_key"`

	// EventID is the event created by the request that claimed this key.
	EventID string `json:"event_id"`

	// CreatedAt is when the key was claimed.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the record lapses and the key may be reused.
	ExpiresAt time.Time `json:"expires_at"`
}

// Store defines the persistence contract for the idempotency ledger.
type Store interface {
	// PutRecord claims a key with a create-if-absent conditional write.
	// If the key is free it stores rec and returns (rec, true). If the key is
	// already claimed it returns the existing record and false, leaving the
	// stored record untouched. Any other error is a backend failure.
	PutRecord(ctx context.Context, rec *Record) (*Record, bool, error)

	// GetRecord returns the record for a key, or (nil, nil) when the key is
	// unclaimed or its record has expired.
	GetRecord(ctx context.Context, key string) (*Record, error)
}

// NewRecord builds a ledger record for a freshly claimed key.
func NewRecord(key, eventID string, now time.Time) *Record {
	return &Record{
		Key:       key,
		EventID:   eventID,
		CreatedAt: now,
		ExpiresAt: now.Add(DefaultTTL),
	}
}
