package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/triggerbox/triggerbox/idempotency"
)

// PutRecord claims an idempotency key with SET NX. Expiry is delegated to
// the key's TTL, so an expired claim reads as free without any sweeping.
func (s *Store) PutRecord(ctx context.Context, rec *idempotency.Record) (*idempotency.Record, bool, error) {
	raw, err := marshalEntity(rec)
	if err != nil {
		return nil, false, err
	}

	key := entityKey(prefixIdem, rec.Key)

	// The losing branch re-reads the winner's record. The record can expire
	// between the failed SET NX and the GET; one more claim attempt covers
	// that window.
	for attempt := 0; attempt < 2; attempt++ {
		ttl := time.Until(rec.ExpiresAt)
		if ttl <= 0 {
			ttl = time.Second
		}

		claimed, err := s.rdb.SetNX(ctx, key, raw, ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("triggerbox/redis: claim idempotency key: %w", err)
		}
		if claimed {
			cp := *rec
			return &cp, true, nil
		}

		existing, err := s.GetRecord(ctx, rec.Key)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("triggerbox/redis: idempotency key %q flapping", rec.Key)
}

// GetRecord returns the record for a key, or (nil, nil) when unclaimed.
func (s *Store) GetRecord(ctx context.Context, key string) (*idempotency.Record, error) {
	raw, err := s.rdb.Get(ctx, entityKey(prefixIdem, key)).Bytes()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("triggerbox/redis: get idempotency record: %w", err)
	}

	var rec idempotency.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("triggerbox/redis: decode idempotency record: %w", err)
	}
	return &rec, nil
}
