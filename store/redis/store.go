// Package redis implements store.Store on Redis.
//
// Entities are JSON values under prefixed keys with sorted set secondary
// indexes. All conditional writes (idempotency claims, acknowledge
// compare-and-swap, bounded rate-limit increments) run as SETNX or Lua
// scripts so they stay atomic across processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	tbstore "github.com/triggerbox/triggerbox/store"
)

// compile-time interface check
var _ tbstore.Store = (*Store)(nil)

// Store implements store.Store using Redis.
type Store struct {
	rdb goredis.UniversalClient
}

// New creates a new Redis store.
func New(rdb goredis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// scoreFromTime converts a time.Time to a sorted set score (unix seconds as
// float64, nanosecond precision).
func scoreFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// isRedisNil checks if an error is a Redis nil (key not found).
func isRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// getEntity retrieves and decodes a JSON entity.
func (s *Store) getEntity(ctx context.Context, key string, dest any) error {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// zRevRangeByScoreIDs returns member IDs from a sorted set in descending
// score order within a range.
func (s *Store) zRevRangeByScoreIDs(ctx context.Context, key string, lo, hi float64, limit int) ([]string, error) {
	minStr := "-inf"
	maxStr := "+inf"
	if !math.IsInf(lo, -1) {
		minStr = strconv.FormatFloat(lo, 'f', -1, 64)
	}
	if !math.IsInf(hi, 1) {
		maxStr = strconv.FormatFloat(hi, 'f', -1, 64)
	}
	return s.rdb.ZRevRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min:   minStr,
		Max:   maxStr,
		Count: int64(limit),
	}).Result()
}

func marshalEntity(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("triggerbox/redis: marshal entity: %w", err)
	}
	return raw, nil
}
