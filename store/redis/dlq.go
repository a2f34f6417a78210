package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/triggerbox/triggerbox"
	"github.com/triggerbox/triggerbox/dlq"
)

// PushDLQ stores a permanently failed delivery and indexes it globally and
// per webhook by failure time.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	raw, err := marshalEntity(entry)
	if err != nil {
		return err
	}

	score := scoreFromTime(entry.FailedAt)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, entityKey(prefixDLQ, entry.ID), raw, 0)
	pipe.ZAdd(ctx, zDLQAll, goredis.Z{Score: score, Member: entry.ID})
	pipe.ZAdd(ctx, zDLQWebhook+entry.WebhookID, goredis.Z{Score: score, Member: entry.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("triggerbox/redis: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries newest first, optionally filtered.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	indexKey := zDLQAll
	if opts.WebhookID != "" {
		indexKey = zDLQWebhook + opts.WebhookID
	}

	lo := math.Inf(-1)
	hi := math.Inf(1)
	if opts.From != nil {
		lo = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		hi = scoreFromTime(*opts.To)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = maxPageSize
	}

	ids, err := s.zRevRangeByScoreIDs(ctx, indexKey, lo, hi, limit)
	if err != nil {
		return nil, fmt.Errorf("triggerbox/redis: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for _, dlqID := range ids {
		entry, err := s.GetDLQ(ctx, dlqID)
		if err != nil {
			if errors.Is(err, triggerbox.ErrDLQNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, entry)
	}
	return result, nil
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, dlqID string) (*dlq.Entry, error) {
	raw, err := s.rdb.Get(ctx, entityKey(prefixDLQ, dlqID)).Bytes()
	if err != nil {
		if isRedisNil(err) {
			return nil, triggerbox.ErrDLQNotFound
		}
		return nil, fmt.Errorf("triggerbox/redis: get dlq entry: %w", err)
	}

	var entry dlq.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("triggerbox/redis: decode dlq entry: %w", err)
	}
	return &entry, nil
}

// MarkReplayed records that an entry was re-enqueued.
func (s *Store) MarkReplayed(ctx context.Context, dlqID string, at time.Time) error {
	entry, err := s.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}

	at = at.UTC()
	entry.ReplayedAt = &at

	raw, err := marshalEntity(entry)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, entityKey(prefixDLQ, dlqID), raw, 0).Err(); err != nil {
		return fmt.Errorf("triggerbox/redis: mark replayed: %w", err)
	}
	return nil
}

// PurgeDLQ deletes entries that failed before the threshold.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	threshold := "(" + fmt.Sprintf("%f", scoreFromTime(before))
	ids, err := s.rdb.ZRangeByScore(ctx, zDLQAll, &goredis.ZRangeBy{
		Min: "-inf",
		Max: threshold,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("triggerbox/redis: purge dlq: %w", err)
	}

	var count int64
	for _, dlqID := range ids {
		entry, err := s.GetDLQ(ctx, dlqID)
		if err != nil {
			if errors.Is(err, triggerbox.ErrDLQNotFound) {
				s.rdb.ZRem(ctx, zDLQAll, dlqID)
				continue
			}
			return count, err
		}

		pipe := s.rdb.TxPipeline()
		pipe.Del(ctx, entityKey(prefixDLQ, dlqID))
		pipe.ZRem(ctx, zDLQAll, dlqID)
		pipe.ZRem(ctx, zDLQWebhook+entry.WebhookID, dlqID)
		if _, err := pipe.Exec(ctx); err != nil {
			return count, fmt.Errorf("triggerbox/redis: purge dlq delete: %w", err)
		}
		count++
	}
	return count, nil
}

// CountDLQ returns the total number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDLQAll).Result()
	if err != nil {
		return 0, fmt.Errorf("triggerbox/redis: count dlq: %w", err)
	}
	return count, nil
}
