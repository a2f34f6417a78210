package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/triggerbox/triggerbox"
	"github.com/triggerbox/triggerbox/cursor"
	"github.com/triggerbox/triggerbox/event"
)

// maxPageSize is the hard cap on a single pending-listing page.
const maxPageSize = 100

// Events are stored as hashes: the immutable attributes live in a single
// "body" JSON field, while the mutable lifecycle fields ("status",
// "acknowledged_at") are separate hash fields so the acknowledge
// compare-and-swap never has to re-encode the payload.
type eventBody struct {
	ID        string          `json:"event_id"`
	CreatedAt time.Time       `json:"created_at"`
	Source    string          `json:"source"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  *event.Metadata `json:"metadata,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func toEventBody(evt *event.Event) *eventBody {
	return &eventBody{
		ID:        evt.ID,
		CreatedAt: evt.CreatedAt,
		Source:    evt.Source,
		Type:      evt.Type,
		Payload:   evt.Payload,
		Metadata:  evt.Metadata,
		ExpiresAt: evt.ExpiresAt,
	}
}

func fromEventHash(fields map[string]string) (*event.Event, error) {
	var body eventBody
	if err := json.Unmarshal([]byte(fields["body"]), &body); err != nil {
		return nil, fmt.Errorf("triggerbox/redis: decode event body: %w", err)
	}

	evt := &event.Event{
		ID:        body.ID,
		CreatedAt: body.CreatedAt,
		Source:    body.Source,
		Type:      body.Type,
		Payload:   body.Payload,
		Metadata:  body.Metadata,
		ExpiresAt: body.ExpiresAt,
		Status:    event.Status(fields["status"]),
	}

	if raw := fields["acknowledged_at"]; raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("triggerbox/redis: parse acknowledged_at: %w", err)
		}
		evt.AcknowledgedAt = &at
	}
	return evt, nil
}

// CreateEvent persists the event hash, registers it in the pending index and
// arms the TTL.
func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	raw, err := marshalEntity(toEventBody(evt))
	if err != nil {
		return err
	}

	key := entityKey(prefixEvent, evt.ID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, "body", raw, "status", string(evt.Status))
	pipe.ExpireAt(ctx, key, evt.ExpiresAt)
	pipe.ZAdd(ctx, zEventPending, goredis.Z{Score: scoreFromTime(evt.CreatedAt), Member: evt.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("triggerbox/redis: create event: %w", err)
	}
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*event.Event, error) {
	fields, err := s.rdb.HGetAll(ctx, entityKey(prefixEvent, eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("triggerbox/redis: get event: %w", err)
	}
	if len(fields) == 0 {
		return nil, triggerbox.ErrEventNotFound
	}
	return fromEventHash(fields)
}

// acknowledgeScript performs the pending → acknowledged compare-and-swap and
// drops the event from the pending index in one atomic step.
// KEYS[1] = event hash key
// KEYS[2] = pending index
// ARGV[1] = event ID
// ARGV[2] = acknowledgment timestamp (RFC3339Nano)
// Returns 1 on success, 0 when the event is missing, -1 on a lost condition.
var acknowledgeScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 0 end
if status ~= 'pending' then return -1 end
redis.call('HSET', KEYS[1], 'status', 'acknowledged', 'acknowledged_at', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// AcknowledgeEvent transitions an event pending → acknowledged with at most
// one winner among concurrent callers.
func (s *Store) AcknowledgeEvent(ctx context.Context, eventID string, ackAt time.Time) (*event.Event, error) {
	key := entityKey(prefixEvent, eventID)
	res, err := acknowledgeScript.Run(ctx, s.rdb, []string{key, zEventPending},
		eventID, ackAt.UTC().Format(time.RFC3339Nano)).Int()
	if err != nil {
		return nil, fmt.Errorf("triggerbox/redis: acknowledge event: %w", err)
	}

	switch res {
	case 0:
		return nil, triggerbox.ErrEventNotFound
	case -1:
		return nil, triggerbox.ErrEventConflict
	}
	return s.GetEvent(ctx, eventID)
}

// DeleteEvent removes an event and its index entry. Missing events are a
// no-op.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, entityKey(prefixEvent, eventID))
	pipe.ZRem(ctx, zEventPending, eventID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("triggerbox/redis: delete event: %w", err)
	}
	return nil
}

// ListPending returns one page of pending events in ascending creation
// order. The page boundary is chosen on the index before attribute filters
// apply, so a page may come back shorter than the limit with NextKey still
// set.
func (s *Store) ListPending(ctx context.Context, opts event.ListOpts) (*event.Page, error) {
	limit := opts.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	// Resume is inclusive of the cursor's score: events created in the same
	// instant share one score, and the sorted set orders equal scores by
	// member, so entries at the boundary are skipped by event_id instead of
	// excluded by score.
	lo := "-inf"
	var afterID string
	var afterAt time.Time
	if raw, ok := opts.StartKey["created_at"]; ok {
		after, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("triggerbox/redis: bad page key: %w", err)
		}
		afterAt = after
		afterID = opts.StartKey["event_id"]
		lo = strconv.FormatFloat(scoreFromTime(after), 'f', -1, 64)
	}

	fetch := limit + 1
	page := &event.Page{}
	var lastID string
	var lastCreated time.Time
	taken := 0
	hasMore := false
	offset := 0

scan:
	for {
		ids, err := s.rdb.ZRangeByScore(ctx, zEventPending, &goredis.ZRangeBy{
			Min:    lo,
			Max:    "+inf",
			Offset: int64(offset),
			Count:  int64(fetch),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("triggerbox/redis: list pending: %w", err)
		}

		for _, eventID := range ids {
			fields, err := s.rdb.HGetAll(ctx, entityKey(prefixEvent, eventID)).Result()
			if err != nil {
				return nil, fmt.Errorf("triggerbox/redis: list pending get: %w", err)
			}
			if len(fields) == 0 {
				// TTL reaped the event but the index entry survived; prune it.
				s.rdb.ZRem(ctx, zEventPending, eventID)
				continue
			}
			evt, err := fromEventHash(fields)
			if err != nil {
				return nil, err
			}
			if afterID != "" && !evt.CreatedAt.After(afterAt) && evt.ID <= afterID {
				// Boundary entry already served by the previous page.
				continue
			}
			if taken == limit {
				hasMore = true
				break scan
			}
			taken++
			lastID = evt.ID
			lastCreated = evt.CreatedAt
			if !evt.MatchesFilter(opts) {
				continue
			}
			page.Events = append(page.Events, evt)
		}

		if len(ids) < fetch {
			break
		}
		offset += len(ids)
	}

	if hasMore && lastID != "" {
		page.NextKey = cursor.PageKey{
			"event_id":   lastID,
			"created_at": lastCreated.UTC().Format(time.RFC3339Nano),
		}
	}
	return page, nil
}
