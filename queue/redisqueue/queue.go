// Package redisqueue provides a Redis-backed Queue implementation.
//
// Pending messages live in a sorted set scored by their visible-at time;
// message bodies and attempt counters live in per-message hashes. Claiming is
// a single Lua script, so no two consumers ever receive the same message
// inside one visibility window.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/triggerbox/triggerbox/queue"
)

// compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

const (
	zPending  = "tbx:z:msg:pending"
	msgPrefix = "tbx:msg:"
)

// DefaultVisibility is how long a claimed message stays invisible before the
// queue assumes its consumer died and redelivers it.
const DefaultVisibility = 30 * time.Second

// receiveScript atomically claims due messages: bumps their score past the
// visibility window, increments their attempt counter, and returns
// (id, body, attempt) triples.
// KEYS[1] = pending zset
// ARGV[1] = now (unix seconds, float)
// ARGV[2] = max messages
// ARGV[3] = visible-again score (now + visibility)
// ARGV[4] = message key prefix
var receiveScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local out = {}
for i, id in ipairs(ids) do
    local key = ARGV[4] .. id
    if redis.call('EXISTS', key) == 1 then
        redis.call('ZADD', KEYS[1], ARGV[3], id)
        local attempt = redis.call('HINCRBY', key, 'attempt', 1)
        local body = redis.call('HGET', key, 'body')
        out[#out+1] = id
        out[#out+1] = body
        out[#out+1] = attempt
    else
        redis.call('ZREM', KEYS[1], id)
    end
end
return out
`)

// Queue is a Redis-backed implementation of queue.Queue.
type Queue struct {
	rdb        goredis.UniversalClient
	visibility time.Duration
}

// New creates a Redis queue with the default visibility timeout.
func New(rdb goredis.UniversalClient) *Queue {
	return NewWithVisibility(rdb, DefaultVisibility)
}

// NewWithVisibility creates a Redis queue with a custom visibility timeout.
func NewWithVisibility(rdb goredis.UniversalClient, visibility time.Duration) *Queue {
	return &Queue{rdb: rdb, visibility: visibility}
}

// Enqueue stores the message body and makes it immediately visible.
func (q *Queue) Enqueue(ctx context.Context, msg *queue.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redisqueue: marshal message: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, msgPrefix+msg.ID, "body", body, "attempt", msg.Attempt)
	pipe.ZAdd(ctx, zPending, goredis.Z{
		Score:  float64(time.Now().UnixNano()) / 1e9,
		Member: msg.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisqueue: enqueue: %w", err)
	}
	return nil
}

// Receive claims up to max due messages.
func (q *Queue) Receive(ctx context.Context, max int) ([]*queue.Message, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	visibleAgain := now + q.visibility.Seconds()

	raw, err := receiveScript.Run(ctx, q.rdb,
		[]string{zPending},
		strconv.FormatFloat(now, 'f', -1, 64),
		max,
		strconv.FormatFloat(visibleAgain, 'f', -1, 64),
		msgPrefix,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("redisqueue: receive: %w", err)
	}

	msgs := make([]*queue.Message, 0, len(raw)/3)
	for i := 0; i+2 < len(raw); i += 3 {
		body, ok := raw[i+1].(string)
		if !ok {
			continue
		}

		var msg queue.Message
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return nil, fmt.Errorf("redisqueue: decode message %v: %w", raw[i], err)
		}

		attempt, convErr := toInt(raw[i+2])
		if convErr != nil {
			return nil, fmt.Errorf("redisqueue: decode attempt for %s: %w", msg.ID, convErr)
		}
		msg.Attempt = attempt

		msgs = append(msgs, &msg)
	}
	return msgs, nil
}

// Delete removes a message permanently.
func (q *Queue) Delete(ctx context.Context, msgID string) error {
	pipe := q.rdb.TxPipeline()
	zrem := pipe.ZRem(ctx, zPending, msgID)
	del := pipe.Del(ctx, msgPrefix+msgID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisqueue: delete: %w", err)
	}
	if zrem.Val() == 0 && del.Val() == 0 {
		return queue.ErrMessageNotFound
	}
	return nil
}

// Release makes a claimed message visible again after delay.
func (q *Queue) Release(ctx context.Context, msgID string, delay time.Duration) error {
	exists, err := q.rdb.Exists(ctx, msgPrefix+msgID).Result()
	if err != nil {
		return fmt.Errorf("redisqueue: release: %w", err)
	}
	if exists == 0 {
		return queue.ErrMessageNotFound
	}

	score := float64(time.Now().Add(delay).UnixNano()) / 1e9
	if err := q.rdb.ZAdd(ctx, zPending, goredis.Z{Score: score, Member: msgID}).Err(); err != nil {
		return fmt.Errorf("redisqueue: release: %w", err)
	}
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, err
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
