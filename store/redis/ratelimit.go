package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/triggerbox/triggerbox/ratelimit"
)

func windowKey(principal string, windowStart int64) string {
	return prefixWindow + principal + ":" + strconv.FormatInt(windowStart, 10)
}

// GetWindowCount returns the request count for a principal's window.
func (s *Store) GetWindowCount(ctx context.Context, principal string, windowStart int64) (int, error) {
	count, err := s.rdb.Get(ctx, windowKey(principal, windowStart)).Int()
	if err != nil {
		if isRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("triggerbox/redis: get window count: %w", err)
	}
	return count, nil
}

// incrementScript adds one to the window counter only while it is below the
// limit, creating the key with a TTL on first use.
// KEYS[1] = window counter key
// ARGV[1] = limit
// ARGV[2] = ttl in seconds
// Returns the new count, or -1 on a lost condition.
var incrementScript = goredis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then return -1 end
count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return count
`)

// IncrementWindow atomically consumes one unit of the window's budget.
func (s *Store) IncrementWindow(ctx context.Context, principal string, windowStart int64, limit int, ttl time.Duration) error {
	ttlSec := int64(ttl / time.Second)
	if ttlSec < 1 {
		ttlSec = 1
	}

	res, err := incrementScript.Run(ctx, s.rdb,
		[]string{windowKey(principal, windowStart)}, limit, ttlSec).Int()
	if err != nil {
		return fmt.Errorf("triggerbox/redis: increment window: %w", err)
	}
	if res == -1 {
		return ratelimit.ErrWindowFull
	}
	return nil
}
