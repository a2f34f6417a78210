package redis

// Key prefixes for primary entity storage.
const (
	prefixEvent   = "tbx:evt:"
	prefixIdem    = "tbx:idem:"
	prefixWindow  = "tbx:rl:"
	prefixWebhook = "tbx:wh:"
	prefixDLQ     = "tbx:dlq:"
)

// Key prefixes for sorted set indexes.
const (
	zEventPending = "tbx:z:evt:pending"
	zWebhookOwner = "tbx:z:wh:owner:" // + owner
	zDLQAll       = "tbx:z:dlq:all"
	zDLQWebhook   = "tbx:z:dlq:wh:" // + webhook ID
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
