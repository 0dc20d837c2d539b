package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	id "electa/pkg/domain"
)

const (
	quotaKeyPrefix  = "electa:quota:"
	defaultQuotaTTL = 30 * time.Second
)

// setUsedScript only ever raises the stored count. The ledger is append-only,
// so a lower value is always a stale read racing a newer submit.
var setUsedScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "-1")
local used = tonumber(ARGV[1])
if used < current then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// RedisQuotaCache stores each member's used-nomination count per election.
// Entries are advisory and expire on their own; the ledger stays authoritative.
type RedisQuotaCache struct {
	client *redis.Client
	ttl    time.Duration
}

type Option func(*RedisQuotaCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RedisQuotaCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func NewRedisQuotaCache(client *redis.Client, opts ...Option) *RedisQuotaCache {
	c := &RedisQuotaCache{
		client: client,
		ttl:    defaultQuotaTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func quotaKey(electionID id.ElectionID, memberID id.MemberID) string {
	return quotaKeyPrefix + electionID.String() + ":" + memberID.String()
}

// GetUsed reports ok=false when no entry exists or the entry expired.
func (c *RedisQuotaCache) GetUsed(ctx context.Context, electionID id.ElectionID, memberID id.MemberID) (int, bool, error) {
	raw, err := c.client.Get(ctx, quotaKey(electionID, memberID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	used, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return used, true, nil
}

// SetUsed stores used unless a higher count is already cached.
func (c *RedisQuotaCache) SetUsed(ctx context.Context, electionID id.ElectionID, memberID id.MemberID, used int) error {
	keys := []string{quotaKey(electionID, memberID)}
	return setUsedScript.Run(ctx, c.client, keys, used, c.ttl.Milliseconds()).Err()
}
