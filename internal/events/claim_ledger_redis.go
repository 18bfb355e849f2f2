package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	claimKeyPrefix = "claim:"
	claimedValue   = "claimed"
	completedValue = "completed"
	// completedRetention bounds how long redelivered duplicates are recognized.
	completedRetention = 7 * 24 * time.Hour
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimLedger claims with SET NX; the key TTL is the lease.
type RedisClaimLedger struct {
	client redis.Cmdable
	lease  time.Duration
}

func NewRedisClaimLedger(client redis.Cmdable, lease time.Duration) *RedisClaimLedger {
	if client == nil {
		panic("events: redis client cannot be nil")
	}
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &RedisClaimLedger{client: client, lease: lease}
}

func (l *RedisClaimLedger) Claim(ctx context.Context, tenantID, eventID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, claimKey(tenantID, eventID), claimedValue, l.lease).Result()
	if err != nil {
		return false, fmt.Errorf("events: claim %s: %w", eventID, err)
	}
	return ok, nil
}

func (l *RedisClaimLedger) Complete(ctx context.Context, tenantID, eventID string) error {
	if err := l.client.Set(ctx, claimKey(tenantID, eventID), completedValue, completedRetention).Err(); err != nil {
		return fmt.Errorf("events: complete %s: %w", eventID, err)
	}
	return nil
}

func (l *RedisClaimLedger) Release(ctx context.Context, tenantID, eventID string) error {
	if err := releaseScript.Run(ctx, l.client, []string{claimKey(tenantID, eventID)}, claimedValue).Err(); err != nil {
		return fmt.Errorf("events: release %s: %w", eventID, err)
	}
	return nil
}

func claimKey(tenantID, eventID string) string {
	return claimKeyPrefix + tenantID + ":" + eventID
}
