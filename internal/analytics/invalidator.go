// Package analytics invalidates cached per-tenant dashboard aggregates when
// new decisions land.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

const cacheKeyPrefix = "analytics:"

// Invalidator deletes every cached aggregate of a tenant.
type Invalidator struct {
	client redis.Cmdable
	logger *logging.Logger
}

func NewInvalidator(client redis.Cmdable, logger *logging.Logger) *Invalidator {
	if client == nil {
		panic("analytics: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Invalidator{client: client, logger: logger}
}

// CacheKey builds the key under which an aggregate is cached.
func CacheKey(tenantID, name string) string {
	return cacheKeyPrefix + tenantID + ":" + name
}

// Invalidate removes all cache entries of tenantID and returns how many were deleted.
func (i *Invalidator) Invalidate(ctx context.Context, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("analytics: tenant id required")
	}
	var cursor uint64
	deleted := 0
	pattern := cacheKeyPrefix + tenantID + ":*"
	for {
		keys, next, err := i.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("analytics: scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := i.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("analytics: delete cache keys: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// Handle consumes DecisionRecordedV1 outbox entries.
func (i *Invalidator) Handle(ctx context.Context, entry events.OutboxEntry) error {
	var evt events.DecisionRecordedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		return fmt.Errorf("analytics: decode %s: %w", entry.Type, err)
	}
	tenantID := evt.TenantID
	if tenantID == "" {
		tenantID = entry.TenantID
	}
	n, err := i.Invalidate(ctx, tenantID)
	if err != nil {
		return err
	}
	i.logger.Debug("analytics cache invalidated", "tenant_id", tenantID, "keys", n, "decision", evt.Decision)
	return nil
}
