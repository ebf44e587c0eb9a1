package entitlement

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	snapshotKeyPrefix  = "quotagate:entitlement:"
	defaultSnapshotTTL = 30 * time.Second
)

// SnapshotCache stores advisory entitlement snapshots in redis. A nil cache
// or nil client disables caching; lookups then always hit the stores.
type SnapshotCache struct {
	client *redis.Client
	log    *zap.Logger
	ttl    time.Duration
}

func NewSnapshotCache(client *redis.Client, log *zap.Logger) *SnapshotCache {
	if client == nil {
		return nil
	}
	return &SnapshotCache{
		client: client,
		log:    log.Named("entitlement.cache"),
		ttl:    defaultSnapshotTTL,
	}
}

func (c *SnapshotCache) Get(ctx context.Context, userID string) (Snapshot, bool) {
	if c == nil || c.client == nil {
		return Snapshot{}, false
	}

	raw, err := c.client.Get(ctx, snapshotKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("snapshot cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
		return Snapshot{}, false
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.log.Warn("snapshot cache decode failed", zap.String("user_id", userID), zap.Error(err))
		return Snapshot{}, false
	}
	return snapshot, true
}

func (c *SnapshotCache) Set(ctx context.Context, snapshot Snapshot) {
	if c == nil || c.client == nil || snapshot.UserID == "" {
		return
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, snapshotKey(snapshot.UserID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("snapshot cache write failed", zap.String("user_id", snapshot.UserID), zap.Error(err))
	}
}

func (c *SnapshotCache) Invalidate(ctx context.Context, userID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, snapshotKey(userID)).Err(); err != nil {
		c.log.Warn("snapshot cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func snapshotKey(userID string) string {
	return snapshotKeyPrefix + strings.TrimSpace(userID)
}
