package entitlement

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quotagate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func newSnapshotCache(client *redis.Client, log *zap.Logger) *SnapshotCache {
	return NewSnapshotCache(client, log)
}

var Module = fx.Module("entitlement",
	fx.Provide(newRedisClient),
	fx.Provide(newSnapshotCache),
	fx.Provide(NewResolver),
)
