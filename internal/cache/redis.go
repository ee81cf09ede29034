// Package cache provides the Redis-backed response cache for GitHub
// repository listings.
package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/shiplet/shiplet/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

func registerHooks(lc fx.Lifecycle, client *redis.Client, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				// Degraded mode: listing requests fall through to GitHub.
				log.Warn("redis unreachable, repo cache disabled", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
}

var Module = fx.Module("cache",
	fx.Provide(NewRedisClient),
	fx.Provide(NewRepoCache),
	fx.Invoke(registerHooks),
)
