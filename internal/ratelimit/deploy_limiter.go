package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyDeployWallet = "deploy:wallet:%s"

// DeployLimiter throttles deployment submissions per wallet. The registry
// does not prevent duplicate pending records for a double-submitting
// wallet; the limiter narrows that window at the HTTP edge.
type DeployLimiter struct {
	bucket *TokenBucket
	log    *zap.Logger

	rate  float64
	burst int
}

type DeployLimiterParams struct {
	fx.In

	Client *redis.Client
	Log    *zap.Logger
}

func NewDeployLimiter(p DeployLimiterParams) *DeployLimiter {
	return &DeployLimiter{
		bucket: NewTokenBucket(p.Client),
		log:    p.Log.Named("ratelimit.deploy"),
		rate:   0.5,
		burst:  3,
	}
}

// Allow reports whether the wallet may submit another deployment right
// now. Redis failures fail open; throttling is protective, not correct.
func (l *DeployLimiter) Allow(ctx context.Context, address string) bool {
	if l == nil || l.bucket == nil {
		return true
	}
	key := fmt.Sprintf(keyDeployWallet, strings.TrimSpace(address))
	allowed, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("deploy rate limit check failed", zap.Error(err))
		return true
	}
	return allowed
}

var Module = fx.Module("rate.limit",
	fx.Provide(NewDeployLimiter),
)
