package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const repoListingTTL = 60 * time.Second

// RepoCache caches GitHub repository listing pages per user token. Keys
// carry only a token digest, never the token itself.
type RepoCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

type RepoCacheParams struct {
	fx.In

	Client *redis.Client
	Log    *zap.Logger
}

func NewRepoCache(p RepoCacheParams) *RepoCache {
	return &RepoCache{
		client: p.Client,
		ttl:    repoListingTTL,
		log:    p.Log.Named("cache.repos"),
	}
}

func (c *RepoCache) Get(ctx context.Context, token string, page, perPage int) ([]byte, bool) {
	body, err := c.client.Get(ctx, c.key(token, page, perPage)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("repo cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return body, true
}

func (c *RepoCache) Set(ctx context.Context, token string, page, perPage int, body []byte) {
	if err := c.client.Set(ctx, c.key(token, page, perPage), body, c.ttl).Err(); err != nil {
		c.log.Warn("repo cache write failed", zap.Error(err))
	}
}

func (c *RepoCache) key(token string, page, perPage int) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("gh:repos:%s:%d:%d", hex.EncodeToString(sum[:8]), page, perPage)
}
