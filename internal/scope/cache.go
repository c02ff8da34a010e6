package scope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/store"
)

// Cache is the two-tier scope classification cache: Redis is the fast path
// (TTL-bound key expiry), Postgres is the fallback tier (rows with an
// explicit 24h TTL enforced on read, surviving a Redis flush/restart).
type Cache struct {
	redis    *redis.Client
	fallback store.ScopeCacheStore
	ttl      time.Duration
}

// NewCache builds a two-tier Cache. redisClient may be nil, in which case
// only the Postgres fallback tier is used.
func NewCache(redisClient *redis.Client, fallback store.ScopeCacheStore, ttl time.Duration) *Cache {
	return &Cache{redis: redisClient, fallback: fallback, ttl: ttl}
}

const redisKeyPrefix = "scope:classification:"

// Get returns a cached classification for fingerprint, or (zero, false) on a
// miss in both tiers or an expired fallback row.
func (c *Cache) Get(ctx context.Context, fingerprint string) (model.ScopeResult, bool) {
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, redisKeyPrefix+fingerprint).Result()
		switch {
		case err == nil:
			var result model.ScopeResult
			if jsonErr := json.Unmarshal([]byte(raw), &result); jsonErr == nil {
				return result, true
			}
			slog.WarnContext(ctx, "scope cache: corrupt redis entry, falling through", "error", err)
		case !errors.Is(err, redis.Nil):
			slog.WarnContext(ctx, "scope cache: redis get failed, falling through to postgres", "error", err)
		}
	}

	classification, err := c.fallback.Get(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "scope cache: postgres fallback get failed", "error", err)
		}
		return model.ScopeResult{}, false
	}
	if classification.Expired(24*time.Hour, time.Now()) {
		return model.ScopeResult{}, false
	}

	c.warmRedis(ctx, fingerprint, classification.Result)
	return classification.Result, true
}

// Put writes a classification into both tiers.
func (c *Cache) Put(ctx context.Context, fingerprint string, result model.ScopeResult) error {
	c.warmRedis(ctx, fingerprint, result)

	if err := c.fallback.Put(ctx, model.ScopeClassification{
		RequestHash: fingerprint,
		Result:      result,
		CreatedAt:   time.Now(),
	}); err != nil {
		return fmt.Errorf("scope cache: postgres fallback put: %w", err)
	}
	return nil
}

func (c *Cache) warmRedis(ctx context.Context, fingerprint string, result model.ScopeResult) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		slog.WarnContext(ctx, "scope cache: marshal for redis warm failed", "error", err)
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+fingerprint, data, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "scope cache: redis set failed", "error", err)
	}
}
