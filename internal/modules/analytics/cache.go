// README: Redis cache for analytics snapshots.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const reportKey = "dispatch:analytics:scheduling"

// Cache stores the latest report. Load returns (nil, nil) on a miss.
type Cache interface {
	Load(ctx context.Context) (*Report, error)
	Save(ctx context.Context, r *Report) error
}

type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{redis: rdb, ttl: ttl}
}

func (c *RedisCache) Load(ctx context.Context) (*Report, error) {
	raw, err := c.redis.Get(ctx, reportKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode cached report: %w", err)
	}
	return &r, nil
}

func (c *RedisCache) Save(ctx context.Context, r *Report) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, reportKey, raw, c.ttl).Err()
}
