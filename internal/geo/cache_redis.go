package geo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"fleetroute/internal/solver"
)

// RedisCache is a MatrixCache backed by Redis, for sharing matrices between
// API replicas. Values are JSON and expire via Redis TTL.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) (solver.Matrix, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return solver.Matrix{}, false, nil
	}
	if err != nil {
		return solver.Matrix{}, false, err
	}
	var m solver.Matrix
	if err := json.Unmarshal(data, &m); err != nil {
		return solver.Matrix{}, false, err
	}
	return m, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, m solver.Matrix, ttl time.Duration) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}
