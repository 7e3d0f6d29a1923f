package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
)

const defaultPrefix = "org:active_chart:v1"

// RedisChartCache stores active charts as JSON strings keyed by department.
type RedisChartCache struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisChartCache(client *redis.Client, ttl time.Duration) *RedisChartCache {
	return &RedisChartCache{redis: client, prefix: defaultPrefix, ttl: ttl}
}

func (r *RedisChartCache) key(department string) string {
	return fmt.Sprintf("%s:{%s}", r.prefix, department)
}

func (r *RedisChartCache) Get(ctx context.Context, department string) (*chart.Chart, bool, error) {
	raw, err := r.redis.Get(ctx, r.key(department)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var c chart.Chart
	if err := json.Unmarshal(raw, &c); err != nil {
		// A stale payload from an older layout is treated as a miss.
		_ = r.redis.Del(ctx, r.key(department)).Err()
		return nil, false, nil
	}
	return &c, true, nil
}

func (r *RedisChartCache) Set(ctx context.Context, c *chart.Chart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, r.key(c.Department), raw, r.ttl).Err()
}

func (r *RedisChartCache) Invalidate(ctx context.Context, departments ...string) error {
	if len(departments) == 0 {
		return nil
	}
	keys := make([]string, 0, len(departments))
	for _, d := range departments {
		keys = append(keys, r.key(d))
	}
	return r.redis.Del(ctx, keys...).Err()
}

func (r *RedisChartCache) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}
