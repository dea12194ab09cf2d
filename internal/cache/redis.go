package cache

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/candidatemesh/searchcore/internal/observability"
)

// RedisCache is the real Cache implementation, grounded on the teacher's
// pkg/cache/redis_cache.go (go-redis client, Get/Set/Delete over a flat
// byte value) generalized with layer-aware keys, TTL jitter, and
// singleflight-based coalescing the teacher's RedisCache did not have.
type RedisCache struct {
	client       *redis.Client
	globalPrefix string
	group        singleflight.Group
	metrics      observability.MetricsClient
	logger       observability.Logger
}

// RedisConfig configures the underlying go-redis client.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// NewRedisCache dials Redis and returns a Cache keyed under globalPrefix.
func NewRedisCache(cfg RedisConfig, globalPrefix string, metrics observability.MetricsClient, logger observability.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
	return &RedisCache{client: client, globalPrefix: globalPrefix, metrics: metrics, logger: logger}
}

// NewRedisCacheFromClient wraps a pre-built go-redis client, used by tests
// that point at a miniredis instance.
func NewRedisCacheFromClient(client *redis.Client, globalPrefix string, metrics observability.MetricsClient, logger observability.Logger) *RedisCache {
	return &RedisCache{client: client, globalPrefix: globalPrefix, metrics: metrics, logger: logger}
}

func (c *RedisCache) recordOutcome(layer Layer, outcome string) {
	c.metrics.IncrementCounter("cache_operations_total", map[string]string{
		"layer":   layer.Name,
		"outcome": outcome,
	})
}

func (c *RedisCache) Get(ctx context.Context, layer Layer, tenantID, identifier string) ([]byte, bool) {
	key := Key(c.globalPrefix, layer, tenantID, identifier)
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", map[string]interface{}{"layer": layer.Name, "error": err.Error()})
		}
		c.recordOutcome(layer, "miss")
		return nil, false
	}
	c.recordOutcome(layer, "hit")
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, layer Layer, tenantID, identifier string, value []byte) {
	key := Key(c.globalPrefix, layer, tenantID, identifier)
	ttl := jitteredTTL(layer, rand.Float64)
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", map[string]interface{}{"layer": layer.Name, "error": err.Error()})
		c.recordOutcome(layer, "write_error")
		return
	}
	c.recordOutcome(layer, "set")
}

// GetOrCompute coalesces concurrent producers for the same key behind
// golang.org/x/sync/singleflight, matching spec §4.1's stampede-protection
// requirement: only one call to produce runs per key at a time, and every
// waiter receives that call's result (or error) without re-running it.
func (c *RedisCache) GetOrCompute(ctx context.Context, layer Layer, tenantID, identifier string, produce func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if val, ok := c.Get(ctx, layer, tenantID, identifier); ok {
		return val, nil
	}

	key := Key(c.globalPrefix, layer, tenantID, identifier)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check after winning the singleflight race: another goroutine
		// may have already populated the cache while we were waiting to
		// become the leader.
		if v, ok := c.Get(ctx, layer, tenantID, identifier); ok {
			return v, nil
		}
		produced, err := produce(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, layer, tenantID, identifier, produced)
		return produced, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

func (c *RedisCache) InvalidateTenantLayer(ctx context.Context, layer Layer, tenantID string, max int) (int, error) {
	if max <= 0 {
		max = 1000
	}
	pattern := c.globalPrefix + ":" + layer.Prefix + ":" + tenantID + ":*"
	var cursor uint64
	deleted := 0
	for {
		var keys []string
		var err error
		keys, cursor, err = c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			remaining := max - deleted
			if remaining < len(keys) {
				keys = keys[:remaining]
			}
			if n, err := c.client.Del(ctx, keys...).Result(); err == nil {
				deleted += int(n)
			}
		}
		if cursor == 0 || deleted >= max {
			break
		}
	}
	c.recordOutcome(layer, "invalidate")
	return deleted, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
