package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/candidatemesh/searchcore/internal/observability"
)

// LayeredCache adds an in-process L1 accelerator in front of an L2 Cache,
// grounded on the teacher's internal/cache/multilevel_cache.go
// MultiLevelCache (L1 hashicorp/golang-lru/v2 + L2 Cache interface). Unlike
// the teacher's version, L1 entries are not TTL-aware: they are bounded
// purely by LRU eviction, since the L2 layer is the source of truth for
// expiry and L1 merely shields it from repeat reads within one process's
// lifetime.
type LayeredCache struct {
	l1      *lru.Cache[string, []byte]
	l2      Cache
	prefix  string
	metrics observability.MetricsClient
}

// NewLayeredCache wraps l2 with an L1 of the given capacity. A capacity of
// 0 disables L1 and LayeredCache degrades to a pass-through over l2.
func NewLayeredCache(l2 Cache, globalPrefix string, l1Capacity int, metrics observability.MetricsClient) (*LayeredCache, error) {
	lc := &LayeredCache{l2: l2, prefix: globalPrefix, metrics: metrics}
	if l1Capacity > 0 {
		l1, err := lru.New[string, []byte](l1Capacity)
		if err != nil {
			return nil, err
		}
		lc.l1 = l1
	}
	return lc, nil
}

func (c *LayeredCache) Get(ctx context.Context, layer Layer, tenantID, identifier string) ([]byte, bool) {
	if c.l1 != nil {
		key := Key(c.prefix, layer, tenantID, identifier)
		if val, ok := c.l1.Get(key); ok {
			c.metrics.IncrementCounter("cache_l1_operations_total", map[string]string{"layer": layer.Name, "outcome": "hit"})
			return val, true
		}
		c.metrics.IncrementCounter("cache_l1_operations_total", map[string]string{"layer": layer.Name, "outcome": "miss"})
	}
	val, ok := c.l2.Get(ctx, layer, tenantID, identifier)
	if ok && c.l1 != nil {
		c.l1.Add(Key(c.prefix, layer, tenantID, identifier), val)
	}
	return val, ok
}

func (c *LayeredCache) Set(ctx context.Context, layer Layer, tenantID, identifier string, value []byte) {
	if c.l1 != nil {
		c.l1.Add(Key(c.prefix, layer, tenantID, identifier), value)
	}
	c.l2.Set(ctx, layer, tenantID, identifier, value)
}

func (c *LayeredCache) GetOrCompute(ctx context.Context, layer Layer, tenantID, identifier string, produce func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if val, ok := c.Get(ctx, layer, tenantID, identifier); ok {
		return val, nil
	}
	val, err := c.l2.GetOrCompute(ctx, layer, tenantID, identifier, produce)
	if err != nil {
		return nil, err
	}
	if c.l1 != nil {
		c.l1.Add(Key(c.prefix, layer, tenantID, identifier), val)
	}
	return val, nil
}

func (c *LayeredCache) InvalidateTenantLayer(ctx context.Context, layer Layer, tenantID string, max int) (int, error) {
	if c.l1 != nil {
		// L1 has no pattern-scan; a tenant invalidation purges the whole L1
		// rather than attempt partial eviction, trading some extra L2 reads
		// for correctness. Invalidation is rare relative to reads.
		c.l1.Purge()
	}
	return c.l2.InvalidateTenantLayer(ctx, layer, tenantID, max)
}

func (c *LayeredCache) Close() error {
	return c.l2.Close()
}
