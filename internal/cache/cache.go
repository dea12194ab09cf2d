// Package cache implements the multi-layer, tenant-isolated cache from
// spec §4.1 (C1). It is grounded on the teacher's pkg/cache.Cache interface
// and pkg/cache/redis_cache.go RedisCache implementation, generalized from
// a flat key space to named layers with per-layer TTL and jitter policy,
// plus request coalescing the teacher did not have.
package cache

import (
	"context"
	"time"
)

// Layer names the four cache layers from spec §4.1.
type Layer struct {
	Name     string
	Prefix   string
	BaseTTL  time.Duration
	UseJitter bool
}

var (
	SearchResults = Layer{Name: "search_results", Prefix: "sr", BaseTTL: 600 * time.Second, UseJitter: true}
	RerankScores  = Layer{Name: "rerank_scores", Prefix: "rs", BaseTTL: 21600 * time.Second, UseJitter: true}
	SpecialtyLookup = Layer{Name: "specialty_lookup", Prefix: "sl", BaseTTL: 86400 * time.Second, UseJitter: false}
	Embedding     = Layer{Name: "embedding", Prefix: "emb", BaseTTL: 3600 * time.Second, UseJitter: true}
)

// Cache is the interface every component depends on. Failures never
// propagate to callers: per spec §4.1, a read error is indistinguishable
// from a miss, and a write error is dropped after being logged/counted.
type Cache interface {
	// Get returns the cached bytes for key and true, or nil and false on a
	// miss or on any underlying failure.
	Get(ctx context.Context, layer Layer, tenantID, identifier string) ([]byte, bool)

	// Set stores value under key with the layer's jittered TTL. Errors are
	// swallowed; Set never blocks the caller's success path.
	Set(ctx context.Context, layer Layer, tenantID, identifier string, value []byte)

	// GetOrCompute coalesces concurrent callers for the same key (spec
	// §4.1 stampede protection): only one producer runs at a time per key,
	// and every concurrent caller receives its result.
	GetOrCompute(ctx context.Context, layer Layer, tenantID, identifier string, produce func(ctx context.Context) ([]byte, error)) ([]byte, error)

	// InvalidateTenantLayer deletes every key under a tenant's slice of a
	// layer, scanning cursor-style and stopping after max keys are visited.
	InvalidateTenantLayer(ctx context.Context, layer Layer, tenantID string, max int) (int, error)

	// Close releases any underlying connections.
	Close() error
}

// Key builds the tenant-scoped key shape from spec §4.1:
// "<globalPrefix>:<layerPrefix>:<tenantId>:<identifier>".
func Key(globalPrefix string, layer Layer, tenantID, identifier string) string {
	return globalPrefix + ":" + layer.Prefix + ":" + tenantID + ":" + identifier
}

// jitteredTTL returns baseTTL * (1 + U(-0.2, +0.2)) when the layer uses
// jitter, or baseTTL unchanged otherwise (spec §4.1: SpecialtyLookup is
// long-lived static reference data and is deliberately not jittered).
func jitteredTTL(layer Layer, rnd func() float64) time.Duration {
	if !layer.UseJitter {
		return layer.BaseTTL
	}
	offset := (rnd()*2 - 1) * 0.2
	return time.Duration(float64(layer.BaseTTL) * (1 + offset))
}
