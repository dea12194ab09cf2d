package cache

import "context"

// NoopCache disables caching entirely: every Get is a miss, every Set is
// discarded, and GetOrCompute always invokes the producer. Used when the
// cache layer is intentionally turned off (RERANK_CACHE_DISABLE=true) or
// in tests that do not care about caching behavior.
type NoopCache struct{}

// NewNoopCache returns a Cache that never caches anything.
func NewNoopCache() *NoopCache { return &NoopCache{} }

func (NoopCache) Get(context.Context, Layer, string, string) ([]byte, bool) { return nil, false }
func (NoopCache) Set(context.Context, Layer, string, string, []byte)       {}

func (NoopCache) GetOrCompute(ctx context.Context, _ Layer, _ string, _ string, produce func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	return produce(ctx)
}

func (NoopCache) InvalidateTenantLayer(context.Context, Layer, string, int) (int, error) {
	return 0, nil
}

func (NoopCache) Close() error { return nil }
