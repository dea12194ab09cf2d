package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candidatemesh/searchcore/internal/observability"
)

func setupMiniRedis(t *testing.T) *RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCacheFromClient(client, "scm", observability.NewNoopMetrics(), observability.NewNoopLogger())
}

func TestRedisCache_SetGet(t *testing.T) {
	c := setupMiniRedis(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, SearchResults, "tenant-a", "q1")
	assert.False(t, ok, "expected miss before any write")

	c.Set(ctx, SearchResults, "tenant-a", "q1", []byte("payload"))

	val, ok := c.Get(ctx, SearchResults, "tenant-a", "q1")
	require.True(t, ok)
	assert.Equal(t, "payload", string(val))
}

func TestRedisCache_TenantIsolation(t *testing.T) {
	c := setupMiniRedis(t)
	ctx := context.Background()

	c.Set(ctx, SearchResults, "tenant-a", "q1", []byte("a"))
	c.Set(ctx, SearchResults, "tenant-b", "q1", []byte("b"))

	valA, _ := c.Get(ctx, SearchResults, "tenant-a", "q1")
	valB, _ := c.Get(ctx, SearchResults, "tenant-b", "q1")
	assert.Equal(t, "a", string(valA))
	assert.Equal(t, "b", string(valB))
}

func TestRedisCache_GetOrCompute_Coalesces(t *testing.T) {
	c := setupMiniRedis(t)
	ctx := context.Background()

	var calls int64
	produce := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return []byte("computed"), nil
	}

	results := make(chan []byte, 5)
	for i := 0; i < 5; i++ {
		go func() {
			val, err := c.GetOrCompute(ctx, RerankScores, "tenant-a", "desc-hash", produce)
			require.NoError(t, err)
			results <- val
		}()
	}

	for i := 0; i < 5; i++ {
		val := <-results
		assert.Equal(t, "computed", string(val))
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "producer should run exactly once for concurrent callers")
}

func TestRedisCache_InvalidateTenantLayer(t *testing.T) {
	c := setupMiniRedis(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		c.Set(ctx, SearchResults, "tenant-a", string(rune('a'+i)), []byte("x"))
	}
	c.Set(ctx, SearchResults, "tenant-b", "other", []byte("y"))

	deleted, err := c.InvalidateTenantLayer(ctx, SearchResults, "tenant-a", 1000)
	require.NoError(t, err)
	assert.Equal(t, 10, deleted)

	_, ok := c.Get(ctx, SearchResults, "tenant-a", "a")
	assert.False(t, ok)

	val, ok := c.Get(ctx, SearchResults, "tenant-b", "other")
	require.True(t, ok)
	assert.Equal(t, "y", string(val))
}

func TestJitteredTTL(t *testing.T) {
	d := jitteredTTL(SearchResults, func() float64 { return 1.0 })
	assert.Equal(t, time.Duration(float64(SearchResults.BaseTTL)*1.2), d)

	d = jitteredTTL(SearchResults, func() float64 { return 0.0 })
	assert.Equal(t, time.Duration(float64(SearchResults.BaseTTL)*0.8), d)

	// SpecialtyLookup never jitters regardless of the random draw.
	d = jitteredTTL(SpecialtyLookup, func() float64 { return 1.0 })
	assert.Equal(t, SpecialtyLookup.BaseTTL, d)
}
