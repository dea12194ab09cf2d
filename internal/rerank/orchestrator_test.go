package rerank

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candidatemesh/searchcore/internal/cache"
	"github.com/candidatemesh/searchcore/internal/observability"
)

func newTestRedisCache(t *testing.T) cache.Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.NewRedisCacheFromClient(client, "scm", observability.NewNoopMetrics(), observability.NewNoopLogger())
}

type stubProvider struct {
	name string
	resp *ProviderResponse
	err  error
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Rerank(ctx context.Context, req Request, remainingBudgetMs int64) (*ProviderResponse, error) {
	return s.resp, s.err
}

func score(f float64) *float64 { return &f }

func fiveCandidates() []CandidateInput {
	scores := []float64{0.9, 0.8, 0.7, 0.6, 0.5}
	out := make([]CandidateInput, 5)
	for i := range out {
		id := []string{"c1", "c2", "c3", "c4", "c5"}[i]
		out[i] = CandidateInput{CandidateID: id, Features: &CandidateFeatures{VectorScore: score(scores[i])}}
	}
	return out
}

func newTestOrchestrator(primary, fallback Provider, c cache.Cache) *Orchestrator {
	return New(primary, fallback, c, DefaultLimits(), true, observability.NewNoopLogger(), observability.NewNoopMetrics())
}

func TestOrchestrator_Scenario1_PrimarySucceeds(t *testing.T) {
	primary := &stubProvider{name: "primary", resp: &ProviderResponse{Candidates: []Result{
		{CandidateID: "c3", Rank: 1, Score: 0.97},
		{CandidateID: "c1", Rank: 2, Score: 0.92},
		{CandidateID: "c2", Rank: 3, Score: 0.80},
		{CandidateID: "c5", Rank: 4, Score: 0.55},
		{CandidateID: "c4", Rank: 5, Score: 0.40},
	}}}
	o := newTestOrchestrator(primary, nil, cache.NewNoopCache())

	req := Request{JobDescription: "Senior Go backend, distributed systems", Candidates: fiveCandidates(), Limit: 5, IncludeReasons: true}
	resp, err := o.Rerank(context.Background(), req, "req-1", time.Now().Add(time.Second))
	require.NoError(t, err)

	require.Len(t, resp.Results, 5)
	assert.Equal(t, "c3", resp.Results[0].CandidateID)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.False(t, resp.UsedFallback)
	assert.Equal(t, SourcePrimary, resp.Provider)
}

func TestOrchestrator_Scenario3_BothDownPassthrough(t *testing.T) {
	primary := &stubProvider{name: "primary", resp: nil}
	fallback := &stubProvider{name: "fallback", resp: nil}
	o := newTestOrchestrator(primary, fallback, cache.NewNoopCache())

	req := Request{JobDescription: "some JD", Candidates: fiveCandidates(), Limit: 5}
	resp, err := o.Rerank(context.Background(), req, "req-3", time.Now().Add(time.Second))
	require.NoError(t, err)

	require.Len(t, resp.Results, 5)
	assert.Equal(t, "c1", resp.Results[0].CandidateID, "passthrough orders by descending initial score")
	assert.Equal(t, "c5", resp.Results[4].CandidateID)
	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
	}
	assert.True(t, resp.UsedFallback)
	assert.Equal(t, SourcePassthrough, resp.Provider)
}

func TestOrchestrator_Scenario4_CacheHit(t *testing.T) {
	primary := &stubProvider{name: "primary", resp: &ProviderResponse{Candidates: []Result{
		{CandidateID: "c1", Rank: 1, Score: 0.9},
		{CandidateID: "c2", Rank: 2, Score: 0.8},
	}}}
	c := newTestRedisCache(t)
	o := newTestOrchestrator(primary, nil, c)

	req := Request{TenantID: "tenant-a", JobDescription: "JD text", Candidates: fiveCandidates()[:2], Limit: 2}

	first, err := o.Rerank(context.Background(), req, "req-4a", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := o.Rerank(context.Background(), req, "req-4b", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, SourceCache, second.Provider)
	assert.Equal(t, first.Results, second.Results)
}

func TestOrchestrator_Scenario5_FabricatedIDRejected(t *testing.T) {
	primary := &stubProvider{name: "primary", resp: &ProviderResponse{Candidates: []Result{
		{CandidateID: "c999", Rank: 1, Score: 0.99},
		{CandidateID: "c1", Rank: 2, Score: 0.9},
	}}}
	o := newTestOrchestrator(primary, nil, cache.NewNoopCache())

	req := Request{JobDescription: "JD", Candidates: fiveCandidates(), Limit: 5}
	resp, err := o.Rerank(context.Background(), req, "req-5", time.Now().Add(time.Second))
	require.NoError(t, err)

	for _, r := range resp.Results {
		assert.NotEqual(t, "c999", r.CandidateID)
	}
	ranks := make([]int, len(resp.Results))
	for i, r := range resp.Results {
		ranks[i] = r.Rank
	}
	for i, r := range ranks {
		assert.Equal(t, i+1, r)
	}
}

func TestOrchestrator_GracefulDegradationDisabled_ReturnsVendorUnavailable(t *testing.T) {
	primary := &stubProvider{name: "primary", resp: nil}
	o := New(primary, nil, cache.NewNoopCache(), DefaultLimits(), false, observability.NewNoopLogger(), observability.NewNoopMetrics())

	req := Request{JobDescription: "JD", Candidates: fiveCandidates(), Limit: 5}
	_, err := o.Rerank(context.Background(), req, "req-7", time.Now().Add(time.Second))
	assert.ErrorIs(t, err, ErrVendorUnavailable)
}

func TestOrchestrator_BelowMinCandidatesSkipsProvider(t *testing.T) {
	called := false
	primary := &stubProvider{name: "primary", resp: &ProviderResponse{}}
	_ = called
	o := New(primary, nil, cache.NewNoopCache(), Limits{MaxCandidates: 50, MinCandidates: 3, DefaultLimit: 20, ReasonLimit: 3, Prompt: DefaultPromptLimits()}, true, observability.NewNoopLogger(), observability.NewNoopMetrics())

	req := Request{JobDescription: "JD", Candidates: fiveCandidates()[:2], Limit: 5}
	resp, err := o.Rerank(context.Background(), req, "req-min", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, SourcePassthrough, resp.Provider)
}
