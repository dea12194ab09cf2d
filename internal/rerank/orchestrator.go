package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/candidatemesh/searchcore/internal/cache"
	"github.com/candidatemesh/searchcore/internal/observability"
)

// Limits are the orchestrator's hard caps from spec §4.5.
type Limits struct {
	MaxCandidates  int
	MinCandidates  int
	DefaultLimit   int
	ReasonLimit    int
	Prompt         PromptLimits
}

// DefaultLimits matches spec §4.5's defaults.
func DefaultLimits() Limits {
	return Limits{MaxCandidates: 50, MinCandidates: 1, DefaultLimit: 20, ReasonLimit: 3, Prompt: DefaultPromptLimits()}
}

// ErrVendorUnavailable is returned only when graceful degradation is
// disabled and every configured provider has failed (spec §4.5, §7).
var ErrVendorUnavailable = fmt.Errorf("vendor_unavailable")

// Timings records the per-stage latency breakdown from spec §4.5 Exit.
type Timings struct {
	TotalMs    int64
	PromptMs   int64
	ProviderMs int64
	CacheMs    int64
}

// Provider identifies which stage ultimately produced the response.
type ProviderSource string

const (
	SourcePrimary     ProviderSource = "primary"
	SourceFallback    ProviderSource = "fallback"
	SourcePassthrough ProviderSource = "passthrough"
	SourceCache       ProviderSource = "cache"
)

// Response is the orchestrator's exit value, per spec §4.5 stage (h)/Exit
// and §6's response JSON.
type Response struct {
	Results      []Result
	CacheHit     bool
	UsedFallback bool
	RequestID    string
	Timings      Timings
	Provider     ProviderSource
	DocsetHash   string
	JDHash       string
	Degraded     bool
}

// Orchestrator is the Rerank Orchestrator (C5).
type Orchestrator struct {
	primary  Provider
	fallback Provider
	cache    cache.Cache
	limits   Limits
	allowGracefulDegradation bool
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// New constructs an Orchestrator. fallback may be nil if no secondary
// provider is configured.
func New(primary, fallback Provider, c cache.Cache, limits Limits, allowGracefulDegradation bool, logger observability.Logger, metrics observability.MetricsClient) *Orchestrator {
	return &Orchestrator{
		primary:  primary,
		fallback: fallback,
		cache:    c,
		limits:   limits,
		allowGracefulDegradation: allowGracefulDegradation,
		logger:  logger,
		metrics: metrics,
	}
}

// Rerank runs the full state machine from spec §4.5 under deadline.
func (o *Orchestrator) Rerank(ctx context.Context, req Request, requestID string, deadline time.Time) (Response, error) {
	start := time.Now()

	candidates := req.Candidates
	if len(candidates) > o.limits.MaxCandidates {
		o.logger.Warn("rerank: candidate set truncated to maxCandidates", map[string]interface{}{"requestId": requestID, "count": len(candidates), "max": o.limits.MaxCandidates})
		candidates = candidates[:o.limits.MaxCandidates]
	}
	req.Candidates = candidates

	limit := req.Limit
	if limit <= 0 {
		limit = o.limits.DefaultLimit
	}

	// (a) ComputeDescriptor
	jdHash, docsetHash := Descriptor(req.JobDescription, candidates)
	if req.JDHash != "" {
		jdHash = req.JDHash
	}
	if req.DocsetHash != "" {
		docsetHash = req.DocsetHash
	}

	resp := Response{RequestID: requestID, DocsetHash: docsetHash, JDHash: jdHash}

	// (b) CacheLookup
	if !req.DisableCache && o.cache != nil {
		t := time.Now()
		identifier := jdHash + ":" + docsetHash
		if raw, hit := o.cache.Get(ctx, cache.RerankScores, tenantFromRequest(req), identifier); hit {
			var results []Result
			if err := json.Unmarshal(raw, &results); err == nil {
				resp.Results = results
				resp.CacheHit = true
				resp.Provider = SourceCache
				resp.Timings.CacheMs = time.Since(t).Milliseconds()
				resp.Timings.TotalMs = time.Since(start).Milliseconds()
				return resp, nil
			}
		}
		resp.Timings.CacheMs = time.Since(t).Milliseconds()
	}

	// Below minCandidates: passthrough without calling any LLM.
	if len(candidates) < o.limits.MinCandidates {
		return o.finish(ctx, resp, req, candidates, limit, nil, false, start)
	}

	// (c) BuildPrompt
	tPrompt := time.Now()
	_ = BuildPrompt(req.JobDescription, candidates, o.limits.Prompt)
	resp.Timings.PromptMs = time.Since(tPrompt).Milliseconds()

	// (d)/(e) Primary then fallback, strictly sequential (spec §5: "never
	// in parallel").
	tProvider := time.Now()
	remaining := remainingBudgetMs(deadline)
	var providerResp *ProviderResponse
	var usedFallback bool

	if remaining > 0 && o.primary != nil {
		out, err := o.primary.Rerank(ctx, req, remaining)
		if err == nil && out != nil {
			providerResp = out
		}
	}

	if providerResp == nil && o.fallback != nil {
		remaining = remainingBudgetMs(deadline)
		if remaining > 0 {
			out, err := o.fallback.Rerank(ctx, req, remaining)
			if err == nil && out != nil {
				providerResp = out
				usedFallback = true
			}
		}
	}
	resp.Timings.ProviderMs = time.Since(tProvider).Milliseconds()

	if providerResp == nil && !o.allowGracefulDegradation {
		return Response{}, ErrVendorUnavailable
	}

	return o.finish(ctx, resp, req, candidates, limit, providerResp, usedFallback, start)
}

// finish implements stages (f) Passthrough, (g) Merge, (h) CacheWrite, and
// Exit.
func (o *Orchestrator) finish(ctx context.Context, resp Response, req Request, candidates []CandidateInput, limit int, providerResp *ProviderResponse, usedFallback bool, start time.Time) (Response, error) {
	passthroughOrder := passthroughOrder(candidates)

	var merged []Result
	isPassthrough := providerResp == nil

	if isPassthrough {
		merged = make([]Result, 0, len(passthroughOrder))
		for _, c := range passthroughOrder {
			merged = append(merged, Result{CandidateID: c.CandidateID, Score: c.initialScore()})
		}
		resp.Provider = SourcePassthrough
		resp.UsedFallback = true
	} else {
		merged = mergeWithPassthroughFallback(providerResp.Candidates, candidates, passthroughOrder, o.logger)
		if usedFallback {
			resp.Provider = SourceFallback
			resp.UsedFallback = true
		} else {
			resp.Provider = SourcePrimary
		}
	}

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	for i := range merged {
		merged[i].Rank = i + 1
		if req.IncludeReasons {
			merged[i].Reasons = synthesizeReasons(merged[i], candidates, o.limits.ReasonLimit)
		} else {
			merged[i].Reasons = nil
		}
	}

	resp.Results = merged

	// (h) CacheWrite unless passthrough or caller disabled cache.
	if !isPassthrough && !req.DisableCache && o.cache != nil {
		if encoded, err := json.Marshal(merged); err == nil {
			o.cache.Set(ctx, cache.RerankScores, tenantFromRequest(req), resp.JDHash+":"+resp.DocsetHash, encoded)
		}
	}

	resp.Timings.TotalMs = time.Since(start).Milliseconds()
	return resp, nil
}

// passthroughOrder orders candidates by initial score descending (spec
// §4.5 stage (f): vectorScore → textScore → 0).
func passthroughOrder(candidates []CandidateInput) []CandidateInput {
	out := make([]CandidateInput, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].initialScore() > out[j].initialScore()
	})
	return out
}

// mergeWithPassthroughFallback implements spec §4.5 stage (g) and scenario
// 5 (fabricated-ID rejection): only candidateIds present in the input set
// are kept from the provider's response; any input candidate the provider
// omitted or fabricated a replacement for is backfilled from the
// passthrough ordering, in passthrough order, until the slate is full.
func mergeWithPassthroughFallback(providerResults []Result, input []CandidateInput, passthroughOrder []CandidateInput, logger observability.Logger) []Result {
	validIDs := make(map[string]bool, len(input))
	for _, c := range input {
		validIDs[c.CandidateID] = true
	}

	seen := make(map[string]bool, len(providerResults))
	merged := make([]Result, 0, len(input))
	for _, r := range providerResults {
		if !validIDs[r.CandidateID] {
			logger.Warn("rerank: fabricated candidateId rejected", map[string]interface{}{"candidateId": r.CandidateID})
			continue
		}
		if seen[r.CandidateID] {
			continue
		}
		seen[r.CandidateID] = true
		merged = append(merged, r)
	}

	for _, c := range passthroughOrder {
		if seen[c.CandidateID] {
			continue
		}
		merged = append(merged, Result{CandidateID: c.CandidateID, Score: c.initialScore()})
		seen[c.CandidateID] = true
	}
	return merged
}

// synthesizeReasons builds up to reasonLimit human-readable reasons from
// the candidate's original features when includeReasons is set and the
// provider did not already supply reasons (spec §4.5 stage (g)).
func synthesizeReasons(r Result, input []CandidateInput, reasonLimit int) []string {
	if len(r.Reasons) > 0 {
		if len(r.Reasons) > reasonLimit {
			return r.Reasons[:reasonLimit]
		}
		return r.Reasons
	}

	var features *CandidateFeatures
	for _, c := range input {
		if c.CandidateID == r.CandidateID {
			features = c.Features
			break
		}
	}
	if features == nil {
		return nil
	}

	var reasons []string
	if features.VectorScore != nil {
		reasons = append(reasons, fmt.Sprintf("semantic match score %.2f", *features.VectorScore))
	}
	for _, m := range features.MatchReasons {
		reasons = append(reasons, m)
	}
	if len(features.Skills) > 0 {
		reasons = append(reasons, fmt.Sprintf("skills: %v", features.Skills))
	}
	if len(reasons) > reasonLimit {
		reasons = reasons[:reasonLimit]
	}
	return reasons
}

func remainingBudgetMs(deadline time.Time) int64 {
	d := time.Until(deadline).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

func tenantFromRequest(req Request) string {
	return req.TenantID
}
