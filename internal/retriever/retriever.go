package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/candidatemesh/searchcore/internal/cache"
	"github.com/candidatemesh/searchcore/internal/observability"
	"github.com/candidatemesh/searchcore/internal/retrieval"
)

// EmbedProvider is the out-of-scope external collaborator that turns query
// text into a dense vector (spec §1, §6: "the embedding provider" is an
// external collaborator; only its interface is specified here).
type EmbedProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SpecialtyLookup is the out-of-scope skills-taxonomy lookup collaborator.
type SpecialtyLookup interface {
	Classify(ctx context.Context, text string) (string, error)
}

// SecondaryProfileStore is the out-of-scope external collaborator consulted
// for candidate profiles the primary store's batch fetch missed (spec §3's
// CandidateProfile invariant: "retrieval tolerates transient misses by
// falling back to a secondary lookup"). Like EmbedProvider and
// SpecialtyLookup, this repo only specifies the interface; a deployment
// wires in whatever secondary store it actually has (a replica, a
// different region, a slower archival table).
type SecondaryProfileStore interface {
	FetchProfile(ctx context.Context, tenantID, candidateID string) (retrieval.ProfileRow, error)
}

// Candidate is the fully materialized retrieval result handed to the
// reranker (spec §3 RetrievalCandidate).
type Candidate struct {
	CandidateID string
	VectorScore *float64
	TextScore   *float64
	RRFScore    float64
	Payload     json.RawMessage
	Highlights  []string
	Features    map[string]interface{}
}

// Timings records the per-stage latency breakdown from spec §4.3 step 5.
type Timings struct {
	EmbedMs       int64
	VectorMs      int64
	TextMs        int64
	FuseMs        int64
	MaterializeMs int64
}

// Result is the Hybrid Retriever's output.
type Result struct {
	Candidates []Candidate
	Timings    Timings
}

// Query is the retriever's input, per spec §4.3.
type Query struct {
	TenantID         string
	Text             string
	JDHash           string
	FiltersHash      string
	Limit            int
	DisableCache     bool
	OverRetrieval    int
	RRFK             int
	FallbackConcurrency int
}

// cacheIdentifier builds the SearchResults-layer identifier from spec
// §4.3's caching key: (tenantId, jdHash, filtersHash, limit). TenantID is
// not part of the identifier itself since Key() already scopes by tenant.
func (q Query) cacheIdentifier() string {
	return fmt.Sprintf("%s:%s:%d", q.JDHash, q.FiltersHash, q.Limit)
}

// Retriever is the Hybrid Retriever (C3).
type Retriever struct {
	store        *retrieval.Store
	embed        EmbedProvider
	specialty    SpecialtyLookup
	secondary    SecondaryProfileStore
	cache        cache.Cache
	logger       observability.Logger
	metrics      observability.MetricsClient
	globalPrefix string
}

// New constructs a Retriever. embed, specialty, and secondary may all be
// nil if the corresponding external collaborator is not configured; none
// of their absences or failures abort retrieval.
func New(store *retrieval.Store, embed EmbedProvider, specialty SpecialtyLookup, secondary SecondaryProfileStore, c cache.Cache, globalPrefix string, logger observability.Logger, metrics observability.MetricsClient) *Retriever {
	return &Retriever{store: store, embed: embed, specialty: specialty, secondary: secondary, cache: c, globalPrefix: globalPrefix, logger: logger, metrics: metrics}
}

type settled[T any] struct {
	value T
	err   error
}

// fanOut runs fn with a recover-to-error boundary in its own goroutine,
// implementing the spec §4.3/§9 Promise.allSettled-style join: partial
// failure of one branch never aborts the other.
func fanOut[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) <-chan settled[T] {
	out := make(chan settled[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				out <- settled[T]{value: zero, err: fmt.Errorf("retriever: panic in fan-out: %v", r)}
			}
		}()
		v, err := fn(ctx)
		out <- settled[T]{value: v, err: err}
	}()
	return out
}

// Retrieve runs the full C3 algorithm from spec §4.3.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (Result, error) {
	if q.OverRetrieval <= 0 {
		q.OverRetrieval = 3
	}
	if q.RRFK <= 0 {
		q.RRFK = 60
	}
	if q.FallbackConcurrency <= 0 {
		q.FallbackConcurrency = 8
	}

	if q.Text == "" {
		return Result{}, nil
	}

	// Step 1: embed + specialty lookup run in parallel; either may fail or
	// be absent without aborting retrieval.
	t0 := time.Now()
	embedCh := fanOut(ctx, func(ctx context.Context) ([]float32, error) {
		if r.embed == nil {
			return nil, nil
		}
		return r.embed.Embed(ctx, q.Text)
	})
	specialtyCh := fanOut(ctx, func(ctx context.Context) (string, error) {
		if r.specialty == nil {
			return "", nil
		}
		return r.specialty.Classify(ctx, q.Text)
	})

	embedResult := <-embedCh
	specialtyResult := <-specialtyCh
	if embedResult.err != nil {
		r.logger.Warn("retriever: embed failed, continuing with lexical-only", map[string]interface{}{"error": embedResult.err.Error()})
	}
	if specialtyResult.err != nil {
		r.logger.Warn("retriever: specialty lookup failed, continuing without it", map[string]interface{}{"error": specialtyResult.err.Error()})
	}
	embedMs := time.Since(t0).Milliseconds()

	searchLimit := q.Limit * q.OverRetrieval

	// Step 2: vector + lexical search run in parallel.
	t1 := time.Now()
	var vectorCh <-chan settled[[]retrieval.ScoredID]
	if len(embedResult.value) > 0 {
		vectorCh = fanOut(ctx, func(ctx context.Context) ([]retrieval.ScoredID, error) {
			return r.store.VectorSearch(ctx, q.TenantID, embedResult.value, searchLimit)
		})
	}
	var textCh <-chan settled[[]retrieval.ScoredID]
	if q.Text != "" {
		textCh = fanOut(ctx, func(ctx context.Context) ([]retrieval.ScoredID, error) {
			return r.store.TextSearch(ctx, q.TenantID, q.Text, searchLimit)
		})
	}

	var vectorHits, textHits []retrieval.ScoredID
	var vectorMs, textMs int64
	if vectorCh != nil {
		res := <-vectorCh
		vectorMs = time.Since(t1).Milliseconds()
		if res.err != nil {
			r.logger.Warn("retriever: vector search failed, continuing with lexical-only", map[string]interface{}{"error": res.err.Error()})
		} else {
			vectorHits = res.value
		}
	}
	if textCh != nil {
		t2 := time.Now()
		res := <-textCh
		textMs = time.Since(t2).Milliseconds()
		if res.err != nil {
			r.logger.Warn("retriever: text search failed, continuing with vector-only", map[string]interface{}{"error": res.err.Error()})
		} else {
			textHits = res.value
		}
	}

	if len(vectorHits) == 0 && len(textHits) == 0 {
		return Result{Timings: Timings{EmbedMs: embedMs, VectorMs: vectorMs, TextMs: textMs}}, nil
	}

	// Step 3: RRF merge.
	t3 := time.Now()
	fused := FuseRRF(vectorHits, textHits, q.RRFK, q.Limit)
	fuseMs := time.Since(t3).Milliseconds()

	// Step 4: materialize.
	t4 := time.Now()
	candidates, err := r.materialize(ctx, q.TenantID, fused, q.FallbackConcurrency)
	if err != nil {
		return Result{}, err
	}
	materializeMs := time.Since(t4).Milliseconds()

	return Result{
		Candidates: candidates,
		Timings: Timings{
			EmbedMs:       embedMs,
			VectorMs:      vectorMs,
			TextMs:        textMs,
			FuseMs:        fuseMs,
			MaterializeMs: materializeMs,
		},
	}, nil
}

// RetrieveCached wraps Retrieve with the SearchResults cache layer (spec
// §4.3 "Caching"), keyed by (tenantId, jdHash, filtersHash, limit) and
// disabled when q.DisableCache is set. On a cache hit the returned Timings
// are the ones recorded by the original retrieval that was cached.
func (r *Retriever) RetrieveCached(ctx context.Context, q Query) (Result, bool, error) {
	if q.DisableCache || r.cache == nil || q.JDHash == "" {
		res, err := r.Retrieve(ctx, q)
		return res, false, err
	}

	identifier := q.cacheIdentifier()
	if raw, hit := r.cache.Get(ctx, cache.SearchResults, q.TenantID, identifier); hit {
		var res Result
		if err := json.Unmarshal(raw, &res); err == nil {
			return res, true, nil
		}
	}

	res, err := r.Retrieve(ctx, q)
	if err != nil {
		return Result{}, false, err
	}
	if encoded, err := json.Marshal(res); err == nil {
		r.cache.Set(ctx, cache.SearchResults, q.TenantID, identifier, encoded)
	}
	return res, false, nil
}

// materialize fetches profile rows for the fused candidate set, falling
// back to a bounded-concurrency per-id fetch for anything missing from the
// batch call (spec §4.3 step 4). Missing candidates are dropped with a
// warn log rather than failing the whole retrieval.
func (r *Retriever) materialize(ctx context.Context, tenantID string, fused []FusedCandidate, fallbackConcurrency int) ([]Candidate, error) {
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.CandidateID
	}

	rows, err := r.store.FetchProfiles(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("retriever: materialize batch fetch: %w", err)
	}

	byID := make(map[string]retrieval.ProfileRow, len(rows))
	for _, row := range rows {
		byID[row.CandidateID] = row
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		r.fallbackFetch(ctx, tenantID, missing, fallbackConcurrency, byID)
	}

	out := make([]Candidate, 0, len(fused))
	for _, f := range fused {
		row, ok := byID[f.CandidateID]
		if !ok {
			r.logger.Warn("retriever: candidate dropped, profile unavailable", map[string]interface{}{"candidateId": f.CandidateID})
			continue
		}
		out = append(out, Candidate{
			CandidateID: f.CandidateID,
			VectorScore: f.VectorScore,
			TextScore:   f.TextScore,
			RRFScore:    f.RRFScore,
			Payload:     json.RawMessage(row.Payload),
		})
	}
	return out, nil
}

// fallbackFetch queries the secondary profile store for each id missing
// from the primary batch fetch, bounded to fallbackConcurrency in flight at
// once (default 8, spec §4.3 step 4). If no secondary store is configured,
// the misses stay missing and are dropped by materialize's warn-log path.
func (r *Retriever) fallbackFetch(ctx context.Context, tenantID string, missing []string, concurrency int, byID map[string]retrieval.ProfileRow) {
	if r.secondary == nil {
		r.logger.Warn("retriever: no secondary profile store configured, dropping misses", map[string]interface{}{"missingCount": len(missing)})
		return
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, id := range missing {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(candidateID string) {
			defer wg.Done()
			defer sem.Release(1)
			row, err := r.secondary.FetchProfile(ctx, tenantID, candidateID)
			if err != nil {
				r.logger.Warn("retriever: secondary fetch failed", map[string]interface{}{"candidateId": candidateID, "error": err.Error()})
				return
			}
			mu.Lock()
			byID[row.CandidateID] = row
			mu.Unlock()
		}(id)
	}
	wg.Wait()
}
