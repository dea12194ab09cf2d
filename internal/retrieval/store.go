// Package retrieval implements the Retrieval Store Client (C2): a
// connection-pooled client over the PostgreSQL + pgvector store exposing
// vectorSearch and textSearch primitives, warmup, and health.
//
// Grounded on the teacher's database/connection-pool pattern
// (pkg/database/vector.go wraps sqlx.DB behind a small surface) and on
// persistorai-persistor's internal/dbpool/pool.go, which wraps pgxpool.Pool
// the same way. pgx/v5's pgxpool is used instead of the teacher's
// sqlx+lib/pq because the "session knob" requirement (§4.2: set ef_search
// or search_list_size per connection before a query, never intermixed
// across queries within one connection) needs a per-connection hook;
// pgxpool's AfterConnect provides one, which lib/pq's driver.Conn interface
// cannot express cleanly.
package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/candidatemesh/searchcore/internal/observability"
)

// IndexType selects the ANN index variant in use, per spec §4.2.
type IndexType string

const (
	IndexHNSW    IndexType = "hnsw"
	IndexDiskANN IndexType = "diskann"
)

// PoolConfig tunes the underlying pgxpool.Pool. Defaults match spec §4.2's
// table.
type PoolConfig struct {
	DSN                string
	MaxConns           int32
	MinConns           int32
	ConnectTimeout     time.Duration
	StatementTimeout   time.Duration
	IdleTimeout        time.Duration
	IndexType          IndexType
	HNSWEfSearch       int
	DiskANNSearchList  int
}

// DefaultPoolConfig returns the defaults from spec §4.2's pool-tuning table.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:               dsn,
		MaxConns:          20,
		MinConns:          5,
		ConnectTimeout:    3 * time.Second,
		StatementTimeout:  10 * time.Second,
		IdleTimeout:       60 * time.Second,
		IndexType:         IndexHNSW,
		HNSWEfSearch:      100,
		DiskANNSearchList: 100,
	}
}

// Store owns the connection pool and the two retrieval primitives.
type Store struct {
	pool   *pgxpool.Pool
	cfg    PoolConfig
	logger observability.Logger
	metrics observability.MetricsClient

	mu              sync.Mutex
	waitingRequests int
}

// NewStore parses cfg and opens the pool. The per-connection session knob
// is installed via AfterConnect so that every connection, including ones
// created lazily under load, carries the active index's tuning statement
// before it is ever handed to a query — satisfying the "never intermix
// knobs within a connection" invariant by fixing the knob at connect time.
func NewStore(ctx context.Context, cfg PoolConfig, logger observability.Logger, metrics observability.MetricsClient) (*Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("retrieval: parsing dsn: %w", err)
	}

	pgxCfg.MaxConns = cfg.MaxConns
	pgxCfg.MinConns = cfg.MinConns
	pgxCfg.MaxConnIdleTime = cfg.IdleTimeout
	pgxCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	pgxCfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())

	knob := sessionKnobStatement(cfg)
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, knob)
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("retrieval: creating pool: %w", err)
	}

	return &Store{pool: pool, cfg: cfg, logger: logger, metrics: metrics}, nil
}

func sessionKnobStatement(cfg PoolConfig) string {
	switch cfg.IndexType {
	case IndexDiskANN:
		return fmt.Sprintf("SET search_list_size = %d", cfg.DiskANNSearchList)
	default:
		return fmt.Sprintf("SET hnsw.ef_search = %d", cfg.HNSWEfSearch)
	}
}

// WarmupPool concurrently acquires MinConns connections, runs a trivial
// probe on each, and releases them, returning once every attempt has
// finished. Failures are logged and swallowed: warmup is best-effort and
// never aborts startup (spec §4.2).
func (s *Store) WarmupPool(ctx context.Context) {
	var wg sync.WaitGroup
	n := int(s.cfg.MinConns)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			conn, err := s.pool.Acquire(ctx)
			if err != nil {
				s.logger.Warn("retrieval: warmup acquire failed", map[string]interface{}{"index": idx, "error": err.Error()})
				return
			}
			defer conn.Release()
			if err := conn.Ping(ctx); err != nil {
				s.logger.Warn("retrieval: warmup probe failed", map[string]interface{}{"index": idx, "error": err.Error()})
			}
		}(i)
	}
	wg.Wait()
}

// ScoredID is a single hit from either search primitive.
type ScoredID struct {
	CandidateID string
	Score       float64
}

// VectorSearch runs an ANN query over candidate_embeddings scoped to
// tenantID, returning up to limit hits ordered by descending cosine
// similarity (mapped to [0,1]).
func (s *Store) VectorSearch(ctx context.Context, tenantID string, queryEmbedding []float32, limit int) ([]ScoredID, error) {
	s.trackWaiting(1)
	defer s.trackWaiting(-1)

	const q = `
		SELECT entity_id, 1 - (embedding <=> $1) / 2 AS score
		FROM search.candidate_embeddings
		WHERE tenant_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`

	rows, err := s.pool.Query(ctx, q, vectorLiteral(queryEmbedding), tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector search: %w", err)
	}
	defer rows.Close()

	var out []ScoredID
	for rows.Next() {
		var hit ScoredID
		if err := rows.Scan(&hit.CandidateID, &hit.Score); err != nil {
			return nil, fmt.Errorf("retrieval: vector search scan: %w", err)
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

// TextSearch runs a full-text query over candidate_profiles scoped to
// tenantID, returning up to limit hits ordered by descending ts_rank.
func (s *Store) TextSearch(ctx context.Context, tenantID string, textQuery string, limit int) ([]ScoredID, error) {
	s.trackWaiting(1)
	defer s.trackWaiting(-1)

	const q = `
		SELECT candidate_id, ts_rank(search_document, plainto_tsquery('english', $1)) AS score
		FROM search.candidate_profiles
		WHERE tenant_id = $2 AND search_document @@ plainto_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, q, textQuery, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: text search: %w", err)
	}
	defer rows.Close()

	var out []ScoredID
	for rows.Next() {
		var hit ScoredID
		if err := rows.Scan(&hit.CandidateID, &hit.Score); err != nil {
			return nil, fmt.Errorf("retrieval: text search scan: %w", err)
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

// ProfileRow is a raw candidate profile row, used both by the primary
// materialize path and by any secondary-store fallback.
type ProfileRow struct {
	CandidateID string
	Payload     []byte
}

// FetchProfiles batch-fetches candidate_profiles rows for the given ids,
// scoped to tenantID. Callers treat a missing id as a soft miss, not an
// error (spec §4.3 step 4).
func (s *Store) FetchProfiles(ctx context.Context, tenantID string, candidateIDs []string) ([]ProfileRow, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}
	const q = `
		SELECT candidate_id, profile
		FROM search.candidate_profiles
		WHERE tenant_id = $1 AND candidate_id = ANY($2)`

	rows, err := s.pool.Query(ctx, q, tenantID, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("retrieval: fetch profiles: %w", err)
	}
	defer rows.Close()

	var out []ProfileRow
	for rows.Next() {
		var row ProfileRow
		if err := rows.Scan(&row.CandidateID, &row.Payload); err != nil {
			return nil, fmt.Errorf("retrieval: fetch profiles scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) trackWaiting(delta int) {
	s.mu.Lock()
	s.waitingRequests += delta
	s.mu.Unlock()
}

// Health describes the pool's current condition, per spec §4.2.
type Health struct {
	Status            string
	PoolSize          int
	IdleConnections   int
	WaitingRequests   int
	PoolUtilization   float64
	IndexType         IndexType
}

// HealthCheck reports the current pool statistics and status. Status
// degrades to "degraded" above 10 waiting requests and logs a warning
// above 5, per spec §4.2.
func (s *Store) HealthCheck(ctx context.Context) Health {
	stat := s.pool.Stat()
	s.mu.Lock()
	waiting := s.waitingRequests
	s.mu.Unlock()

	size := int(stat.TotalConns())
	idle := int(stat.IdleConns())
	util := 0.0
	if size > 0 {
		util = float64(size-idle) / float64(size)
	}

	status := "healthy"
	if waiting > 10 {
		status = "degraded"
	}
	if waiting > 5 {
		s.logger.Warn("retrieval: pool waiters elevated", map[string]interface{}{"waitingRequests": waiting})
	}

	return Health{
		Status:          status,
		PoolSize:        size,
		IdleConnections: idle,
		WaitingRequests: waiting,
		PoolUtilization: util,
		IndexType:       s.cfg.IndexType,
	}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// vectorLiteral renders a float32 slice as pgvector's text input format,
// e.g. "[0.1,0.2,0.3]".
func vectorLiteral(v []float32) string {
	out := make([]byte, 0, len(v)*8+2)
	out = append(out, '[')
	for i, f := range v {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendFloat(out, f)
	}
	out = append(out, ']')
	return string(out)
}

func appendFloat(dst []byte, f float32) []byte {
	return fmt.Appendf(dst, "%g", f)
}
