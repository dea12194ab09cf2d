// Package config loads the environment-variable configuration surface
// from spec §6. Configuration loading is listed among spec §1's "Out of
// scope: ... external collaborators" items, so unlike the rest of the
// ambient stack this package deliberately stays on the standard library
// (os.Getenv/strconv) rather than adopting the teacher's spf13/viper
// layer — see DESIGN.md for the justification.
package config

import (
	"os"
	"strconv"
	"time"
)

// Rerank holds the orchestrator-level knobs from spec §6.
type Rerank struct {
	SLATargetMs         time.Duration
	SlowLogMs           time.Duration
	MaxCandidates       int
	MinCandidates       int
	DefaultLimit        int
	ReasonLimit         int
	MaxPromptCharacters int
	MaxHighlights       int
	MaxSkills           int
	EnableFallback      bool
}

// Redis holds the cache-layer connection knobs from spec §6.
type Redis struct {
	Host     string
	Port     string
	Password string
	TLS      bool
	Prefix   string
	TTLSeconds int
	Disabled bool
}

// Provider holds one `{PROVIDER}_*` block from spec §6.
type Provider struct {
	APIKey               string
	BaseURL              string
	Model                string
	TimeoutMs            int64
	Retries              int
	RetryDelayMs         int64
	CircuitFailureThreshold int
	CircuitCooldownMs    int64
	Enabled              bool
}

// PGVector holds the store-tuning knobs from spec §6.
type PGVector struct {
	DSN                  string
	IndexType            string
	HNSWEfSearch         int
	DiskANNSearchList    int
	PoolMax              int
	PoolMin              int
	ConnectionTimeoutMs  int64
	StatementTimeoutMs   int64
	IdleTimeoutMs        int64
}

// Config is the fully assembled process configuration.
type Config struct {
	Rerank    Rerank
	Redis     Redis
	PGVector  PGVector
	Anthropic Provider
	OpenAI    Provider
	ListenAddr string
}

// FromEnv reads every variable named in spec §6, applying the documented
// defaults when a variable is unset.
func FromEnv() Config {
	return Config{
		ListenAddr: getString("LISTEN_ADDR", ":8080"),
		Rerank: Rerank{
			SLATargetMs:         getDuration("RERANK_SLA_TARGET_MS", 500*time.Millisecond),
			SlowLogMs:           getDuration("RERANK_SLOW_LOG_MS", 400*time.Millisecond),
			MaxCandidates:       getInt("RERANK_MAX_CANDIDATES", 50),
			MinCandidates:       getInt("RERANK_MIN_CANDIDATES", 1),
			DefaultLimit:        getInt("RERANK_DEFAULT_LIMIT", 20),
			ReasonLimit:         getInt("RERANK_REASON_LIMIT", 3),
			MaxPromptCharacters: getInt("RERANK_MAX_PROMPT_CHARACTERS", 16000),
			MaxHighlights:       getInt("RERANK_MAX_HIGHLIGHTS", 5),
			MaxSkills:           getInt("RERANK_MAX_SKILLS", 20),
			EnableFallback:      getBool("RERANK_ENABLE_FALLBACK", true),
		},
		Redis: Redis{
			Host:       getString("REDIS_HOST", "localhost"),
			Port:       getString("REDIS_PORT", "6379"),
			Password:   getString("REDIS_PASSWORD", ""),
			TLS:        getBool("REDIS_TLS", false),
			Prefix:     getString("RERANK_REDIS_PREFIX", "scm"),
			TTLSeconds: getInt("RERANK_CACHE_TTL_SECONDS", 21600),
			Disabled:   getBool("RERANK_CACHE_DISABLE", false),
		},
		PGVector: PGVector{
			DSN:                 getString("PGVECTOR_DSN", ""),
			IndexType:           getString("PGVECTOR_INDEX_TYPE", "hnsw"),
			HNSWEfSearch:        getInt("HNSW_EF_SEARCH", 100),
			DiskANNSearchList:   getInt("DISKANN_SEARCH_LIST_SIZE", 100),
			PoolMax:             getInt("PGVECTOR_POOL_MAX", 20),
			PoolMin:             getInt("PGVECTOR_POOL_MIN", 5),
			ConnectionTimeoutMs: getInt64("PGVECTOR_CONNECTION_TIMEOUT_MS", 3000),
			StatementTimeoutMs:  getInt64("PGVECTOR_STATEMENT_TIMEOUT_MS", 10000),
			IdleTimeoutMs:       getInt64("PGVECTOR_IDLE_TIMEOUT_MS", 60000),
		},
		Anthropic: providerFromEnv("ANTHROPIC"),
		OpenAI:    providerFromEnv("OPENAI"),
	}
}

func providerFromEnv(prefix string) Provider {
	return Provider{
		APIKey:                  getString(prefix+"_API_KEY", ""),
		BaseURL:                 getString(prefix+"_BASE_URL", ""),
		Model:                   getString(prefix+"_MODEL", ""),
		TimeoutMs:               getInt64(prefix+"_TIMEOUT_MS", 2000),
		Retries:                 getInt(prefix+"_RETRIES", 1),
		RetryDelayMs:            getInt64(prefix+"_RETRY_DELAY_MS", 100),
		CircuitFailureThreshold: getInt(prefix+"_CB_FAILURES", 5),
		CircuitCooldownMs:       getInt64(prefix+"_CB_COOLDOWN_MS", 30000),
		Enabled:                 getBool(prefix+"_ENABLE", true),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}
