// Command rerank-service wires together the cache, retrieval store,
// hybrid retriever, rerank providers, and orchestrator behind the gin
// HTTP surface from spec §6. Grounded on the teacher's
// apps/rest-api/cmd/api/main.go wiring order (config → logger → metrics →
// stores → handlers → server).
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/candidatemesh/searchcore/internal/cache"
	"github.com/candidatemesh/searchcore/internal/config"
	"github.com/candidatemesh/searchcore/internal/httpapi"
	"github.com/candidatemesh/searchcore/internal/observability"
	"github.com/candidatemesh/searchcore/internal/rerank"
	"github.com/candidatemesh/searchcore/internal/rerank/providers"
	"github.com/candidatemesh/searchcore/internal/retrieval"
	"github.com/candidatemesh/searchcore/internal/retriever"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.FromEnv()

	logger := observability.NewLogger("rerank-service")
	registry := prometheus.NewRegistry()
	metrics := observability.NewPrometheusMetrics("searchcore", registry)

	var cacheLayer cache.Cache
	if cfg.Redis.Disabled {
		cacheLayer = cache.NewNoopCache()
	} else {
		redisCache := cache.NewRedisCache(cache.RedisConfig{
			Addr:         cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
			PoolSize:     50,
		}, cfg.Redis.Prefix, metrics, logger)
		layered, err := cache.NewLayeredCache(redisCache, cfg.Redis.Prefix, 10000, metrics)
		if err != nil {
			logger.Error("failed to build layered cache, falling back to redis-only", map[string]interface{}{"error": err.Error()})
			cacheLayer = redisCache
		} else {
			cacheLayer = layered
		}
	}

	store, err := retrieval.NewStore(ctx, retrieval.PoolConfig{
		DSN:               cfg.PGVector.DSN,
		MaxConns:          int32(cfg.PGVector.PoolMax),
		MinConns:          int32(cfg.PGVector.PoolMin),
		ConnectTimeout:    time.Duration(cfg.PGVector.ConnectionTimeoutMs) * time.Millisecond,
		StatementTimeout:  time.Duration(cfg.PGVector.StatementTimeoutMs) * time.Millisecond,
		IdleTimeout:       time.Duration(cfg.PGVector.IdleTimeoutMs) * time.Millisecond,
		IndexType:         retrieval.IndexType(cfg.PGVector.IndexType),
		HNSWEfSearch:      cfg.PGVector.HNSWEfSearch,
		DiskANNSearchList: cfg.PGVector.DiskANNSearchList,
	}, logger, metrics)
	if err != nil {
		log.Fatalf("failed to open retrieval store: %v", err)
	}
	defer store.Close()
	store.WarmupPool(ctx)

	rtr := retriever.New(store, nil, nil, nil, cacheLayer, cfg.Redis.Prefix, logger, metrics)

	primary := providers.NewAnthropicProvider(providers.Config{
		APIKey:                  cfg.Anthropic.APIKey,
		BaseURL:                 cfg.Anthropic.BaseURL,
		Model:                   cfg.Anthropic.Model,
		TimeoutMs:               cfg.Anthropic.TimeoutMs,
		Retries:                 cfg.Anthropic.Retries,
		RetryDelayMs:            cfg.Anthropic.RetryDelayMs,
		CircuitFailureThreshold: cfg.Anthropic.CircuitFailureThreshold,
		CircuitCooldownMs:       cfg.Anthropic.CircuitCooldownMs,
		Enabled:                 cfg.Anthropic.Enabled,
	}, logger)
	fallback := providers.NewOpenAIProvider(providers.Config{
		APIKey:                  cfg.OpenAI.APIKey,
		BaseURL:                 cfg.OpenAI.BaseURL,
		Model:                   cfg.OpenAI.Model,
		TimeoutMs:               cfg.OpenAI.TimeoutMs,
		Retries:                 cfg.OpenAI.Retries,
		RetryDelayMs:            cfg.OpenAI.RetryDelayMs,
		CircuitFailureThreshold: cfg.OpenAI.CircuitFailureThreshold,
		CircuitCooldownMs:       cfg.OpenAI.CircuitCooldownMs,
		Enabled:                 cfg.OpenAI.Enabled,
	}, logger)

	limits := rerank.DefaultLimits()
	limits.MaxCandidates = cfg.Rerank.MaxCandidates
	limits.MinCandidates = cfg.Rerank.MinCandidates
	limits.DefaultLimit = cfg.Rerank.DefaultLimit
	limits.ReasonLimit = cfg.Rerank.ReasonLimit
	limits.Prompt = rerank.PromptLimits{
		MaxPromptCharacters: cfg.Rerank.MaxPromptCharacters,
		MaxHighlights:       cfg.Rerank.MaxHighlights,
		MaxSkills:           cfg.Rerank.MaxSkills,
	}

	orchestrator := rerank.New(primary, fallback, cacheLayer, limits, cfg.Rerank.EnableFallback, logger, metrics)

	health := &aggregateHealth{store: store, cacheDisabled: cfg.Redis.Disabled, anthropicEnabled: cfg.Anthropic.Enabled, openaiEnabled: cfg.OpenAI.Enabled}

	handler := httpapi.NewHandler(rtr, orchestrator, cfg.Rerank.SLATargetMs, cfg.Rerank.SlowLogMs, health, logger, metrics)

	router := gin.New()
	router.Use(gin.Recovery())
	handler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	go func() {
		logger.Info("rerank-service listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// aggregateHealth implements httpapi.HealthSource.
type aggregateHealth struct {
	store            *retrieval.Store
	cacheDisabled    bool
	anthropicEnabled bool
	openaiEnabled    bool
}

func (h *aggregateHealth) Health() httpapi.ComponentHealth {
	storeHealth := h.store.HealthCheck(context.Background())
	storeStatus := httpapi.StatusHealthy
	if storeHealth.Status == "degraded" {
		storeStatus = httpapi.StatusDegraded
	}

	cacheStatus := httpapi.StatusHealthy
	if h.cacheDisabled {
		cacheStatus = httpapi.StatusDisabled
	}

	providerStatus := map[string]httpapi.ComponentStatus{}
	if h.anthropicEnabled {
		providerStatus["primary"] = httpapi.StatusHealthy
	} else {
		providerStatus["primary"] = httpapi.StatusDisabled
	}
	if h.openaiEnabled {
		providerStatus["fallback"] = httpapi.StatusHealthy
	} else {
		providerStatus["fallback"] = httpapi.StatusDisabled
	}

	return httpapi.ComponentHealth{
		Cache:     cacheStatus,
		Store:     storeStatus,
		Providers: providerStatus,
		Detail: map[string]interface{}{
			"poolSize":        storeHealth.PoolSize,
			"idleConnections": storeHealth.IdleConnections,
			"waitingRequests": storeHealth.WaitingRequests,
			"poolUtilization": storeHealth.PoolUtilization,
			"indexType":       string(storeHealth.IndexType),
		},
	}
}
