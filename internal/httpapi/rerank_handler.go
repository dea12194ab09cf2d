// Package httpapi exposes the rerank RPC and health endpoints from spec
// §6 over gin, grounded on the teacher's apps/rest-api/internal/api
// handler pattern (constructor-injected dependencies, RegisterRoutes over
// a router.Group) and apps/rag-loader/internal/middleware/tenant.go for
// how tenant context is read off the gin context.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/candidatemesh/searchcore/internal/observability"
	"github.com/candidatemesh/searchcore/internal/rerank"
	"github.com/candidatemesh/searchcore/internal/retriever"
	"github.com/candidatemesh/searchcore/internal/tenant"
)

// RerankCandidateInput mirrors spec §6's request candidate shape.
type RerankCandidateInput struct {
	CandidateID  string                  `json:"candidateId"`
	Summary      string                  `json:"summary,omitempty"`
	Highlights   []string                `json:"highlights,omitempty"`
	InitialScore *float64                `json:"initialScore,omitempty"`
	Features     *rerank.CandidateFeatures `json:"features,omitempty"`
	Payload      json.RawMessage         `json:"payload,omitempty"`
}

// RerankRequestBody is the request JSON from spec §6.
type RerankRequestBody struct {
	JobDescription  string                  `json:"jobDescription"`
	JDHash          string                  `json:"jdHash,omitempty"`
	DocsetHash      string                  `json:"docsetHash,omitempty"`
	Candidates      []RerankCandidateInput  `json:"candidates"`
	Limit           int                     `json:"limit,omitempty"`
	DisableCache    bool                    `json:"disableCache,omitempty"`
	IncludeReasons  *bool                   `json:"includeReasons,omitempty"`
	RequestMetadata map[string]interface{}  `json:"requestMetadata,omitempty"`
}

// RerankResultOut is one entry of the response JSON's results array.
type RerankResultOut struct {
	CandidateID string          `json:"candidateId"`
	Rank        int             `json:"rank"`
	Score       float64         `json:"score"`
	Reasons     []string        `json:"reasons,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// RerankResponseBody is the response JSON from spec §6.
type RerankResponseBody struct {
	Results      []RerankResultOut `json:"results"`
	CacheHit     bool              `json:"cacheHit"`
	UsedFallback bool              `json:"usedFallback"`
	RequestID    string            `json:"requestId"`
	Timings      timingsOut        `json:"timings"`
	Metadata     metadataOut       `json:"metadata"`
}

type timingsOut struct {
	TotalMs    int64 `json:"totalMs"`
	ProviderMs int64 `json:"providerMs,omitempty"`
	PromptMs   int64 `json:"promptMs,omitempty"`
	CacheMs    int64 `json:"cacheMs,omitempty"`
}

type metadataOut struct {
	Provider       string `json:"provider"`
	DocsetHash     string `json:"docsetHash"`
	JDHash         string `json:"jdHash"`
	CandidateCount int    `json:"candidateCount"`
	Limit          int    `json:"limit"`
}

// Handler serves the rerank RPC and health endpoints.
type Handler struct {
	retriever    *retriever.Retriever
	orchestrator *rerank.Orchestrator
	slaTarget    time.Duration
	slowLogMs    time.Duration
	logger       observability.Logger
	metrics      observability.MetricsClient
	health       HealthSource
}

// HealthSource abstracts everything the health endpoints need to query,
// so Handler does not take a direct dependency on retrieval/cache/provider
// package types.
type HealthSource interface {
	Health() ComponentHealth
}

// NewHandler constructs the rerank HTTP handler.
func NewHandler(rtr *retriever.Retriever, orch *rerank.Orchestrator, slaTarget, slowLogMs time.Duration, health HealthSource, logger observability.Logger, metrics observability.MetricsClient) *Handler {
	return &Handler{retriever: rtr, orchestrator: orch, slaTarget: slaTarget, slowLogMs: slowLogMs, health: health, logger: logger, metrics: metrics}
}

// RegisterRoutes wires the handler's endpoints onto router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.POST("/v1/search/rerank", h.Rerank)
	router.GET("/healthz", h.Healthz)
	router.GET("/readyz", h.Healthz)
	router.GET("/healthz/detailed", h.HealthzDetailed)
}

// Rerank handles POST /v1/search/rerank end to end: retrieval (if the
// caller did not already supply a candidate set's features) is the
// caller's responsibility upstream; this entry point assumes
// RerankRequestBody.Candidates is already the retrieval slate, per spec
// §6's contract where /v1/search/rerank is the rerank RPC specifically
// (retrieval is invoked internally by whichever collaborator assembled
// that candidate list, e.g. an upstream /v1/search/candidates call using
// the Retriever directly).
func (h *Handler) Rerank(c *gin.Context) {
	reqCtx := tenant.NewRequestContext(tenant.Context{ID: c.GetString("tenant_id"), Active: true}, c.GetString("user_id"), h.slaTarget, c.GetHeader("X-Request-ID"))

	var body RerankRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, ErrBadRequest, err.Error(), nil)
		return
	}
	if len(body.JobDescription) < 20 || len(body.JobDescription) > 20000 {
		writeError(c, ErrBadRequest, "jobDescription must be 20..20000 characters", nil)
		return
	}
	if len(body.Candidates) < 1 || len(body.Candidates) > 200 {
		writeError(c, ErrBadRequest, "candidates must contain 1..200 entries", nil)
		return
	}

	includeReasons := true
	if body.IncludeReasons != nil {
		includeReasons = *body.IncludeReasons
	}

	req := rerank.Request{
		TenantID:       reqCtx.Tenant.ID,
		JobDescription: body.JobDescription,
		JDHash:         body.JDHash,
		DocsetHash:     body.DocsetHash,
		Candidates:     toRerankCandidates(body.Candidates),
		Limit:          body.Limit,
		DisableCache:   body.DisableCache,
		IncludeReasons: includeReasons,
	}

	resp, err := h.orchestrator.Rerank(c.Request.Context(), req, reqCtx.RequestID, reqCtx.Deadline)
	if err != nil {
		writeError(c, ErrVendorUnavailable, "all rerank providers unavailable", nil)
		return
	}

	out := RerankResponseBody{
		Results:      toResponseResults(resp.Results),
		CacheHit:     resp.CacheHit,
		UsedFallback: resp.UsedFallback,
		RequestID:    resp.RequestID,
		Timings: timingsOut{
			TotalMs:    resp.Timings.TotalMs,
			ProviderMs: resp.Timings.ProviderMs,
			PromptMs:   resp.Timings.PromptMs,
			CacheMs:    resp.Timings.CacheMs,
		},
		Metadata: metadataOut{
			Provider:       string(resp.Provider),
			DocsetHash:     resp.DocsetHash,
			JDHash:         resp.JDHash,
			CandidateCount: len(body.Candidates),
			Limit:          req.Limit,
		},
	}

	c.Header("Server-Timing", serverTiming(out.Timings))
	h.logger.Info("rerank request served", map[string]interface{}{
		"requestId":      resp.RequestID,
		"tenantId":       reqCtx.Tenant.ID,
		"provider":       string(resp.Provider),
		"cacheHit":       resp.CacheHit,
		"usedFallback":   resp.UsedFallback,
		"totalMs":        resp.Timings.TotalMs,
		"candidateCount": len(body.Candidates),
	})
	if resp.Timings.TotalMs > h.slowLogMs.Milliseconds() {
		h.logger.Warn("slow rerank request", map[string]interface{}{"requestId": resp.RequestID, "totalMs": resp.Timings.TotalMs})
	}

	c.JSON(http.StatusOK, out)
}

func toRerankCandidates(in []RerankCandidateInput) []rerank.CandidateInput {
	out := make([]rerank.CandidateInput, len(in))
	for i, c := range in {
		out[i] = rerank.CandidateInput{
			CandidateID:  c.CandidateID,
			Summary:      c.Summary,
			Highlights:   c.Highlights,
			InitialScore: c.InitialScore,
			Features:     c.Features,
			Payload:      c.Payload,
		}
	}
	return out
}

func toResponseResults(in []rerank.Result) []RerankResultOut {
	out := make([]RerankResultOut, len(in))
	for i, r := range in {
		out[i] = RerankResultOut{CandidateID: r.CandidateID, Rank: r.Rank, Score: r.Score, Reasons: r.Reasons, Payload: r.Payload}
	}
	return out
}

func serverTiming(t timingsOut) string {
	return fmt.Sprintf("total;dur=%d, provider;dur=%d, prompt;dur=%d, cache;dur=%d", t.TotalMs, t.ProviderMs, t.PromptMs, t.CacheMs)
}

func writeError(c *gin.Context, code ErrorCode, message string, details interface{}) {
	c.AbortWithStatusJSON(statusFor(code), Envelope{Code: code, Message: message, Details: details})
}
