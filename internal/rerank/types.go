// Package rerank implements the LLM Rerank Clients (C4) and the Rerank
// Orchestrator (C5): the provider abstraction, prompt assembly, and the
// primary→fallback→passthrough state machine from spec §4.4–§4.5.
package rerank

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// CandidateFeatures mirrors the optional feature bag on a
// RerankCandidateInput (spec §6).
type CandidateFeatures struct {
	VectorScore     *float64 `json:"vectorScore,omitempty"`
	TextScore       *float64 `json:"textScore,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	YearsExperience *int     `json:"yearsExperience,omitempty"`
	CurrentTitle    string   `json:"currentTitle,omitempty"`
	Location        string   `json:"location,omitempty"`
	MatchReasons    []string `json:"matchReasons,omitempty"`
	Skills          []string `json:"skills,omitempty"`
}

// CandidateInput is one entry of the rerank request's candidate set.
type CandidateInput struct {
	CandidateID  string             `json:"candidateId"`
	Summary      string             `json:"summary,omitempty"`
	Highlights   []string           `json:"highlights,omitempty"`
	InitialScore *float64           `json:"initialScore,omitempty"`
	Features     *CandidateFeatures `json:"features,omitempty"`
	Payload      json.RawMessage    `json:"payload,omitempty"`
}

// initialScore resolves the passthrough ordering key: an explicit
// InitialScore if set, else vectorScore → textScore → 0 (spec §4.5 stage (f)).
func (c CandidateInput) initialScore() float64 {
	if c.InitialScore != nil {
		return *c.InitialScore
	}
	if c.Features != nil {
		if c.Features.VectorScore != nil {
			return *c.Features.VectorScore
		}
		if c.Features.TextScore != nil {
			return *c.Features.TextScore
		}
	}
	return 0
}

// Request is the full rerank request, per spec §6.
type Request struct {
	TenantID        string
	JobDescription  string
	JDHash          string
	DocsetHash      string
	Candidates      []CandidateInput
	Limit           int
	DisableCache    bool
	IncludeReasons  bool
}

// Result is one ranked output entry, per spec §3 RerankResult.
type Result struct {
	CandidateID string   `json:"candidateId"`
	Rank        int      `json:"rank"`
	Score       float64  `json:"score"`
	Reasons     []string `json:"reasons,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// ProviderResponse is what a Provider returns on success (spec §4.4).
type ProviderResponse struct {
	Candidates []Result `json:"candidates"`
}

// Provider is the single interface shared by every LLM rerank client (spec
// §9: "Replace with a single small interface ... primary and fallback are
// two values of that interface"). A nil response with a nil error means
// "unavailable, caller should degrade" — providers never return past their
// own boundary; all failures become (nil, nil) and update internal
// circuit state before returning.
type Provider interface {
	Name() string
	Rerank(ctx context.Context, req Request, remainingBudgetMs int64) (*ProviderResponse, error)
}

// Descriptor computes the deterministic (jdHash, docsetHash) pair from a
// normalized JD and the canonical candidate descriptor set (spec §4.5
// stage (a), §8 round-trip law). It is a pure function: identical inputs
// always produce identical hashes. Candidate order is NOT normalized —
// the docset hash is taken over candidateId in insertion order, per spec
// §4.5's determinism note that the canonical order preserves the input's
// insertion order rather than a sorted order.
func Descriptor(jd string, candidates []CandidateInput) (jdHash, docsetHash string) {
	normalized := strings.TrimSpace(jd)
	jdHash = hashString(normalized)

	descriptors := make([]string, len(candidates))
	for i, c := range candidates {
		descriptors[i] = c.CandidateID
	}
	docsetHash = hashString(strings.Join(descriptors, "|"))
	return jdHash, docsetHash
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:32]
}
