package rerank

import (
	"encoding/json"
	"fmt"
)

// DecodeResponse parses a provider's raw text reply against the strict
// shape from spec §4.4: {candidates: [{candidateId, rank, score,
// reasons[]}]}. Unknown fields are ignored by encoding/json's default
// behavior; a missing required field or malformed JSON is a validation
// failure the caller must count as a provider failure (no retry, per
// spec §9).
func DecodeResponse(raw string) (*ProviderResponse, error) {
	var resp ProviderResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("rerank: response decode: %w", err)
	}
	for i, c := range resp.Candidates {
		if c.CandidateID == "" {
			return nil, fmt.Errorf("rerank: response candidate %d missing candidateId", i)
		}
		if c.Rank < 1 {
			return nil, fmt.Errorf("rerank: response candidate %d has invalid rank %d", i, c.Rank)
		}
	}
	return &resp, nil
}

// ExtractJSONObject finds the first top-level `{...}` span in text, to
// tolerate providers that wrap JSON in prose or code fences despite being
// instructed not to.
func ExtractJSONObject(text string) string {
	start := -1
	depth := 0
	for i, r := range text {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}
