// Package retriever implements the Hybrid Retriever (C3): parallel vector
// + lexical search, RRF fusion, and candidate materialization.
//
// Grounded on the teacher's pkg/embedding/hybrid/service.go HybridSearchService
// (parallel vectorSearch/keywordSearch goroutine pairs feeding a fuseResults
// step) generalized from the teacher's single-tenant weighted-sum fusion to
// the spec's reciprocal-rank-fusion with a documented two-level tie-break.
package retriever

import (
	"sort"

	"github.com/candidatemesh/searchcore/internal/retrieval"
)

// FusedCandidate is one row of the RRF merge result.
type FusedCandidate struct {
	CandidateID string
	VectorScore *float64
	TextScore   *float64
	RRFScore    float64
}

// FuseRRF merges two ranked lists with reciprocal rank fusion: each
// candidate contributes 1/(k+rank) per list it appears in (rank is
// 1-based), summed across lists. Ties are broken first by the higher of
// the two raw scores, then lexicographically by candidateId (spec §4.3
// step 3). This is a pure function so it can be exhaustively unit tested
// independent of any store.
func FuseRRF(vector, text []retrieval.ScoredID, k int, limit int) []FusedCandidate {
	if k <= 0 {
		k = 60
	}

	type acc struct {
		candidateID string
		vectorScore *float64
		textScore   *float64
		rrf         float64
	}
	byID := make(map[string]*acc)
	order := make([]string, 0, len(vector)+len(text))

	contribute := func(list []retrieval.ScoredID, assign func(a *acc, score float64)) {
		for rank, hit := range list {
			a, ok := byID[hit.CandidateID]
			if !ok {
				a = &acc{candidateID: hit.CandidateID}
				byID[hit.CandidateID] = a
				order = append(order, hit.CandidateID)
			}
			assign(a, hit.Score)
			a.rrf += 1.0 / float64(k+rank+1)
		}
	}

	contribute(vector, func(a *acc, score float64) { a.vectorScore = &score })
	contribute(text, func(a *acc, score float64) { a.textScore = &score })

	out := make([]FusedCandidate, 0, len(order))
	for _, id := range order {
		a := byID[id]
		out = append(out, FusedCandidate{
			CandidateID: a.candidateID,
			VectorScore: a.vectorScore,
			TextScore:   a.textScore,
			RRFScore:    a.rrf,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		if bi, bj := maxRaw(out[i]), maxRaw(out[j]); bi != bj {
			return bi > bj
		}
		return out[i].CandidateID < out[j].CandidateID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func maxRaw(c FusedCandidate) float64 {
	best := 0.0
	if c.VectorScore != nil && *c.VectorScore > best {
		best = *c.VectorScore
	}
	if c.TextScore != nil && *c.TextScore > best {
		best = *c.TextScore
	}
	return best
}
