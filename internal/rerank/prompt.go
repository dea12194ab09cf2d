package rerank

import (
	"fmt"
	"strings"
)

// PromptLimits bounds prompt assembly, per spec §4.5 "Limits and inputs".
type PromptLimits struct {
	MaxPromptCharacters int
	MaxHighlights       int
	MaxSkills           int
}

// DefaultPromptLimits matches spec §4.5's defaults.
func DefaultPromptLimits() PromptLimits {
	return PromptLimits{MaxPromptCharacters: 16000, MaxHighlights: 5, MaxSkills: 20}
}

// BuildPrompt assembles the JD plus one entry per candidate in the format
// from spec §4.5: "summary \n Highlights: ... \n
// Title|Location|YoE|Skills|MatchReasons: ...", each bounded by the
// configured limits.
func BuildPrompt(jd string, candidates []CandidateInput, limits PromptLimits) string {
	jd = truncate(strings.TrimSpace(jd), limits.MaxPromptCharacters)

	var sb strings.Builder
	sb.WriteString("Job description:\n")
	sb.WriteString(jd)
	sb.WriteString("\n\nCandidates:\n")

	for _, c := range candidates {
		sb.WriteString(candidateLine(c, limits))
		sb.WriteString("\n")
	}
	return sb.String()
}

func candidateLine(c CandidateInput, limits PromptLimits) string {
	var sb strings.Builder
	sb.WriteString(c.CandidateID)
	sb.WriteString(": ")
	if c.Summary != "" {
		sb.WriteString(c.Summary)
	}

	highlights := c.Highlights
	if len(highlights) > limits.MaxHighlights {
		highlights = highlights[:limits.MaxHighlights]
	}
	if len(highlights) > 0 {
		sb.WriteString("\nHighlights: ")
		sb.WriteString(strings.Join(highlights, "; "))
	}

	if c.Features != nil {
		skills := c.Features.Skills
		if len(skills) > limits.MaxSkills {
			skills = skills[:limits.MaxSkills]
		}
		yoe := ""
		if c.Features.YearsExperience != nil {
			yoe = fmt.Sprintf("%d", *c.Features.YearsExperience)
		}
		sb.WriteString(fmt.Sprintf("\n%s|%s|%s|%s|%s",
			c.Features.CurrentTitle,
			c.Features.Location,
			yoe,
			strings.Join(skills, ","),
			strings.Join(c.Features.MatchReasons, ",")))
	}
	return sb.String()
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// ResponseInstructions is appended to the prompt to request strictly
// typed JSON output (spec §9: "explicit typed decoding" in place of a
// schema-validation library — the model is told the shape, and the
// response is decoded with encoding/json against Result/ProviderResponse).
const ResponseInstructions = `
Respond with ONLY a JSON object of the exact shape:
{"candidates": [{"candidateId": string, "rank": integer >= 1, "score": number, "reasons": [string, ...]}]}
Do not include any candidateId not listed above. Do not include any text outside the JSON object.`
