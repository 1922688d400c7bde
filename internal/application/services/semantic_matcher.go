package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sqlrag/backend/internal/domain/models"
	"github.com/sqlrag/backend/internal/domain/ports"
	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

const (
	// semanticMatchTimeout bounds a single LLM call. Requests must never
	// block on the semantic enhancement.
	semanticMatchTimeout = 15 * time.Second
	// maxTemplatesForMatch caps how many ranked templates a request keeps.
	maxTemplatesForMatch = 3
)

// MatchSource records which signals produced a template match.
type MatchSource string

const (
	SourceKeywordOnly  MatchSource = "keyword_only"
	SourceSemanticOnly MatchSource = "semantic_only"
	SourceFused        MatchSource = "fused"
)

// SemanticMatch is one LLM-scored template candidate.
type SemanticMatch struct {
	TemplateID    int64
	SemanticScore float64
	Confidence    float64
	Reasoning     string
}

// SemanticMatcher re-ranks templates with an LLM so queries phrased in any
// language can match templates authored in another. It is strictly
// best-effort: on timeout or any failure callers fall back to keyword
// scores.
type SemanticMatcher struct {
	client ports.LLMClient
}

func NewSemanticMatcher(client ports.LLMClient) *SemanticMatcher {
	return &SemanticMatcher{client: client}
}

// MatchTemplates scores templates against the user query via the LLM,
// under a hard timeout. The call runs in its own goroutine so a client
// that ignores ctx cancellation still cannot block the request.
func (m *SemanticMatcher) MatchTemplates(ctx context.Context, templates []models.QueryTemplate, userQuery string) ([]SemanticMatch, error) {
	if len(templates) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, semanticMatchTimeout)
	defer cancel()

	prompt := buildSemanticMatchingPrompt(userQuery, templates)

	type generateResult struct {
		response string
		err      error
	}
	resultCh := make(chan generateResult, 1)
	go func() {
		response, err := m.client.Generate(ctx, prompt, "")
		resultCh <- generateResult{response, err}
	}()

	select {
	case <-ctx.Done():
		return nil, pkgErrors.NewLLMError("semantic matching timed out", ctx.Err())
	case result := <-resultCh:
		if result.err != nil {
			return nil, pkgErrors.NewLLMError("semantic matching failed", result.err)
		}
		return parseSemanticResponse(result.response, templates)
	}
}

func buildSemanticMatchingPrompt(userQuery string, templates []models.QueryTemplate) string {
	var list strings.Builder
	for i, t := range templates {
		label := ""
		if t.IsPatternAgnostic {
			label = " [PATTERN-AGNOSTIC]"
		}
		if i > 0 {
			list.WriteString("\n\n")
		}
		fmt.Fprintf(&list, "%d. Template: %q%s (ID: %d)\n   Example: %q\n   Pattern: %s",
			i+1, t.Name, label, t.ID, t.ExampleQuestion, t.QueryPattern)
	}

	return fmt.Sprintf(`You are a semantic template matcher. Match the user's query to templates based on INTENT, not keywords.

USER QUERY: %q

AVAILABLE TEMPLATES:
%s

TASK:
For each template, rate how well it matches the USER'S INTENT (ignoring language).
Consider:
- What operation is being performed? (select, filter, aggregate, join)
- What type of filtering? (by ID, by date, by name, by status)
- What pattern best fits this query?

IMPORTANT:
- Ignore language differences between the query and the template
- For [PATTERN-AGNOSTIC] templates, focus on the pattern, not table names
- Score 0.0-1.0 based on semantic similarity

Respond in JSON format only:
{
  "matches": [
    {
      "template_id": <id>,
      "semantic_similarity": <0.0-1.0>,
      "confidence": <0.0-1.0>,
      "reasoning": "<brief explanation>"
    }
  ]
}`, userQuery, list.String())
}

type semanticResponse struct {
	Matches []struct {
		TemplateID         int64   `json:"template_id"`
		SemanticSimilarity float64 `json:"semantic_similarity"`
		Confidence         float64 `json:"confidence"`
		Reasoning          string  `json:"reasoning"`
	} `json:"matches"`
}

// parseSemanticResponse decodes the LLM's JSON, tolerating markdown code
// fences, dropping unknown template ids and clamping scores into [0,1].
func parseSemanticResponse(response string, templates []models.QueryTemplate) ([]SemanticMatch, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed semanticResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, pkgErrors.NewLLMError("failed to parse LLM response as JSON", err)
	}

	validIDs := make(map[int64]bool, len(templates))
	for _, t := range templates {
		validIDs[t.ID] = true
	}

	matches := make([]SemanticMatch, 0, len(parsed.Matches))
	for _, m := range parsed.Matches {
		if !validIDs[m.TemplateID] {
			continue
		}
		matches = append(matches, SemanticMatch{
			TemplateID:    m.TemplateID,
			SemanticScore: clamp01(m.SemanticSimilarity),
			Confidence:    clamp01(m.Confidence),
			Reasoning:     m.Reasoning,
		})
	}
	return matches, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FuseScores combines a keyword score and a semantic score adaptively:
// a confident LLM outweighs keywords, a strong keyword match outweighs the
// LLM, and weak signals average out.
func FuseScores(keyword *models.TemplateMatch, semantic *SemanticMatch) (float64, string, MatchSource) {
	switch {
	case keyword != nil && semantic != nil:
		var score float64
		if semantic.Confidence > 0.8 {
			score = semantic.SemanticScore*0.7 + keyword.Score*0.3
		} else if keyword.Score > 0.5 {
			score = keyword.Score*0.6 + semantic.SemanticScore*0.4
		} else {
			score = (semantic.SemanticScore + keyword.Score) / 2.0
		}
		reason := fmt.Sprintf("%s (keyword: %.2f, semantic: %.2f, LLM confidence: %.2f)",
			semantic.Reasoning, keyword.Score, semantic.SemanticScore, semantic.Confidence)
		return score, reason, SourceFused
	case keyword != nil:
		return keyword.Score, keyword.Reason, SourceKeywordOnly
	case semantic != nil:
		reason := fmt.Sprintf("%s (LLM confidence: %.2f)", semantic.Reasoning, semantic.Confidence)
		return semantic.SemanticScore, reason, SourceSemanticOnly
	default:
		return 0, "no match", SourceKeywordOnly
	}
}

// FuseMatches merges keyword and semantic results over the full template
// list, keeping only positively scored templates.
func FuseMatches(templates []models.QueryTemplate, keywordMatches []models.TemplateMatch, semanticMatches []SemanticMatch) []models.TemplateMatch {
	keywordByID := make(map[int64]*models.TemplateMatch, len(keywordMatches))
	for i := range keywordMatches {
		keywordByID[keywordMatches[i].Template.ID] = &keywordMatches[i]
	}
	semanticByID := make(map[int64]*SemanticMatch, len(semanticMatches))
	for i := range semanticMatches {
		semanticByID[semanticMatches[i].TemplateID] = &semanticMatches[i]
	}

	fused := make([]models.TemplateMatch, 0, len(templates))
	for _, template := range templates {
		score, reason, _ := FuseScores(keywordByID[template.ID], semanticByID[template.ID])
		if score > 0 {
			fused = append(fused, models.TemplateMatch{
				Template: template,
				Score:    score,
				Reason:   reason,
			})
		}
	}
	return fused
}
