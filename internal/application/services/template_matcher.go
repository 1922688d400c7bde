package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sqlrag/backend/internal/domain/models"
)

// Aggregation and IN-clause cue words used for pattern-type scoring.
var (
	aggregateCues = []string{
		"count", "sum", "average", "avg", "total", "maximum", "minimum",
		"max", "min", "how many", "how much",
	}
	inClauseCues = []string{"in", "among", "list of", "following"}
)

// TemplateMatcher ranks pre-authored query templates against a user query
// using keyword, table-overlap and pattern-type scoring. Matches are
// advisory few-shot context; the deterministic planner remains the source
// of truth for the generated plan.
type TemplateMatcher struct {
	templates []models.QueryTemplate
}

// NewTemplateMatcher keeps only enabled templates.
func NewTemplateMatcher(templates []models.QueryTemplate) *TemplateMatcher {
	enabled := make([]models.QueryTemplate, 0, len(templates))
	for _, t := range templates {
		if t.IsEnabled {
			enabled = append(enabled, t)
		}
	}
	return &TemplateMatcher{templates: enabled}
}

// Templates returns the enabled templates.
func (m *TemplateMatcher) Templates() []models.QueryTemplate {
	return m.templates
}

// FindMatches returns up to maxTemplates positively scored templates,
// highest score first, priority breaking ties.
func (m *TemplateMatcher) FindMatches(query string, detectedTables []string, maxTemplates int) []models.TemplateMatch {
	if len(m.templates) == 0 {
		return nil
	}

	queryLower := strings.ToLower(query)
	queryWords := make(map[string]bool)
	for _, w := range strings.Fields(queryLower) {
		queryWords[w] = true
	}
	tableSet := make(map[string]bool, len(detectedTables))
	for _, t := range detectedTables {
		tableSet[strings.ToLower(t)] = true
	}

	matches := make([]models.TemplateMatch, 0, len(m.templates))
	for _, template := range m.templates {
		score, reason := m.scoreTemplate(queryLower, queryWords, tableSet, template)
		if score > 0 {
			matches = append(matches, models.TemplateMatch{
				Template: template,
				Score:    score,
				Reason:   reason,
			})
		}
	}

	sortTemplateMatches(matches)

	if len(matches) > maxTemplates {
		matches = matches[:maxTemplates]
	}
	return matches
}

// sortTemplateMatches orders by score descending, priority breaking ties.
func sortTemplateMatches(matches []models.TemplateMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Template.Priority > matches[j].Template.Priority
	})
}

// scoreTemplate weights the signals per template kind: pattern-agnostic
// templates score keywords 60% and pattern type 40%; table-specific ones
// score keywords 40%, table overlap 40% and pattern type 20%.
func (m *TemplateMatcher) scoreTemplate(queryLower string, queryWords map[string]bool, detectedTables map[string]bool, template models.QueryTemplate) (float64, string) {
	score := 0.0
	var reasons []string

	if template.IsPatternAgnostic {
		if kw := scoreKeywords(queryLower, queryWords, template.IntentKeywords); kw > 0 {
			score += kw * 0.6
			reasons = append(reasons, fmt.Sprintf("keyword match: %.2f", kw))
		}
		if pb := scorePatternType(queryLower, template.PatternType); pb > 0 {
			score += pb * 0.4
			reasons = append(reasons, fmt.Sprintf("pattern match: %.2f", pb))
		}
		if len(reasons) > 0 {
			reasons = append(reasons, "pattern-agnostic")
		}
	} else {
		if kw := scoreKeywords(queryLower, queryWords, template.IntentKeywords); kw > 0 {
			score += kw * 0.4
			reasons = append(reasons, fmt.Sprintf("keyword match: %.2f", kw))
		}
		if ts := scoreTables(detectedTables, template.TablesUsed); ts > 0 {
			score += ts * 0.4
			reasons = append(reasons, fmt.Sprintf("table overlap: %.2f", ts))
		}
		if pb := scorePatternType(queryLower, template.PatternType); pb > 0 {
			score += pb * 0.2
			reasons = append(reasons, fmt.Sprintf("pattern match: %.2f", pb))
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	reason := "no significant match"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, ", ")
	}
	return score, reason
}

// scoreKeywords grades intent keywords against the query: exact phrase 2.0,
// all words present in any order 1.5, proportional partial credit up to
// 0.5, single-word hit 1.0. Normalized by twice the keyword count.
func scoreKeywords(queryLower string, queryWords map[string]bool, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	score := 0.0
	for _, keyword := range keywords {
		kw := strings.ToLower(keyword)

		if strings.Contains(queryLower, kw) {
			score += 2.0
			continue
		}

		kwWords := strings.Fields(kw)
		if len(kwWords) > 1 {
			present := 0
			for _, w := range kwWords {
				if queryWords[w] || strings.Contains(queryLower, w) {
					present++
				}
			}
			if present == len(kwWords) {
				score += 1.5
			} else if present > 0 {
				score += float64(present) / float64(len(kwWords)) * 0.5
			}
		} else if queryWords[kw] {
			score += 1.0
		}
	}

	normalized := score / (float64(len(keywords)) * 2.0)
	if normalized > 1.0 {
		return 1.0
	}
	return normalized
}

// scoreTables is the ratio of the template's tables that were detected in
// the query.
func scoreTables(detectedTables map[string]bool, tablesUsed []string) float64 {
	if len(tablesUsed) == 0 {
		return 0
	}
	matched := 0
	for _, t := range tablesUsed {
		if detectedTables[strings.ToLower(t)] {
			matched++
		}
	}
	return float64(matched) / float64(len(tablesUsed))
}

// scorePatternType awards a bonus when the query's wording matches the
// template's structural pattern.
func scorePatternType(queryLower, patternType string) float64 {
	var cues []string
	switch patternType {
	case "aggregate":
		cues = aggregateCues
	case "select_where_in":
		cues = inClauseCues
	default:
		return 0
	}
	for _, cue := range cues {
		if strings.Contains(queryLower, cue) {
			return 1.0
		}
	}
	return 0
}
