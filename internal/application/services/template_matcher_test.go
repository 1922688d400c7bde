package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlrag/backend/internal/domain/models"
)

func newTemplate(id int64, name string, keywords, tables []string, pattern string, priority int) models.QueryTemplate {
	return models.QueryTemplate{
		ID:              id,
		ProfileID:       1,
		Name:            name,
		IntentKeywords:  keywords,
		ExampleQuestion: "example question",
		QueryPattern:    "SELECT id FROM t WHERE x = ?",
		PatternType:     pattern,
		TablesUsed:      tables,
		Priority:        priority,
		IsEnabled:       true,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

func TestFindMatches_KeywordMatching(t *testing.T) {
	m := NewTemplateMatcher([]models.QueryTemplate{
		newTemplate(1, "Find users", []string{"find", "user"}, []string{"users_view"}, "select_where_eq", 10),
	})

	matches := m.FindMatches("Find user with id 123", []string{"users_view"}, 5)
	require.Len(t, matches, 1)
	assert.Greater(t, matches[0].Score, 0.3)
	assert.Contains(t, matches[0].Reason, "keyword match")
}

func TestFindMatches_TableOverlap(t *testing.T) {
	m := NewTemplateMatcher([]models.QueryTemplate{
		newTemplate(1, "Users query", nil, []string{"users_view"}, "select_where_eq", 10),
		newTemplate(2, "Orders query", nil, []string{"orders_view"}, "select_where_eq", 10),
	})

	matches := m.FindMatches("Get users", []string{"users_view"}, 5)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].Template.ID)
}

func TestFindMatches_PriorityBreaksTies(t *testing.T) {
	m := NewTemplateMatcher([]models.QueryTemplate{
		newTemplate(1, "Low priority", []string{"users"}, []string{"users_view"}, "select_where_eq", 1),
		newTemplate(2, "High priority", []string{"users"}, []string{"users_view"}, "select_where_eq", 100),
	})

	matches := m.FindMatches("Get users", []string{"users_view"}, 5)
	require.Len(t, matches, 2)
	assert.Equal(t, int64(2), matches[0].Template.ID)
	assert.Equal(t, int64(1), matches[1].Template.ID)
}

func TestFindMatches_NoMatches(t *testing.T) {
	m := NewTemplateMatcher([]models.QueryTemplate{
		newTemplate(1, "Orders", []string{"orders"}, []string{"orders_view"}, "select_where_eq", 10),
	})

	matches := m.FindMatches("Get products", []string{"products_view"}, 5)
	assert.Empty(t, matches)
}

func TestFindMatches_DisabledTemplatesExcluded(t *testing.T) {
	disabled := newTemplate(1, "Disabled", []string{"users"}, []string{"users_view"}, "select_where_eq", 10)
	disabled.IsEnabled = false

	m := NewTemplateMatcher([]models.QueryTemplate{disabled})
	assert.Empty(t, m.Templates())
	assert.Empty(t, m.FindMatches("Get users", []string{"users_view"}, 5))
}

func TestFindMatches_TruncatesToMax(t *testing.T) {
	templates := []models.QueryTemplate{
		newTemplate(1, "a", []string{"users"}, []string{"users_view"}, "select_where_eq", 1),
		newTemplate(2, "b", []string{"users"}, []string{"users_view"}, "select_where_eq", 2),
		newTemplate(3, "c", []string{"users"}, []string{"users_view"}, "select_where_eq", 3),
		newTemplate(4, "d", []string{"users"}, []string{"users_view"}, "select_where_eq", 4),
	}
	m := NewTemplateMatcher(templates)

	matches := m.FindMatches("show users", []string{"users_view"}, 3)
	assert.Len(t, matches, 3)
}

func TestFindMatches_PatternAgnosticIgnoresTables(t *testing.T) {
	agnostic := newTemplate(1, "Count anything", []string{"how many"}, nil, "aggregate", 10)
	agnostic.IsPatternAgnostic = true

	m := NewTemplateMatcher([]models.QueryTemplate{agnostic})

	matches := m.FindMatches("how many rows are there", nil, 5)
	require.Len(t, matches, 1)
	// Exact phrase keyword (0.6) plus aggregate pattern bonus (0.4).
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Contains(t, matches[0].Reason, "pattern-agnostic")
}

func TestScoreKeywords(t *testing.T) {
	queryWords := map[string]bool{"find": true, "user": true, "with": true, "id": true}

	// Exact phrase: 2.0 / (1*2) = 1.0.
	assert.InDelta(t, 1.0, scoreKeywords("find user with id", queryWords, []string{"find user"}), 1e-6)

	// Multi-word keyword with only one word present: partial credit
	// (1/2 * 0.5) / (1*2) = 0.125.
	assert.InDelta(t, 0.125, scoreKeywords("find something", map[string]bool{"find": true, "something": true}, []string{"find user"}), 1e-6)

	// No keywords at all scores zero.
	assert.Zero(t, scoreKeywords("anything", queryWords, nil))
}

func TestScorePatternType(t *testing.T) {
	assert.Equal(t, 1.0, scorePatternType("how many users", "aggregate"))
	assert.Equal(t, 0.0, scorePatternType("show users", "aggregate"))
	assert.Equal(t, 1.0, scorePatternType("users among (a, b)", "select_where_in"))
	assert.Equal(t, 0.0, scorePatternType("show users", "select_where_other"))
}

func TestScoreTables(t *testing.T) {
	detected := map[string]bool{"users_view": true}
	assert.Equal(t, 1.0, scoreTables(detected, []string{"users_view"}))
	assert.Equal(t, 0.5, scoreTables(detected, []string{"users_view", "orders_view"}))
	assert.Equal(t, 0.0, scoreTables(detected, nil))
}
