package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sqlrag/backend/internal/domain/models"
	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

// Match confidences and thresholds for table resolution.
const (
	confidenceExact     = 1.0
	confidenceAlias     = 0.95
	confidenceWordAlias = 0.85
	fuzzyThreshold      = 0.3
)

// genericColumnTerms are column-name segments that never identify a domain
// entity (customer_id -> "customer", but created_at -> nothing).
var genericColumnTerms = map[string]bool{
	"id": true, "at": true, "by": true, "is": true, "has": true,
	"created": true, "updated": true, "deleted": true,
	"date": true, "time": true, "timestamp": true, "status": true,
	"type": true, "active": true, "enabled": true,
	"version": true, "seq": true, "no": true, "num": true,
	"count": true, "total": true, "sum": true,
}

// TableMatcher resolves free-text table mentions against the tables a
// collection has actually exposed. Built once per collection; read-only
// after construction, so safe for concurrent use.
type TableMatcher struct {
	selectedTables  []string
	selectedColumns map[string][]string
	// tableAliases maps lowercase name/base/plural variants to tables.
	tableAliases map[string]string
	// wordAliases maps domain terms extracted from column names to tables.
	wordAliases map[string]string
}

// NewTableMatcher builds a matcher from a connection's selected tables and
// columns.
func NewTableMatcher(selectedTables []string, selectedColumns map[string][]string) *TableMatcher {
	m := &TableMatcher{
		selectedTables:  selectedTables,
		selectedColumns: selectedColumns,
		tableAliases:    make(map[string]string),
		wordAliases:     make(map[string]string),
	}
	for _, table := range selectedTables {
		m.buildAliases(table, selectedColumns[table])
	}
	return m
}

// extractDomainTerm returns the first column-name segment that is not a
// generic term: "customer_id" -> "customer", "province_code" -> "province".
func extractDomainTerm(column string) string {
	for _, part := range strings.Split(strings.ToLower(column), "_") {
		if part != "" && !genericColumnTerms[part] {
			return part
		}
	}
	return ""
}

func (m *TableMatcher) buildAliases(table string, columns []string) {
	lower := strings.ToLower(table)
	m.tableAliases[lower] = table

	base := strings.TrimSuffix(strings.TrimSuffix(lower, "_view"), "_table")
	if base != "" {
		m.tableAliases[base] = table
		m.wordAliases[base] = table

		if strings.HasSuffix(base, "s") {
			singular := strings.TrimSuffix(base, "s")
			m.tableAliases[singular] = table
			m.wordAliases[singular] = table
		} else {
			m.tableAliases[base+"s"] = table
		}
	}

	for _, column := range columns {
		term := extractDomainTerm(column)
		if term == "" {
			continue
		}
		if _, taken := m.tableAliases[term]; !taken {
			m.wordAliases[term] = table
		}
	}
}

// FindTable resolves the best matching table for a user query. Resolution
// order: single-table default, exact name, alias, word alias, fuzzy.
func (m *TableMatcher) FindTable(query string) (models.TableMatch, error) {
	queryLower := strings.ToLower(query)

	// A single selected table wins regardless of query content.
	if len(m.selectedTables) == 1 {
		return models.TableMatch{
			TableName:  m.selectedTables[0],
			Confidence: confidenceExact,
			MatchType:  models.MatchDefault,
		}, nil
	}

	if match, ok := m.tryExactMatch(queryLower); ok {
		return match, nil
	}
	if match, ok := m.tryAliasMatch(queryLower); ok {
		return match, nil
	}
	if match, ok := m.tryWordAliasMatch(queryLower); ok {
		return match, nil
	}
	if match, ok := m.tryFuzzyMatch(queryLower); ok {
		return match, nil
	}

	return models.TableMatch{}, pkgErrors.NewValidationError("table", fmt.Sprintf(
		"could not determine which table to query from: '%s'; available tables: %s; try specifying the table name explicitly",
		query, strings.Join(m.DisplayNames(), ", ")))
}

func (m *TableMatcher) tryExactMatch(query string) (models.TableMatch, bool) {
	for _, table := range m.selectedTables {
		if query == strings.ToLower(table) {
			return models.TableMatch{
				TableName:  table,
				Confidence: confidenceExact,
				MatchType:  models.MatchExact,
			}, true
		}
	}
	return models.TableMatch{}, false
}

func (m *TableMatcher) tryAliasMatch(query string) (models.TableMatch, bool) {
	if table, ok := m.tableAliases[query]; ok && m.isSelected(table) {
		return models.TableMatch{
			TableName:  table,
			Confidence: confidenceAlias,
			MatchType:  models.MatchAlias,
		}, true
	}
	return models.TableMatch{}, false
}

func (m *TableMatcher) tryWordAliasMatch(query string) (models.TableMatch, bool) {
	for _, word := range strings.Fields(query) {
		if table, ok := m.wordAliases[word]; ok && m.isSelected(table) {
			return models.TableMatch{
				TableName:  table,
				Confidence: confidenceWordAlias,
				MatchType:  models.MatchAlias,
			}, true
		}
	}
	return models.TableMatch{}, false
}

func (m *TableMatcher) tryFuzzyMatch(query string) (models.TableMatch, bool) {
	bestTable := ""
	bestConfidence := 0.0

	for _, table := range m.selectedTables {
		tableLower := strings.ToLower(table)

		if strings.Contains(tableLower, query) {
			confidence := float64(len(query)) / float64(len(tableLower))
			if confidence > bestConfidence {
				bestTable, bestConfidence = table, confidence
			}
		}
		if strings.Contains(query, tableLower) {
			confidence := float64(len(tableLower)) / float64(len(query))
			if confidence > bestConfidence {
				bestTable, bestConfidence = table, confidence
			}
		}
	}

	if bestTable != "" && bestConfidence >= fuzzyThreshold {
		return models.TableMatch{
			TableName:  bestTable,
			Confidence: bestConfidence,
			MatchType:  models.MatchFuzzy,
		}, true
	}
	return models.TableMatch{}, false
}

func (m *TableMatcher) isSelected(table string) bool {
	for _, t := range m.selectedTables {
		if t == table {
			return true
		}
	}
	return false
}

// ColumnsForTable returns the selected columns for a table, trying the
// common _view/_table suffix variants before giving up.
func (m *TableMatcher) ColumnsForTable(tableName string) []string {
	for _, variant := range []string{tableName, tableName + "_view", tableName + "_table"} {
		if columns, ok := m.selectedColumns[variant]; ok {
			return columns
		}
	}
	return nil
}

// HasColumn reports whether a column is among a table's selected columns.
func (m *TableMatcher) HasColumn(tableName, column string) bool {
	for _, c := range m.ColumnsForTable(tableName) {
		if c == column {
			return true
		}
	}
	return false
}

// DisplayNames returns the selected tables with _view/_table suffixes
// stripped, sorted for deterministic error messages.
func (m *TableMatcher) DisplayNames() []string {
	names := make([]string, 0, len(m.selectedTables))
	for _, t := range m.selectedTables {
		name := strings.TrimSuffix(strings.TrimSuffix(t, "_view"), "_table")
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtractTableMentions returns every table the query plausibly refers to,
// via direct names, aliases and word aliases, without duplicates.
func (m *TableMatcher) ExtractTableMentions(query string) []string {
	queryLower := strings.ToLower(query)
	seen := make(map[string]bool)
	mentions := make([]string, 0)

	add := func(table string) {
		if !seen[table] {
			seen[table] = true
			mentions = append(mentions, table)
		}
	}

	for _, table := range m.selectedTables {
		if strings.Contains(queryLower, strings.ToLower(table)) {
			add(table)
		}
	}
	for _, alias := range sortedKeys(m.tableAliases) {
		if strings.Contains(queryLower, alias) {
			add(m.tableAliases[alias])
		}
	}
	for _, word := range sortedKeys(m.wordAliases) {
		if strings.Contains(queryLower, word) {
			add(m.wordAliases[word])
		}
	}
	return mentions
}

// ScoreMatch scores how well a query refers to a table, in [0,1].
// Exact match scores 1.0; substring containment contributes 0.7 per
// direction, alias 0.9, word alias 0.8; the sum is capped at 1.0.
func (m *TableMatcher) ScoreMatch(query, tableName string) float64 {
	queryLower := strings.ToLower(query)
	tableLower := strings.ToLower(tableName)

	if queryLower == tableLower {
		return 1.0
	}

	score := 0.0
	if strings.Contains(tableLower, queryLower) {
		score += 0.7
	}
	if strings.Contains(queryLower, tableLower) {
		score += 0.7
	}
	if aliasTable, ok := m.tableAliases[queryLower]; ok && aliasTable == tableName {
		score += 0.9
	}
	for _, word := range strings.Fields(queryLower) {
		if aliasTable, ok := m.wordAliases[word]; ok && aliasTable == tableName {
			score += 0.8
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// FindAllMentionedTables scores every selected table against the query and
// returns those above the minimum threshold, best first. Ties break on
// table name so the ranking is deterministic.
func (m *TableMatcher) FindAllMentionedTables(query string) []models.TableMatch {
	matches := make([]models.TableMatch, 0)
	for _, table := range m.selectedTables {
		score := m.ScoreMatch(query, table)
		if score > fuzzyThreshold {
			matches = append(matches, models.TableMatch{TableName: table, Confidence: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].TableName < matches[j].TableName
	})
	return matches
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
