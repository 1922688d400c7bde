package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sqlrag/backend/internal/domain/models"
	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

// Entity types recognized during extraction.
type entityType int

const (
	entityUsername entityType = iota
	entityEmail
	entityID
	entityStatus
	entityText
)

type extractedEntity struct {
	entityType entityType
	value      string
	columnHint string
}

type detectedIntent struct {
	mode      models.QueryMode
	tableHint string
	entities  []extractedEntity
	orderCol  string
	orderDir  string
	limitHint int
	hasLimit  bool
}

// The pattern lists are kept as ordered package-level data so tests can
// enumerate them. All matching runs on the lower-cased query.
var (
	exactPatterns = []*regexp.Regexp{
		regexp.MustCompile(`find\s+(\w+)\s+(?:with\s+)?(?:id|username|email)\s*[=:]\s*['"]?(\w+)['"]?`),
		regexp.MustCompile(`get\s+(\w+)\s+(?:where\s+)?(?:id|username)\s*[=:]\s*['"]?(\w+)['"]?`),
		regexp.MustCompile(`show\s+(\w+)\s+['"]?(\w+)['"]?$`),
		regexp.MustCompile(`(?:id|username|email)\s*[=:]\s*['"]?(\w+)['"]?`),
	}

	listKeywords = []string{"list all", "show all", "find all", "get all", "search for", "where"}

	orderByRe = regexp.MustCompile(`order\s+by\s+(\w+)\s*(asc|desc)?`)
	limitRe   = regexp.MustCompile(`(?:limit|top|first)\s+(\d+)`)

	usernameRe = regexp.MustCompile(`(?:user(?:name)?|name)\s*[=:]\s*['"]?(\w+)['"]?`)
	emailRe    = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	idRe       = regexp.MustCompile(`(?:id)\s*[=:]\s*(\d+)`)
	quotedRe   = regexp.MustCompile(`['"]([\w\s]+)['"]`)
	inListRe   = regexp.MustCompile(`(?:in|among)\s*\(([^)]+)\)`)

	statusKeywords = []string{"active", "inactive", "pending", "disabled", "enabled"}
)

// QueryPlanner converts a natural-language question into a structured
// QueryPlan via rule-based intent detection and entity extraction. It is
// stateless beyond its immutable configuration and safe for concurrent use.
type QueryPlanner struct {
	// availableTables maps allowlisted table names to their allowed columns.
	availableTables map[string][]string
	selectedTables  []string
	selectedColumns map[string][]string
	// tableAliases maps base/plural name variants to allowlisted tables.
	tableAliases map[string]string
	// columnAliases maps common synonyms to canonical column names.
	columnAliases map[string]string
	matcher       *TableMatcher
}

// NewQueryPlanner builds a planner from allowlist rules and the collection's
// selected tables and columns.
func NewQueryPlanner(rules models.AllowlistRules, selectedTables []string, selectedColumns map[string][]string) *QueryPlanner {
	tableAliases := make(map[string]string)
	for table := range rules.AllowedTables {
		base := strings.ReplaceAll(strings.ReplaceAll(table, "_view", ""), "_table", "")
		tableAliases[base] = table
		tableAliases[base+"s"] = table
		tableAliases[table] = table
	}

	columnAliases := map[string]string{
		"user":    "username",
		"name":    "username",
		"date":    "created_at",
		"created": "created_at",
	}

	return &QueryPlanner{
		availableTables: rules.AllowedTables,
		selectedTables:  selectedTables,
		selectedColumns: selectedColumns,
		tableAliases:    tableAliases,
		columnAliases:   columnAliases,
		matcher:         NewTableMatcher(selectedTables, selectedColumns),
	}
}

// NewQueryPlannerFromProfile parses a persisted profile's rules JSON and
// builds a planner from it.
func NewQueryPlannerFromProfile(profile *models.AllowlistProfile, selectedTables []string, selectedColumns map[string][]string) (*QueryPlanner, error) {
	rules, err := profile.Rules()
	if err != nil {
		return nil, err
	}
	return NewQueryPlanner(rules, selectedTables, selectedColumns), nil
}

// Matcher exposes the planner's table matcher for callers that need table
// mention detection (template matching).
func (p *QueryPlanner) Matcher() *TableMatcher {
	return p.matcher
}

// GeneratePlan builds a query plan from a natural-language query. The
// returned plan has not been validated; callers must run it through the
// allowlist validator before compiling.
func (p *QueryPlanner) GeneratePlan(query string, defaultLimit int) (*models.QueryPlan, error) {
	queryLower := strings.ToLower(query)

	intent := p.detectIntent(queryLower)

	table, err := p.resolveTable(&intent, queryLower)
	if err != nil {
		return nil, err
	}

	if len(p.selectedTables) > 0 && !contains(p.selectedTables, table) {
		return nil, pkgErrors.NewValidationError("table", fmt.Sprintf(
			"table '%s' is not selected for this collection; selected tables: %s",
			table, strings.Join(p.selectedTables, ", ")))
	}

	allowedColumns, ok := p.availableTables[table]
	if !ok {
		return nil, pkgErrors.NewValidationError("table", fmt.Sprintf("table '%s' not found in allowlist", table))
	}

	filters := p.buildFilters(&intent, allowedColumns)

	selectCols, err := p.determineSelectColumns(&intent, table, allowedColumns)
	if err != nil {
		return nil, err
	}

	var orderBy *models.OrderBy
	if intent.orderCol != "" {
		col := intent.orderCol
		if resolved, ok := p.columnAliases[col]; ok {
			col = resolved
		}
		if contains(allowedColumns, col) {
			orderBy = &models.OrderBy{Column: col, Direction: intent.orderDir}
		}
	}

	limit := defaultLimit
	if intent.hasLimit {
		limit = intent.limitHint
	}

	return &models.QueryPlan{
		Mode:    intent.mode,
		Table:   table,
		Select:  selectCols,
		Filters: filters,
		Limit:   limit,
		OrderBy: orderBy,
	}, nil
}

func (p *QueryPlanner) detectIntent(query string) detectedIntent {
	intent := detectedIntent{mode: models.ModeList}

	for _, re := range exactPatterns {
		if re.MatchString(query) {
			intent.mode = models.ModeExact
			break
		}
	}

	// List keywords override an exact match.
	for _, kw := range listKeywords {
		if strings.Contains(query, kw) {
			intent.mode = models.ModeList
		}
	}

	// Alias keys are sorted so the hint is deterministic when several match.
	for _, alias := range sortedKeys(p.tableAliases) {
		if strings.Contains(query, alias) {
			intent.tableHint = p.tableAliases[alias]
			break
		}
	}

	intent.entities = p.extractEntities(query)

	if strings.Contains(query, "latest") || strings.Contains(query, "newest") || strings.Contains(query, "recent") {
		intent.orderCol, intent.orderDir = "created_at", "desc"
	} else if strings.Contains(query, "oldest") || strings.Contains(query, "first") {
		intent.orderCol, intent.orderDir = "created_at", "asc"
	}

	if caps := orderByRe.FindStringSubmatch(query); caps != nil {
		intent.orderCol = caps[1]
		intent.orderDir = caps[2]
		if intent.orderDir == "" {
			intent.orderDir = "asc"
		}
	}

	if caps := limitRe.FindStringSubmatch(query); caps != nil {
		if n, err := strconv.Atoi(caps[1]); err == nil {
			intent.limitHint = n
			intent.hasLimit = true
		}
	}

	return intent
}

func (p *QueryPlanner) extractEntities(query string) []extractedEntity {
	var entities []extractedEntity

	for _, caps := range usernameRe.FindAllStringSubmatch(query, -1) {
		entities = append(entities, extractedEntity{
			entityType: entityUsername,
			value:      caps[1],
			columnHint: "username",
		})
	}

	for _, match := range emailRe.FindAllString(query, -1) {
		entities = append(entities, extractedEntity{
			entityType: entityEmail,
			value:      match,
			columnHint: "email",
		})
	}

	for _, caps := range idRe.FindAllStringSubmatch(query, -1) {
		entities = append(entities, extractedEntity{
			entityType: entityID,
			value:      caps[1],
			columnHint: "id",
		})
	}

	for _, status := range statusKeywords {
		if strings.Contains(query, status) {
			entities = append(entities, extractedEntity{
				entityType: entityStatus,
				value:      status,
				columnHint: "status",
			})
		}
	}

	for _, caps := range quotedRe.FindAllStringSubmatch(query, -1) {
		value := caps[1]
		duplicate := false
		for _, e := range entities {
			if e.value == value {
				duplicate = true
				break
			}
		}
		if !duplicate {
			entities = append(entities, extractedEntity{entityType: entityText, value: value})
		}
	}

	for _, caps := range inListRe.FindAllStringSubmatch(query, -1) {
		for _, raw := range strings.Split(caps[1], ",") {
			value := strings.Trim(strings.TrimSpace(raw), `'"`)
			if value != "" {
				entities = append(entities, extractedEntity{entityType: entityText, value: value})
			}
		}
	}

	return entities
}

func (p *QueryPlanner) resolveTable(intent *detectedIntent, query string) (string, error) {
	if intent.tableHint != "" && contains(p.selectedTables, intent.tableHint) {
		return intent.tableHint, nil
	}

	match, err := p.matcher.FindTable(query)
	if err == nil {
		return match.TableName, nil
	}

	// Username and email entities imply the user-like table.
	for _, entity := range intent.entities {
		if entity.entityType == entityUsername || entity.entityType == entityEmail {
			if table, ok := p.tableAliases["user"]; ok && contains(p.selectedTables, table) {
				return table, nil
			}
		}
	}

	if len(p.selectedTables) == 1 {
		return p.selectedTables[0], nil
	}

	return "", pkgErrors.NewValidationError("table", fmt.Sprintf(
		"%s; available tables in this collection: %s",
		err.Error(), strings.Join(p.matcher.DisplayNames(), ", ")))
}

func (p *QueryPlanner) buildFilters(intent *detectedIntent, allowedColumns []string) []models.QueryFilter {
	byColumn := make(map[string][]string)

	for _, entity := range intent.entities {
		column := entity.columnHint
		if column != "" {
			if resolved, ok := p.columnAliases[column]; ok {
				column = resolved
			}
		} else {
			switch entity.entityType {
			case entityUsername:
				column = "username"
			case entityEmail:
				column = "email"
			case entityStatus:
				column = "status"
			default:
				column = "id"
			}
		}

		if contains(allowedColumns, column) {
			byColumn[column] = append(byColumn[column], entity.value)
		}
	}

	filters := make([]models.QueryFilter, 0, len(byColumn))
	for _, column := range sortedFilterColumns(byColumn) {
		values := byColumn[column]
		operator := models.OpEq
		if len(values) > 1 {
			operator = models.OpIn
		}
		filters = append(filters, models.QueryFilter{
			Column:   column,
			Operator: operator,
			Values:   values,
		})
	}
	return filters
}

// determineSelectColumns picks the column list for the resolved table,
// preferring its explicitly selected columns over the allowlist set.
func (p *QueryPlanner) determineSelectColumns(intent *detectedIntent, table string, allowedColumns []string) ([]string, error) {
	baseColumns := allowedColumns
	if columns, ok := p.selectedColumns[table]; ok {
		baseColumns = columns
	} else if alias, ok := p.tableAliases[table]; ok {
		if columns, ok := p.selectedColumns[alias]; ok {
			baseColumns = columns
		}
	}

	filtered := make([]string, 0, len(baseColumns))
	for _, c := range baseColumns {
		if c != "*" && contains(allowedColumns, c) {
			filtered = append(filtered, c)
		}
	}

	if intent.mode == models.ModeExact {
		if len(filtered) == 0 {
			return nil, pkgErrors.NewValidationError("select", fmt.Sprintf("no accessible columns found for table '%s'", table))
		}
		return filtered, nil
	}

	// List mode selects a small useful subset: priority columns first, then
	// remaining allowed columns up to the cap.
	priorityCols := []string{"id", "username", "name", "status", "created_at", "title"}
	const maxListColumns = 8

	selected := make([]string, 0, maxListColumns)
	for _, col := range priorityCols {
		if contains(filtered, col) {
			selected = append(selected, col)
		}
	}
	for _, col := range filtered {
		if len(selected) >= maxListColumns {
			break
		}
		if !contains(selected, col) {
			selected = append(selected, col)
		}
	}

	if len(selected) == 0 {
		if len(filtered) == 0 {
			return nil, pkgErrors.NewValidationError("select", fmt.Sprintf("no accessible columns found for table '%s'", table))
		}
		return filtered, nil
	}
	return selected, nil
}

func sortedFilterColumns(byColumn map[string][]string) []string {
	columns := make([]string, 0, len(byColumn))
	for c := range byColumn {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
