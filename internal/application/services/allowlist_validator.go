package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sqlrag/backend/internal/domain/models"
)

// AllowlistValidator is the deny-by-default security gate between the
// planner and the compiler. It validates a query plan against the
// declarative allowlist rules plus the collection's selected-table scope,
// and offers a secondary textual check over raw SQL. Immutable after
// construction; safe for concurrent use.
type AllowlistValidator struct {
	rules          models.AllowlistRules
	selectedTables map[string]bool
}

// NewAllowlistValidator builds a validator from rules. Pass selectedTables
// to additionally enforce the collection scope; an empty list disables
// that check.
func NewAllowlistValidator(rules models.AllowlistRules, selectedTables []string) *AllowlistValidator {
	selected := make(map[string]bool, len(selectedTables))
	for _, t := range selectedTables {
		selected[t] = true
	}
	return &AllowlistValidator{rules: rules, selectedTables: selected}
}

// NewAllowlistValidatorFromProfile parses a persisted profile's rules JSON
// and builds a validator from it.
func NewAllowlistValidatorFromProfile(profile *models.AllowlistProfile, selectedTables []string) (*AllowlistValidator, error) {
	rules, err := profile.Rules()
	if err != nil {
		return nil, err
	}
	return NewAllowlistValidator(rules, selectedTables), nil
}

// ValidatePlan runs the ordered check sequence over a plan. The first two
// checks are critical: they return immediately with a single error so the
// response cannot leak schema details about tables the caller may not see.
// All remaining violations accumulate into one result.
func (v *AllowlistValidator) ValidatePlan(plan *models.QueryPlan) *models.ValidationResult {
	result := models.NewValidationResult()

	// 1. Table must be within the collection's selected scope.
	if len(v.selectedTables) > 0 && !v.selectedTables[plan.Table] {
		result.AddError(models.CodeTableNotSelected, fmt.Sprintf(
			"table '%s' is not selected for this collection; selected tables: %s",
			plan.Table, strings.Join(v.sortedSelectedTables(), ", ")), "table")
		return result
	}

	// 2. Table must be in the allowlist.
	allowedColumns, ok := v.rules.AllowedTables[plan.Table]
	if !ok {
		result.AddError(models.CodeTableNotAllowed, fmt.Sprintf(
			"table '%s' is not in the allowlist; allowed tables: %s",
			plan.Table, strings.Join(v.AllowedTables(), ", ")), "table")
		return result
	}

	allowedSet := make(map[string]bool, len(allowedColumns))
	for _, c := range allowedColumns {
		allowedSet[c] = true
	}

	// 3. Selected columns must be allowed.
	for _, col := range plan.Select {
		if col != "*" && !allowedSet[col] {
			result.AddError(models.CodeColumnNotAllowed, fmt.Sprintf(
				"column '%s' is not allowed for table '%s'; allowed columns: %s",
				col, plan.Table, strings.Join(allowedColumns, ", ")), "select")
		}
	}

	// 4. Wildcard selection is discouraged but not fatal here; the compiler
	// rejects it outright.
	if contains(plan.Select, "*") {
		result.AddWarning("consider using explicit column names instead of SELECT *")
	}

	// 5. At least one required filter column must be present.
	if required := v.rules.RequireFilters[plan.Table]; len(required) > 0 {
		hasRequired := false
		for _, r := range required {
			for _, f := range plan.Filters {
				if f.Column == r {
					hasRequired = true
					break
				}
			}
		}
		if !hasRequired {
			result.AddError(models.CodeMissingRequiredFilter, fmt.Sprintf(
				"table '%s' requires at least one of these filters: %s",
				plan.Table, strings.Join(required, ", ")), "filters")
		}
	}

	// 6. Filter columns must be allowed.
	for _, filter := range plan.Filters {
		if !allowedSet[filter.Column] {
			result.AddError(models.CodeFilterColumnNotAllowed, fmt.Sprintf(
				"filter column '%s' is not allowed for table '%s'",
				filter.Column, plan.Table), "filters")
		}
	}

	// 7. Filter count cap.
	if len(plan.Filters) > v.rules.MaxFilters {
		result.AddError(models.CodeTooManyFilters, fmt.Sprintf(
			"query has %d filters, maximum allowed is %d",
			len(plan.Filters), v.rules.MaxFilters), "filters")
	}

	// 8. IN-list size cap and between arity.
	for _, filter := range plan.Filters {
		if filter.Operator == models.OpIn && len(filter.Values) > v.rules.MaxInListSize {
			result.AddError(models.CodeInListTooLarge, fmt.Sprintf(
				"IN clause for '%s' has %d values, maximum allowed is %d",
				filter.Column, len(filter.Values), v.rules.MaxInListSize), filter.Column)
		}
		if filter.Operator == models.OpBetween && len(filter.Values) != 2 {
			result.AddError(models.CodeBetweenRequiresTwo, fmt.Sprintf(
				"BETWEEN filter on '%s' requires exactly two values, got %d",
				filter.Column, len(filter.Values)), filter.Column)
		}
	}

	// 9. Joins.
	if len(plan.Joins) > 0 {
		if !v.rules.AllowJoins {
			result.AddError(models.CodeJoinsNotAllowed,
				"JOIN operations are not allowed in this profile", "joins")
		}
		for _, join := range plan.Joins {
			if _, ok := v.rules.AllowedTables[join.Table]; !ok {
				result.AddError(models.CodeJoinTableNotAllowed, fmt.Sprintf(
					"join table '%s' is not in the allowlist", join.Table), "joins")
			}
		}
	}

	// 10. Over-limit is clamped, not rejected.
	if plan.Limit > v.rules.MaxLimit {
		adjusted := v.rules.MaxLimit
		result.AdjustedLimit = &adjusted
		result.AddWarning(fmt.Sprintf(
			"limit %d exceeds maximum %d, will be clamped", plan.Limit, v.rules.MaxLimit))
	}

	// 11. Order column must be allowed.
	if plan.OrderBy != nil && !allowedSet[plan.OrderBy.Column] {
		result.AddError(models.CodeOrderColumnNotAllowed, fmt.Sprintf(
			"order by column '%s' is not allowed for table '%s'",
			plan.OrderBy.Column, plan.Table), "order_by")
	}

	return result
}

// ValidateSQL is a secondary textual defense over raw SQL, independent of
// plan validation. It catches statement keywords, sensitive column
// references, subqueries, UNION and comment markers that a non-plan code
// path might have smuggled in.
func (v *AllowlistValidator) ValidateSQL(sql string) *models.ValidationResult {
	result := models.NewValidationResult()
	sqlUpper := strings.ToUpper(sql)
	sqlLower := strings.ToLower(sql)

	for _, stmt := range v.rules.DenyStatements {
		stmtUpper := strings.ToUpper(stmt)
		if strings.HasPrefix(sqlUpper, stmtUpper) ||
			strings.Contains(sqlUpper, " "+stmtUpper+" ") ||
			strings.Contains(sqlUpper, ";"+stmtUpper) ||
			strings.Contains(sqlUpper, "("+stmtUpper) {
			result.AddError(models.CodeForbiddenStatement, fmt.Sprintf(
				"SQL statement '%s' is not allowed", stmt), "")
		}
	}

	// Keywords are only denied when they look like a column or field
	// reference, so legitimate string values stay usable.
	for _, keyword := range v.rules.DenyKeywords {
		kw := strings.ToLower(keyword)
		if strings.Contains(sqlLower, "."+kw) ||
			strings.Contains(sqlLower, kw+" =") ||
			strings.Contains(sqlLower, kw+",") ||
			strings.Contains(sqlLower, "select "+kw) {
			result.AddError(models.CodeForbiddenKeyword, fmt.Sprintf(
				"column or field containing '%s' is not allowed to be queried", keyword), "")
		}
	}

	if strings.Count(sqlUpper, "SELECT") > 1 {
		result.AddError(models.CodeSubqueryNotAllowed, "subqueries are not allowed", "")
	}
	if strings.Contains(sqlUpper, "UNION") {
		result.AddError(models.CodeUnionNotAllowed, "UNION queries are not allowed", "")
	}
	if strings.Contains(sql, "--") || strings.Contains(sql, "/*") {
		result.AddError(models.CodeCommentsNotAllowed, "SQL comments are not allowed", "")
	}

	return result
}

// EffectiveLimit clamps a requested limit to the configured maximum.
func (v *AllowlistValidator) EffectiveLimit(requested int) int {
	if requested > v.rules.MaxLimit {
		return v.rules.MaxLimit
	}
	return requested
}

// AllowedTables returns the allowlisted table names, sorted.
func (v *AllowlistValidator) AllowedTables() []string {
	tables := make([]string, 0, len(v.rules.AllowedTables))
	for t := range v.rules.AllowedTables {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// AllowedColumns returns the allowed columns for a table, or nil if the
// table is not allowlisted.
func (v *AllowlistValidator) AllowedColumns(table string) []string {
	return v.rules.AllowedTables[table]
}

// IsColumnAllowed reports whether a table/column pair is allowlisted.
func (v *AllowlistValidator) IsColumnAllowed(table, column string) bool {
	return contains(v.rules.AllowedTables[table], column)
}

func (v *AllowlistValidator) sortedSelectedTables() []string {
	tables := make([]string, 0, len(v.selectedTables))
	for t := range v.selectedTables {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}
