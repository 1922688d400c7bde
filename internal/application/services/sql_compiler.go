package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sqlrag/backend/internal/domain/models"
	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

// Dialect selects the placeholder and IN-clause syntax for the generated SQL.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// selectOnlyDenylist are statement keywords that must never appear in
// compiled output, matched as whole words.
var selectOnlyDenylist = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"CREATE", "GRANT", "REVOKE", "PRAGMA", "ATTACH", "DETACH",
}

// SQLCompiler turns a validated query plan into parameterized SQL. Every
// filter value is bound as a parameter, the column list is always explicit
// and a LIMIT clause is always emitted. Stateless; safe for concurrent use.
type SQLCompiler struct {
	dialect Dialect
}

func NewSQLCompiler(dialect Dialect) *SQLCompiler {
	return &SQLCompiler{dialect: dialect}
}

func NewPostgresCompiler() *SQLCompiler {
	return NewSQLCompiler(DialectPostgres)
}

func NewSQLiteCompiler() *SQLCompiler {
	return NewSQLCompiler(DialectSQLite)
}

// Compile produces a parameterized query from a plan. Callers must have
// run the plan through the allowlist validator first; the structural checks
// here are a last line of defense, not a policy gate.
func (c *SQLCompiler) Compile(plan *models.QueryPlan) (*models.CompiledQuery, error) {
	if err := c.checkPlan(plan); err != nil {
		return nil, err
	}

	if len(plan.Select) == 0 || contains(plan.Select, "*") {
		return nil, pkgErrors.NewValidationError("select", fmt.Sprintf(
			"explicit column list required for table '%s' (found empty or SELECT *)", plan.Table))
	}

	quoted := make([]string, len(plan.Select))
	for i, col := range plan.Select {
		quoted[i] = quoteIdentifier(col)
	}

	var params []interface{}
	paramIndex := 1

	whereClause, whereParams, err := c.buildWhereClause(plan.Filters, &paramIndex)
	if err != nil {
		return nil, err
	}
	params = append(params, whereParams...)

	parts := []string{
		"SELECT " + strings.Join(quoted, ", "),
		"FROM " + quoteIdentifier(plan.Table),
	}
	if whereClause != "" {
		parts = append(parts, "WHERE "+whereClause)
	}
	if plan.OrderBy != nil {
		direction := "ASC"
		if strings.EqualFold(plan.OrderBy.Direction, "desc") {
			direction = "DESC"
		}
		parts = append(parts, "ORDER BY "+quoteIdentifier(plan.OrderBy.Column)+" "+direction)
	}
	parts = append(parts, fmt.Sprintf("LIMIT %d", plan.Limit))

	sql := strings.Join(parts, " ")

	if err := verifySelectOnly(sql); err != nil {
		return nil, err
	}

	return &models.CompiledQuery{
		SQL:         sql,
		Params:      params,
		Description: describePlan(plan),
	}, nil
}

// checkPlan rejects structurally invalid plans before any SQL is assembled.
func (c *SQLCompiler) checkPlan(plan *models.QueryPlan) error {
	if plan.Table == "" || !isValidIdentifier(plan.Table) {
		return pkgErrors.NewValidationError("table", fmt.Sprintf("invalid table name: %s", plan.Table))
	}
	for _, col := range plan.Select {
		if col != "*" && !isValidIdentifier(col) {
			return pkgErrors.NewValidationError("select", fmt.Sprintf("invalid column name: %s", col))
		}
	}
	if plan.Limit <= 0 {
		return pkgErrors.NewValidationError("limit", "limit must be a positive number")
	}
	for _, filter := range plan.Filters {
		if !isValidIdentifier(filter.Column) {
			return pkgErrors.NewValidationError("filters", fmt.Sprintf("invalid filter column: %s", filter.Column))
		}
	}
	if plan.OrderBy != nil && !isValidIdentifier(plan.OrderBy.Column) {
		return pkgErrors.NewValidationError("order_by", fmt.Sprintf("invalid order by column: %s", plan.OrderBy.Column))
	}
	return nil
}

func (c *SQLCompiler) buildWhereClause(filters []models.QueryFilter, paramIndex *int) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	conditions := make([]string, 0, len(filters))
	var params []interface{}

	for _, filter := range filters {
		condition, filterParams, err := c.buildFilterCondition(filter, paramIndex)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, condition)
		params = append(params, filterParams...)
	}

	return strings.Join(conditions, " AND "), params, nil
}

func (c *SQLCompiler) buildFilterCondition(filter models.QueryFilter, paramIndex *int) (string, []interface{}, error) {
	column := quoteIdentifier(filter.Column)
	var params []interface{}

	operator := strings.ToLower(filter.Operator)

	// Every operator except the null checks binds at least one value;
	// emitting a placeholder with nothing to bind would leave it unbound.
	if operator != models.OpIsNull && operator != models.OpIsNotNull && len(filter.Values) == 0 {
		return "", nil, pkgErrors.NewValidationError(filter.Column, fmt.Sprintf(
			"filter on '%s' with operator '%s' requires at least one value", filter.Column, filter.Operator))
	}

	single := func(op string) string {
		placeholder := c.placeholder(*paramIndex)
		*paramIndex++
		params = append(params, coerceValue(filter.Values[0]))
		return fmt.Sprintf("%s %s %s", column, op, placeholder)
	}

	switch operator {
	case models.OpEq, "=", "equals":
		return single("="), params, nil
	case models.OpNeq, "!=", "not_equals":
		return single("!="), params, nil
	case models.OpIn:
		if c.dialect == DialectPostgres {
			placeholder := c.placeholder(*paramIndex)
			*paramIndex++
			array := make([]interface{}, len(filter.Values))
			for i, v := range filter.Values {
				array[i] = coerceValue(v)
			}
			params = append(params, array)
			return fmt.Sprintf("%s = ANY(%s)", column, placeholder), params, nil
		}
		placeholders := make([]string, len(filter.Values))
		for i, v := range filter.Values {
			placeholders[i] = c.placeholder(*paramIndex)
			*paramIndex++
			params = append(params, coerceValue(v))
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), params, nil
	case models.OpLike, models.OpContains:
		placeholder := c.placeholder(*paramIndex)
		*paramIndex++
		params = append(params, "%"+filter.Values[0]+"%")
		return fmt.Sprintf("%s LIKE %s", column, placeholder), params, nil
	case models.OpGte, ">=":
		return single(">="), params, nil
	case models.OpLte, "<=":
		return single("<="), params, nil
	case models.OpGt, ">":
		return single(">"), params, nil
	case models.OpLt, "<":
		return single("<"), params, nil
	case models.OpBetween:
		// Exactly two bounds are required; emitting fewer would leave a
		// placeholder unbound.
		if len(filter.Values) != 2 {
			return "", nil, pkgErrors.NewValidationError(filter.Column, fmt.Sprintf(
				"BETWEEN filter on '%s' requires exactly two values, got %d",
				filter.Column, len(filter.Values)))
		}
		p1 := c.placeholder(*paramIndex)
		*paramIndex++
		p2 := c.placeholder(*paramIndex)
		*paramIndex++
		params = append(params, coerceValue(filter.Values[0]), coerceValue(filter.Values[1]))
		return fmt.Sprintf("%s BETWEEN %s AND %s", column, p1, p2), params, nil
	case models.OpIsNull:
		return column + " IS NULL", nil, nil
	case models.OpIsNotNull:
		return column + " IS NOT NULL", nil, nil
	default:
		// Unrecognized operators degrade to equality.
		return single("="), params, nil
	}
}

func (c *SQLCompiler) placeholder(index int) string {
	if c.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", index)
	}
	return "?"
}

// quoteIdentifier wraps a table or column name in double quotes, doubling
// any embedded quote character.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// isValidIdentifier accepts names starting with an ASCII letter or
// underscore followed by letters, digits or underscores.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// coerceValue converts a string filter value to a typed parameter: integer,
// then float, then boolean, else the string itself. All inputs arrive as
// text, so this is best effort.
func coerceValue(value string) interface{} {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}

// verifySelectOnly is the final defense over assembled SQL: it must start
// with SELECT and must not contain any denylisted statement keyword as a
// whole word. Whole-word matching keeps identifiers like "created_at" from
// tripping on CREATE.
func verifySelectOnly(sql string) error {
	sqlUpper := strings.ToUpper(strings.TrimSpace(sql))

	if !strings.HasPrefix(sqlUpper, "SELECT") {
		return pkgErrors.NewValidationError("sql", "query must start with SELECT")
	}

	for _, keyword := range selectOnlyDenylist {
		if containsWholeWord(sqlUpper, keyword) {
			return pkgErrors.NewValidationError("sql", fmt.Sprintf("SQL contains forbidden keyword: %s", keyword))
		}
	}
	return nil
}

// containsWholeWord reports whether keyword occurs in text with
// non-alphanumeric bytes (or string edges) on both sides.
func containsWholeWord(text, keyword string) bool {
	if len(keyword) > len(text) {
		return false
	}
	for i := 0; i+len(keyword) <= len(text); i++ {
		if text[i:i+len(keyword)] != keyword {
			continue
		}
		beforeOK := i == 0 || !isAlphanumeric(text[i-1])
		afterOK := i+len(keyword) == len(text) || !isAlphanumeric(text[i+len(keyword)])
		if beforeOK && afterOK {
			return true
		}
	}
	return false
}

func isAlphanumeric(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// describePlan renders a short human-readable summary of the query.
func describePlan(plan *models.QueryPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query %s rows from %s", plan.Mode, plan.Table)

	if len(plan.Filters) > 0 {
		descs := make([]string, len(plan.Filters))
		for i, f := range plan.Filters {
			if len(f.Values) == 1 {
				descs[i] = fmt.Sprintf("%s %s '%s'", f.Column, f.Operator, f.Values[0])
			} else {
				descs[i] = fmt.Sprintf("%s %s [%s]", f.Column, f.Operator, strings.Join(f.Values, ", "))
			}
		}
		b.WriteString(" where " + strings.Join(descs, " and "))
	}

	if plan.OrderBy != nil {
		fmt.Fprintf(&b, " ordered by %s %s", plan.OrderBy.Column, plan.OrderBy.Direction)
	}
	fmt.Fprintf(&b, " (limit %d)", plan.Limit)
	return b.String()
}
