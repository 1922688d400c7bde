package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/sqlrag/backend/internal/domain/models"
	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

// pgPlaceholderRe rewrites Postgres-style $n placeholders to ? so the
// parser can consume compiler output for either dialect.
var pgPlaceholderRe = regexp.MustCompile(`\$\d+`)

// pgArrayMembershipRe rewrites the compiler's Postgres array-membership
// shape, "= ANY($n)", to an IN clause before parsing. The MySQL grammar
// only accepts ANY in front of a subquery, so the shape has no direct
// parseable equivalent; IN preserves the semantics the guard checks.
var pgArrayMembershipRe = regexp.MustCompile(`= ANY\(\$\d+\)`)

// SQLGuard is an AST-level defense over generated SQL. Where ValidateSQL
// scans text, the guard parses the statement and walks the tree, so it
// cannot be fooled by spacing or quoting tricks. It enforces: a single
// SELECT statement, no subqueries, no UNION, no denied column names, and
// only allowlisted tables.
type SQLGuard struct {
	allowedTables map[string]bool
	denyKeywords  []string
}

// NewSQLGuard builds a guard from allowlist rules.
func NewSQLGuard(rules models.AllowlistRules) *SQLGuard {
	allowed := make(map[string]bool, len(rules.AllowedTables))
	for table := range rules.AllowedTables {
		allowed[strings.ToLower(table)] = true
	}
	keywords := make([]string, len(rules.DenyKeywords))
	for i, kw := range rules.DenyKeywords {
		keywords[i] = strings.ToLower(kw)
	}
	return &SQLGuard{allowedTables: allowed, denyKeywords: keywords}
}

// Inspect parses the SQL and rejects anything that is not a plain
// allowlisted SELECT. The parser is constructed per call because it is not
// safe for concurrent use.
func (g *SQLGuard) Inspect(sql string) error {
	normalized := pgArrayMembershipRe.ReplaceAllString(sql, "IN (?)")
	normalized = pgPlaceholderRe.ReplaceAllString(normalized, "?")

	p := parser.New()
	// ANSI_QUOTES makes double-quoted identifiers parse as identifiers,
	// matching the compiler's quoting style.
	p.SetSQLMode(mysql.ModeANSIQuotes)

	stmtNodes, _, err := p.Parse(normalized, "", "")
	if err != nil {
		return pkgErrors.NewValidationError("sql", fmt.Sprintf("SQL parse error: %v", err))
	}
	if len(stmtNodes) != 1 {
		return pkgErrors.NewValidationError("sql", "only single SQL statements are allowed")
	}

	// A UNION/EXCEPT/INTERSECT arrives as a set operation, not a SelectStmt.
	stmt, ok := stmtNodes[0].(*ast.SelectStmt)
	if !ok {
		return pkgErrors.NewValidationError("sql", "only SELECT statements are allowed")
	}

	visitor := &guardVisitor{guard: g}
	stmt.Accept(visitor)
	if visitor.err != nil {
		return visitor.err
	}
	if visitor.selectCount > 1 {
		return pkgErrors.NewValidationError("sql", "subqueries are not allowed")
	}
	return nil
}

type guardVisitor struct {
	guard       *SQLGuard
	selectCount int
	err         error
}

func (v *guardVisitor) Enter(in ast.Node) (ast.Node, bool) {
	if v.err != nil {
		return in, true
	}

	switch node := in.(type) {
	case *ast.SelectStmt:
		v.selectCount++
	case *ast.SubqueryExpr:
		v.err = pkgErrors.NewValidationError("sql", "subqueries are not allowed")
		return in, true
	case *ast.SetOprStmt:
		v.err = pkgErrors.NewValidationError("sql", "set operations are not allowed")
		return in, true
	case *ast.TableName:
		name := strings.ToLower(node.Name.O)
		if name != "" && len(v.guard.allowedTables) > 0 && !v.guard.allowedTables[name] {
			v.err = pkgErrors.NewValidationError("sql", fmt.Sprintf(
				"access denied: table '%s' is not allowlisted", node.Name.O))
			return in, true
		}
	case *ast.ColumnName:
		colName := strings.ToLower(node.Name.O)
		for _, kw := range v.guard.denyKeywords {
			if strings.Contains(colName, kw) {
				v.err = pkgErrors.NewValidationError("sql", fmt.Sprintf(
					"access denied: column '%s' references a denied keyword", node.Name.O))
				return in, true
			}
		}
	}
	return in, false
}

func (v *guardVisitor) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}
