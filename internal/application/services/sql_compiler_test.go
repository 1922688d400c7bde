package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlrag/backend/internal/domain/models"
)

func TestCompile_SimpleSelectPostgres(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:   models.ModeExact,
		Table:  "users_view",
		Select: []string{"id", "username"},
		Filters: []models.QueryFilter{
			{Column: "id", Operator: models.OpEq, Values: []string{"123"}},
		},
		Limit: 1,
	}

	query, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "username" FROM "users_view" WHERE "id" = $1 LIMIT 1`, query.SQL)
	require.Len(t, query.Params, 1)
	assert.Equal(t, int64(123), query.Params[0])
}

func TestCompile_SimpleSelectSQLite(t *testing.T) {
	c := NewSQLiteCompiler()
	plan := &models.QueryPlan{
		Mode:   models.ModeExact,
		Table:  "users_view",
		Select: []string{"id", "username"},
		Filters: []models.QueryFilter{
			{Column: "username", Operator: models.OpEq, Values: []string{"admin"}},
		},
		Limit: 1,
	}

	query, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "username" FROM "users_view" WHERE "username" = ? LIMIT 1`, query.SQL)
	assert.Equal(t, []interface{}{"admin"}, query.Params)
}

func TestCompile_InClausePostgres(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:   models.ModeList,
		Table:  "users_view",
		Select: []string{"id", "username"},
		Filters: []models.QueryFilter{
			{Column: "status", Operator: models.OpIn, Values: []string{"active", "pending"}},
		},
		Limit: 50,
	}

	query, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, query.SQL, `"status" = ANY($1)`)
	// One array-typed parameter covers the whole list.
	require.Len(t, query.Params, 1)
	assert.Equal(t, []interface{}{"active", "pending"}, query.Params[0])
}

func TestCompile_InClauseSQLite(t *testing.T) {
	c := NewSQLiteCompiler()
	plan := &models.QueryPlan{
		Mode:   models.ModeList,
		Table:  "users_view",
		Select: []string{"id", "username"},
		Filters: []models.QueryFilter{
			{Column: "status", Operator: models.OpIn, Values: []string{"active", "pending"}},
		},
		Limit: 50,
	}

	query, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, query.SQL, `"status" IN (?, ?)`)
	assert.Equal(t, []interface{}{"active", "pending"}, query.Params)
}

func TestCompile_EmptyValueListFails(t *testing.T) {
	c := NewPostgresCompiler()
	operators := []string{models.OpEq, models.OpNeq, models.OpIn, models.OpLike, models.OpGt, "unknown_op"}

	for _, op := range operators {
		plan := &models.QueryPlan{
			Mode:   models.ModeExact,
			Table:  "users_view",
			Select: []string{"id"},
			Filters: []models.QueryFilter{
				{Column: "status", Operator: op, Values: nil},
			},
			Limit: 1,
		}

		_, err := c.Compile(plan)
		require.Error(t, err, "operator %s must not compile without values", op)
		assert.Contains(t, err.Error(), "requires at least one value")
	}
}

func TestCompile_PlaceholderNumberingSharedAcrossFilters(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:   models.ModeList,
		Table:  "orders_view",
		Select: []string{"id"},
		Filters: []models.QueryFilter{
			{Column: "status", Operator: models.OpEq, Values: []string{"active"}},
			{Column: "total", Operator: models.OpBetween, Values: []string{"100", "500"}},
			{Column: "user_id", Operator: models.OpGt, Values: []string{"7"}},
		},
		Limit: 50,
	}

	query, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, query.SQL, `"status" = $1`)
	assert.Contains(t, query.SQL, `"total" BETWEEN $2 AND $3`)
	assert.Contains(t, query.SQL, `"user_id" > $4`)
	assert.Equal(t, []interface{}{"active", int64(100), int64(500), int64(7)}, query.Params)
}

func TestCompile_OrderBy(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:    models.ModeList,
		Table:   "users_view",
		Select:  []string{"id"},
		Limit:   10,
		OrderBy: &models.OrderBy{Column: "created_at", Direction: "desc"},
	}

	query, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, query.SQL, `ORDER BY "created_at" DESC`)
}

func TestCompile_LikeWrapsValueInWildcards(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:   models.ModeList,
		Table:  "users_view",
		Select: []string{"id"},
		Filters: []models.QueryFilter{
			{Column: "username", Operator: models.OpContains, Values: []string{"adm"}},
		},
		Limit: 10,
	}

	query, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, query.SQL, `"username" LIKE $1`)
	assert.Equal(t, []interface{}{"%adm%"}, query.Params)
}

func TestCompile_NullOperatorsBindNothing(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:   models.ModeList,
		Table:  "users_view",
		Select: []string{"id"},
		Filters: []models.QueryFilter{
			{Column: "status", Operator: models.OpIsNull},
			{Column: "username", Operator: models.OpIsNotNull},
		},
		Limit: 10,
	}

	query, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, query.SQL, `"status" IS NULL`)
	assert.Contains(t, query.SQL, `"username" IS NOT NULL`)
	assert.Empty(t, query.Params)
}

func TestCompile_UnknownOperatorFallsBackToEquality(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:   models.ModeList,
		Table:  "users_view",
		Select: []string{"id"},
		Filters: []models.QueryFilter{
			{Column: "id", Operator: "bogus", Values: []string{"1"}},
		},
		Limit: 10,
	}

	query, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, query.SQL, `"id" = $1`)
}

func TestCompile_BetweenRequiresTwoValues(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:   models.ModeList,
		Table:  "orders_view",
		Select: []string{"id"},
		Filters: []models.QueryFilter{
			{Column: "total", Operator: models.OpBetween, Values: []string{"100"}},
		},
		Limit: 10,
	}

	_, err := c.Compile(plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly two values")
}

func TestCompile_RejectSelectStar(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:   models.ModeList,
		Table:  "users_view",
		Select: []string{"*"},
		Limit:  10,
	}

	_, err := c.Compile(plan)
	require.Error(t, err)
}

func TestCompile_RejectEmptySelect(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:  models.ModeList,
		Table: "users_view",
		Limit: 10,
	}

	_, err := c.Compile(plan)
	require.Error(t, err)
}

func TestCompile_RejectInvalidIdentifiers(t *testing.T) {
	c := NewPostgresCompiler()

	plan := &models.QueryPlan{
		Mode:   models.ModeList,
		Table:  "users; DROP TABLE users",
		Select: []string{"id"},
		Limit:  10,
	}
	_, err := c.Compile(plan)
	require.Error(t, err)

	plan = &models.QueryPlan{
		Mode:   models.ModeList,
		Table:  "users",
		Select: []string{"id, password"},
		Limit:  10,
	}
	_, err = c.Compile(plan)
	require.Error(t, err)

	plan = &models.QueryPlan{
		Mode:   models.ModeList,
		Table:  "users",
		Select: []string{"id"},
		Limit:  0,
	}
	_, err = c.Compile(plan)
	require.Error(t, err)
}

func TestCompile_LiteralValuesNeverInSQLText(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:   models.ModeExact,
		Table:  "users_view",
		Select: []string{"id", "username"},
		Filters: []models.QueryFilter{
			{Column: "username", Operator: models.OpEq, Values: []string{"sentinelvalue"}},
			{Column: "status", Operator: models.OpIn, Values: []string{"alpha", "beta"}},
		},
		Limit: 5,
	}

	query, err := c.Compile(plan)
	require.NoError(t, err)
	assert.NotContains(t, query.SQL, "sentinelvalue")
	assert.NotContains(t, query.SQL, "alpha")
	assert.NotContains(t, query.SQL, "beta")
}

func TestCompile_CreatedAtColumnNotBlocked(t *testing.T) {
	c := NewPostgresCompiler()
	plan := &models.QueryPlan{
		Mode:    models.ModeList,
		Table:   "users",
		Select:  []string{"id", "name", "created_at", "updated_at"},
		Limit:   5,
		OrderBy: &models.OrderBy{Column: "created_at", Direction: "desc"},
	}

	query, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, query.SQL, `"created_at"`)
}

func TestContainsWholeWord(t *testing.T) {
	assert.True(t, containsWholeWord("DROP TABLE USERS", "DROP"))
	assert.True(t, containsWholeWord("SELECT * FROM USERS; DROP TABLE USERS", "DROP"))
	assert.False(t, containsWholeWord("DROPDOWN", "DROP"))
	assert.False(t, containsWholeWord("CREATED_AT", "CREATE"))
	assert.False(t, containsWholeWord(`"CREATED_AT"`, "CREATE"))
	assert.True(t, containsWholeWord("CREATE TABLE", "CREATE"))
	assert.False(t, containsWholeWord("UPDATED_BY", "UPDATE"))
	assert.True(t, containsWholeWord("UPDATE USERS SET", "UPDATE"))
}

func TestCoerceValue(t *testing.T) {
	assert.Equal(t, int64(42), coerceValue("42"))
	assert.Equal(t, 3.14, coerceValue("3.14"))
	assert.Equal(t, true, coerceValue("TRUE"))
	assert.Equal(t, false, coerceValue("false"))
	assert.Equal(t, "admin", coerceValue("admin"))
	assert.Equal(t, int64(-7), coerceValue("-7"))
}

func TestQuoteIdentifier_DoublesEmbeddedQuotes(t *testing.T) {
	assert.Equal(t, `"users"`, quoteIdentifier("users"))
	assert.Equal(t, `"we""ird"`, quoteIdentifier(`we"ird`))
}

func TestDescribePlan(t *testing.T) {
	plan := &models.QueryPlan{
		Mode:   models.ModeExact,
		Table:  "users_view",
		Select: []string{"id"},
		Filters: []models.QueryFilter{
			{Column: "username", Operator: models.OpEq, Values: []string{"admin"}},
		},
		Limit:   50,
		OrderBy: &models.OrderBy{Column: "created_at", Direction: "desc"},
	}

	desc := describePlan(plan)
	assert.True(t, strings.HasPrefix(desc, "Query exact rows from users_view"))
	assert.Contains(t, desc, "username eq 'admin'")
	assert.Contains(t, desc, "ordered by created_at desc")
	assert.Contains(t, desc, "(limit 50)")
}
