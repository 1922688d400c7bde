package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlrag/backend/internal/domain/models"
)

func newTestGuard() *SQLGuard {
	rules := models.DefaultAllowlistRules()
	rules.AllowedTables = map[string][]string{
		"users_view":  {"id", "username", "status", "created_at"},
		"orders_view": {"id", "user_id", "total"},
	}
	return NewSQLGuard(rules)
}

func TestGuard_AcceptsCompiledPostgresOutput(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`SELECT "id", "username" FROM "users_view" WHERE "username" = $1 LIMIT 50`)
	assert.NoError(t, err)
}

func TestGuard_AcceptsPostgresArrayMembership(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`SELECT "id", "username" FROM "users_view" WHERE "status" = ANY($1) LIMIT 50`)
	assert.NoError(t, err)
}

func TestGuard_AcceptsMixedPostgresFilters(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`SELECT "id" FROM "users_view" WHERE "username" = $1 AND "status" = ANY($2) LIMIT 50`)
	assert.NoError(t, err)
}

func TestGuard_ArrayMembershipStillChecksTable(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`SELECT "id" FROM "secret_table" WHERE "status" = ANY($1) LIMIT 1`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret_table")
}

func TestGuard_AcceptsCompiledSQLiteOutput(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`SELECT "id", "username" FROM "users_view" WHERE "status" IN (?, ?) LIMIT 50`)
	assert.NoError(t, err)
}

func TestGuard_RejectsNonSelect(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`DELETE FROM "users_view" WHERE "id" = ?`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SELECT")
}

func TestGuard_RejectsMultipleStatements(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`SELECT "id" FROM "users_view"; SELECT "id" FROM "orders_view"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single")
}

func TestGuard_RejectsSubquery(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`SELECT "id" FROM "users_view" WHERE "id" IN (SELECT "user_id" FROM "orders_view")`)
	require.Error(t, err)
}

func TestGuard_RejectsUnion(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`SELECT "id" FROM "users_view" UNION SELECT "id" FROM "orders_view"`)
	require.Error(t, err)
}

func TestGuard_RejectsNonAllowlistedTable(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`SELECT "id" FROM "secret_table" LIMIT 1`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret_table")
}

func TestGuard_RejectsDeniedColumnKeyword(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`SELECT "password_hash" FROM "users_view" LIMIT 1`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password_hash")
}

func TestGuard_ParseErrorIsRejected(t *testing.T) {
	g := newTestGuard()

	err := g.Inspect(`SELECT FROM WHERE`)
	require.Error(t, err)
}
