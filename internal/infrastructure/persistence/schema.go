package persistence

import (
	"context"
	"database/sql"
	"fmt"

	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

// EnsureSchema creates the policy store tables if they do not exist. The
// DDL differs per driver only in the auto-increment spelling.
func EnsureSchema(ctx context.Context, db *sql.DB, driver string) error {
	var idColumn string
	switch driver {
	case "sqlite3":
		idColumn = "INTEGER PRIMARY KEY AUTOINCREMENT"
	default:
		idColumn = "BIGINT PRIMARY KEY AUTO_INCREMENT"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			name VARCHAR(255) NOT NULL UNIQUE,
			description TEXT,
			rules_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, TableAllowlistProfiles, idColumn),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			allowlist_profile_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			intent_keywords TEXT NOT NULL,
			example_question TEXT NOT NULL,
			query_pattern TEXT NOT NULL,
			pattern_type VARCHAR(64) NOT NULL,
			tables_used TEXT NOT NULL,
			priority INT NOT NULL DEFAULT 0,
			is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			is_pattern_agnostic BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, TableQueryTemplates, idColumn),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			collection_id BIGINT NOT NULL,
			question TEXT NOT NULL,
			generated_sql TEXT,
			param_count INT NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL,
			error_message TEXT,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`, TableQueryLogs),
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return pkgErrors.NewDatabaseError("ensure schema", err)
		}
	}
	return nil
}
