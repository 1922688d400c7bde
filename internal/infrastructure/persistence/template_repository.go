package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sqlrag/backend/internal/domain/models"
	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

// QueryTemplateRepository persists pre-authored query templates. The
// intent_keywords and tables_used columns hold JSON arrays.
type QueryTemplateRepository struct {
	db *sql.DB
}

func NewQueryTemplateRepository(db *sql.DB) *QueryTemplateRepository {
	return &QueryTemplateRepository{db: db}
}

// ListByProfile returns a profile's templates ordered by priority, highest
// first.
func (r *QueryTemplateRepository) ListByProfile(ctx context.Context, profileID int64) ([]models.QueryTemplate, error) {
	query := fmt.Sprintf(`SELECT id, allowlist_profile_id, name, description, intent_keywords,
		example_question, query_pattern, pattern_type, tables_used, priority,
		is_enabled, is_pattern_agnostic, created_at, updated_at
		FROM %s WHERE allowlist_profile_id = ? ORDER BY priority DESC, id`, TableQueryTemplates)

	rows, err := r.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, pkgErrors.NewDatabaseError("list query templates", err)
	}
	defer rows.Close()

	var templates []models.QueryTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgErrors.NewDatabaseError("iterate query templates", err)
	}
	return templates, nil
}

// ListEnabledByProfile returns only the enabled templates for a profile.
func (r *QueryTemplateRepository) ListEnabledByProfile(ctx context.Context, profileID int64) ([]models.QueryTemplate, error) {
	templates, err := r.ListByProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	enabled := templates[:0]
	for _, t := range templates {
		if t.IsEnabled {
			enabled = append(enabled, t)
		}
	}
	return enabled, nil
}

// Create inserts a template.
func (r *QueryTemplateRepository) Create(ctx context.Context, t *models.QueryTemplate) error {
	keywords, err := json.Marshal(t.IntentKeywords)
	if err != nil {
		return pkgErrors.NewInternalError("marshal intent keywords", err)
	}
	tables, err := json.Marshal(t.TablesUsed)
	if err != nil {
		return pkgErrors.NewInternalError("marshal tables used", err)
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO %s (allowlist_profile_id, name, description, intent_keywords,
		example_question, query_pattern, pattern_type, tables_used, priority,
		is_enabled, is_pattern_agnostic, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, TableQueryTemplates)

	result, err := r.db.ExecContext(ctx, query,
		t.ProfileID, t.Name, t.Description, string(keywords),
		t.ExampleQuestion, t.QueryPattern, t.PatternType, string(tables), t.Priority,
		t.IsEnabled, t.IsPatternAgnostic, now, now)
	if err != nil {
		return pkgErrors.NewDatabaseError("create query template", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return pkgErrors.NewDatabaseError("read query template id", err)
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// SetEnabled toggles a template.
func (r *QueryTemplateRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	query := fmt.Sprintf(`UPDATE %s SET is_enabled = ?, updated_at = ? WHERE id = ?`, TableQueryTemplates)
	result, err := r.db.ExecContext(ctx, query, enabled, time.Now().UTC(), id)
	if err != nil {
		return pkgErrors.NewDatabaseError("toggle query template", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return pkgErrors.NewDatabaseError("check template update", err)
	}
	if affected == 0 {
		return pkgErrors.NewNotFoundError("query template", fmt.Sprintf("%d", id))
	}
	return nil
}

func scanTemplate(rows *sql.Rows) (models.QueryTemplate, error) {
	var t models.QueryTemplate
	var keywords, tables string

	err := rows.Scan(&t.ID, &t.ProfileID, &t.Name, &t.Description, &keywords,
		&t.ExampleQuestion, &t.QueryPattern, &t.PatternType, &tables, &t.Priority,
		&t.IsEnabled, &t.IsPatternAgnostic, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.QueryTemplate{}, pkgErrors.NewDatabaseError("scan query template", err)
	}

	if err := json.Unmarshal([]byte(keywords), &t.IntentKeywords); err != nil {
		return models.QueryTemplate{}, pkgErrors.NewInternalError("decode intent keywords", err)
	}
	if err := json.Unmarshal([]byte(tables), &t.TablesUsed); err != nil {
		return models.QueryTemplate{}, pkgErrors.NewInternalError("decode tables used", err)
	}
	return t, nil
}
