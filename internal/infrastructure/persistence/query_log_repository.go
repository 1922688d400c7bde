package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sqlrag/backend/internal/domain/models"
	"github.com/sqlrag/backend/internal/domain/ports"
	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

// QueryLogRepository stores one audit row per pipeline request. It
// implements ports.QueryLogSink.
type QueryLogRepository struct {
	db *sql.DB
}

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

// Record inserts an audit entry, assigning an id when the caller left it
// empty. Bound parameter values are never stored, only their count.
func (r *QueryLogRepository) Record(ctx context.Context, entry models.QueryLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, collection_id, question, generated_sql,
		param_count, status, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, TableQueryLogs)

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.CollectionID, entry.Question, entry.GeneratedSQL,
		entry.ParamCount, entry.Status, entry.ErrorMessage, entry.DurationMS, entry.CreatedAt)
	if err != nil {
		return pkgErrors.NewDatabaseError("record query log", err)
	}
	return nil
}

// ListRecent returns the newest entries for a collection.
func (r *QueryLogRepository) ListRecent(ctx context.Context, collectionID int64, limit int) ([]models.QueryLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT id, collection_id, question, generated_sql,
		param_count, status, error_message, duration_ms, created_at
		FROM %s WHERE collection_id = ? ORDER BY created_at DESC LIMIT ?`, TableQueryLogs)

	rows, err := r.db.QueryContext(ctx, query, collectionID, limit)
	if err != nil {
		return nil, pkgErrors.NewDatabaseError("list query logs", err)
	}
	defer rows.Close()

	var entries []models.QueryLog
	for rows.Next() {
		var e models.QueryLog
		if err := rows.Scan(&e.ID, &e.CollectionID, &e.Question, &e.GeneratedSQL,
			&e.ParamCount, &e.Status, &e.ErrorMessage, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, pkgErrors.NewDatabaseError("scan query log", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgErrors.NewDatabaseError("iterate query logs", err)
	}
	return entries, nil
}

var _ ports.QueryLogSink = (*QueryLogRepository)(nil)
