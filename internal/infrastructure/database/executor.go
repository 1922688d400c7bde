package database

import (
	"context"
	"database/sql"

	"github.com/sqlrag/backend/internal/domain/models"
	"github.com/sqlrag/backend/internal/domain/ports"
	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

// Executor runs compiled queries against a customer database handle. It
// implements ports.QueryExecutor.
type Executor struct {
	db *sql.DB
}

func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Execute runs the query with its bound parameters and returns each row as
// a column name to value map. Raw byte columns are decoded to strings so
// results serialize cleanly.
func (e *Executor) Execute(ctx context.Context, query models.CompiledQuery) ([]map[string]interface{}, error) {
	rows, err := e.db.QueryContext(ctx, query.SQL, query.Params...)
	if err != nil {
		return nil, pkgErrors.NewDatabaseError("execute query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, pkgErrors.NewDatabaseError("read result columns", err)
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, pkgErrors.NewDatabaseError("scan result row", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
			} else {
				row[name] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgErrors.NewDatabaseError("iterate result rows", err)
	}
	return results, nil
}

var _ ports.QueryExecutor = (*Executor)(nil)
