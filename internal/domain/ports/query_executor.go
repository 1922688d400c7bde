package ports

import (
	"context"

	"github.com/sqlrag/backend/internal/domain/models"
)

// QueryExecutor runs a compiled query against the customer database. The
// execution layer (connection pooling, row scanning) lives outside this
// core; it binds params positionally per dialect.
type QueryExecutor interface {
	Execute(ctx context.Context, query models.CompiledQuery) ([]map[string]interface{}, error)
}

// QueryLogSink records one audit row per pipeline request. Implementations
// must not fail the request when logging fails.
type QueryLogSink interface {
	Record(ctx context.Context, entry models.QueryLog) error
}
