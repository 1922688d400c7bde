package models

import "time"

// Query log statuses.
const (
	QueryLogStatusOK    = "ok"
	QueryLogStatusError = "error"
)

// QueryLog is one audit record per pipeline request. Only the generated
// SQL text and the parameter count are recorded; bound values never reach
// the log.
type QueryLog struct {
	ID           string    `json:"id"`
	CollectionID int64     `json:"collection_id"`
	Question     string    `json:"question"`
	GeneratedSQL string    `json:"generated_sql,omitempty"`
	ParamCount   int       `json:"param_count"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
