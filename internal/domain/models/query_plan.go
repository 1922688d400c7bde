package models

// QueryMode indicates the type of result a plan expects.
type QueryMode string

const (
	// ModeExact is a single-row lookup (WHERE id = ?).
	ModeExact QueryMode = "exact"
	// ModeList returns multiple rows (list/search).
	ModeList QueryMode = "list"
	// ModeAggregate is a COUNT/SUM style query.
	ModeAggregate QueryMode = "aggregate"
)

// Filter operators understood by the compiler.
const (
	OpEq        = "eq"
	OpNeq       = "neq"
	OpIn        = "in"
	OpLike      = "like"
	OpContains  = "contains"
	OpGte       = "gte"
	OpLte       = "lte"
	OpGt        = "gt"
	OpLt        = "lt"
	OpBetween   = "between"
	OpIsNull    = "is_null"
	OpIsNotNull = "is_not_null"
)

// QueryFilter is a single WHERE condition. Values are kept as strings
// because every input arrives as text; the compiler coerces them into
// typed bind parameters.
type QueryFilter struct {
	Column   string   `json:"column"`
	Operator string   `json:"operator"`
	Values   []string `json:"values"`
}

// OrderBy describes the ordering of a plan's result set.
type OrderBy struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// JoinClause names a secondary table a plan wants to join against.
// Joins are disabled by default and gated by AllowlistRules.AllowJoins.
type JoinClause struct {
	Table string `json:"table"`
	On    string `json:"on,omitempty"`
}

// QueryPlan is the structured, pre-SQL representation of a query. It is
// created fresh per request by the planner, checked by the validator,
// consumed once by the compiler and never persisted.
type QueryPlan struct {
	Mode    QueryMode     `json:"mode"`
	Table   string        `json:"table"`
	Select  []string      `json:"select"`
	Filters []QueryFilter `json:"filters"`
	Limit   int           `json:"limit"`
	OrderBy *OrderBy      `json:"order_by,omitempty"`
	Joins   []JoinClause  `json:"joins,omitempty"`
}

// CompiledQuery is the final parameterized SQL plus its ordered bind
// values, handed to the external execution layer and then discarded.
type CompiledQuery struct {
	SQL         string        `json:"sql"`
	Params      []interface{} `json:"params"`
	Description string        `json:"description"`
}

// MatchType records how a table mention was resolved.
type MatchType string

const (
	// MatchExact means the user typed the exact table name.
	MatchExact MatchType = "exact"
	// MatchAlias means an alias resolved ("user" -> "users_view").
	MatchAlias MatchType = "alias"
	// MatchFuzzy means a partial/substring match resolved.
	MatchFuzzy MatchType = "fuzzy"
	// MatchDefault means only one table was available.
	MatchDefault MatchType = "default"
)

// TableMatch is a resolved table name with a confidence score in [0,1].
type TableMatch struct {
	TableName  string    `json:"table_name"`
	Confidence float64   `json:"confidence"`
	MatchType  MatchType `json:"match_type"`
}
