package models

import (
	"encoding/json"
	"time"

	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

// AllowlistRules is the declarative security policy applied to every
// generated query. Parsed once per request/session from a persisted JSON
// document and immutable thereafter.
type AllowlistRules struct {
	// Map of table name -> allowed columns
	AllowedTables map[string][]string `json:"allowed_tables"`
	// Map of table name -> filter columns of which at least one must be present
	RequireFilters map[string][]string `json:"require_filters"`
	// Maximum rows a query may return
	MaxLimit int `json:"max_limit"`
	// Whether JOINs are allowed
	AllowJoins bool `json:"allow_joins"`
	// Keywords that cannot appear as queried columns (case-insensitive)
	DenyKeywords []string `json:"deny_keywords"`
	// SQL statements that are forbidden
	DenyStatements []string `json:"deny_statements"`
	// Maximum number of filters allowed in a query
	MaxFilters int `json:"max_filters"`
	// Maximum size of an IN clause list
	MaxInListSize int `json:"max_in_list_size"`
}

// DefaultAllowlistRules returns the deny-by-default policy document.
func DefaultAllowlistRules() AllowlistRules {
	return AllowlistRules{
		AllowedTables:  map[string][]string{},
		RequireFilters: map[string][]string{},
		MaxLimit:       200,
		AllowJoins:     false,
		DenyKeywords: []string{
			"password", "token", "secret", "api_key", "private_key", "credential",
		},
		DenyStatements: []string{
			"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
			"CREATE", "GRANT", "REVOKE", "PRAGMA", "ATTACH", "DETACH",
		},
		MaxFilters:    5,
		MaxInListSize: 50,
	}
}

// ParseAllowlistRules decodes a persisted rules document. Absent fields
// keep their defaults; explicitly non-positive limits are rejected.
func ParseAllowlistRules(data []byte) (AllowlistRules, error) {
	rules := DefaultAllowlistRules()
	if err := json.Unmarshal(data, &rules); err != nil {
		return AllowlistRules{}, pkgErrors.NewValidationError("rules_json", "invalid allowlist rules JSON: "+err.Error())
	}
	if err := rules.Validate(); err != nil {
		return AllowlistRules{}, err
	}
	return rules, nil
}

// Validate enforces the structural invariants of the policy document.
func (r *AllowlistRules) Validate() error {
	if r.MaxLimit <= 0 {
		return pkgErrors.NewValidationError("max_limit", "must be strictly positive")
	}
	if r.MaxFilters <= 0 {
		return pkgErrors.NewValidationError("max_filters", "must be strictly positive")
	}
	if r.MaxInListSize <= 0 {
		return pkgErrors.NewValidationError("max_in_list_size", "must be strictly positive")
	}
	return nil
}

// AllowlistProfile is the named, versioned rules document applied to a
// collection. RulesJSON round-trips exactly through the AllowlistRules
// JSON shape.
type AllowlistProfile struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	RulesJSON   string    `json:"rules_json"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Rules parses the profile's persisted rules document.
func (p *AllowlistProfile) Rules() (AllowlistRules, error) {
	return ParseAllowlistRules([]byte(p.RulesJSON))
}

// ConnectionConfig is the per-collection authorization scope layered on
// top of the allowlist profile: the tables and columns a particular data
// connection has actually exposed.
type ConnectionConfig struct {
	SelectedTables  []string            `json:"selected_tables"`
	SelectedColumns map[string][]string `json:"selected_columns"`
}

// ParseConnectionConfig decodes a connection's config_json document.
func ParseConnectionConfig(data []byte) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, pkgErrors.NewValidationError("config_json", "invalid connection config JSON: "+err.Error())
	}
	if cfg.SelectedColumns == nil {
		cfg.SelectedColumns = map[string][]string{}
	}
	return cfg, nil
}
