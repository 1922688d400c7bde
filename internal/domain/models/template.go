package models

import "time"

// QueryTemplate is a pre-authored, admin-approved query pattern used for
// few-shot matching ahead of the rule-based planner.
type QueryTemplate struct {
	ID              int64     `json:"id"`
	ProfileID       int64     `json:"allowlist_profile_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	IntentKeywords  []string  `json:"intent_keywords"`
	ExampleQuestion string    `json:"example_question"`
	QueryPattern    string    `json:"query_pattern"`
	PatternType     string    `json:"pattern_type"`
	TablesUsed      []string  `json:"tables_used"`
	Priority        int       `json:"priority"`
	IsEnabled       bool      `json:"is_enabled"`
	// IsPatternAgnostic scores the template on its pattern shape alone,
	// ignoring table overlap.
	IsPatternAgnostic bool      `json:"is_pattern_agnostic"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TemplateMatch is a scored template candidate for a user query.
type TemplateMatch struct {
	Template QueryTemplate `json:"template"`
	// Score in [0,1], higher is better.
	Score float64 `json:"score"`
	// Reason is a human-readable explanation of the score.
	Reason string `json:"reason"`
}
