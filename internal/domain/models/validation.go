package models

// Validation error codes emitted by the allowlist validator.
const (
	CodeTableNotSelected        = "TABLE_NOT_SELECTED"
	CodeTableNotAllowed         = "TABLE_NOT_ALLOWED"
	CodeColumnNotAllowed        = "COLUMN_NOT_ALLOWED"
	CodeMissingRequiredFilter   = "MISSING_REQUIRED_FILTER"
	CodeFilterColumnNotAllowed  = "FILTER_COLUMN_NOT_ALLOWED"
	CodeTooManyFilters          = "TOO_MANY_FILTERS"
	CodeInListTooLarge          = "IN_LIST_TOO_LARGE"
	CodeBetweenRequiresTwo      = "BETWEEN_REQUIRES_TWO_VALUES"
	CodeJoinsNotAllowed         = "JOINS_NOT_ALLOWED"
	CodeJoinTableNotAllowed     = "JOIN_TABLE_NOT_ALLOWED"
	CodeOrderColumnNotAllowed   = "ORDER_COLUMN_NOT_ALLOWED"
	CodeForbiddenStatement      = "FORBIDDEN_STATEMENT"
	CodeForbiddenKeyword        = "FORBIDDEN_KEYWORD"
	CodeSubqueryNotAllowed      = "SUBQUERY_NOT_ALLOWED"
	CodeUnionNotAllowed         = "UNION_NOT_ALLOWED"
	CodeCommentsNotAllowed      = "COMMENTS_NOT_ALLOWED"
)

// ValidationError is a single policy violation found during validation.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ValidationResult accumulates the outcome of validating a plan or a raw
// SQL string. Once any error is appended, IsValid becomes false and stays
// false.
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []string          `json:"warnings"`
	// AdjustedLimit is set when the requested limit exceeded the policy
	// maximum and was clamped instead of rejected.
	AdjustedLimit *int `json:"adjusted_limit,omitempty"`
}

// NewValidationResult returns a passing result with no findings.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{IsValid: true}
}

// AddError records a violation and marks the result invalid.
func (r *ValidationResult) AddError(code, message, field string) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Code: code, Message: message, Field: field})
}

// AddWarning records a non-fatal finding.
func (r *ValidationResult) AddWarning(message string) {
	r.Warnings = append(r.Warnings, message)
}

// HasCode reports whether any recorded error carries the given code.
func (r *ValidationResult) HasCode(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// FirstError returns the first recorded violation, or nil when valid.
func (r *ValidationResult) FirstError() *ValidationError {
	if len(r.Errors) == 0 {
		return nil
	}
	return &r.Errors[0]
}
