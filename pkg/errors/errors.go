package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base interface for all application errors
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// ValidationError represents invalid or unauthorized input. It is always
// safe to surface to the caller verbatim.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *ValidationError) Code() string {
	return "VALIDATION_ERROR"
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError represents a resource that was not found
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) HTTPStatus() int {
	return http.StatusNotFound
}

func (e *NotFoundError) Code() string {
	return "NOT_FOUND"
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// InternalError represents an unexpected invariant violation. It indicates
// a bug in this module, not a user error.
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s (caused by: %v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) HTTPStatus() int {
	return http.StatusInternalServerError
}

func (e *InternalError) Code() string {
	return "INTERNAL_ERROR"
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

// NewInternalError creates a new InternalError
func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{Message: message, Cause: cause}
}

// DatabaseError represents a connectivity or execution failure in the
// policy store.
type DatabaseError struct {
	Op    string
	Cause error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Cause)
}

func (e *DatabaseError) HTTPStatus() int {
	return http.StatusServiceUnavailable
}

func (e *DatabaseError) Code() string {
	return "DATABASE_ERROR"
}

func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(op string, cause error) *DatabaseError {
	return &DatabaseError{Op: op, Cause: cause}
}

// LLMError represents a timeout or transport failure of the optional LLM
// enhancement. Callers must treat it as non-fatal and fall back to the
// deterministic path.
type LLMError struct {
	Reason string
	Cause  error
}

func (e *LLMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("llm error: %s", e.Reason)
}

func (e *LLMError) HTTPStatus() int {
	return http.StatusBadGateway
}

func (e *LLMError) Code() string {
	return "LLM_ERROR"
}

func (e *LLMError) Unwrap() error {
	return e.Cause
}

// NewLLMError creates a new LLMError
func NewLLMError(reason string, cause error) *LLMError {
	return &LLMError{Reason: reason, Cause: cause}
}

// Helper functions for error checking

// IsValidation checks if an error is a ValidationError
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsDatabase checks if an error is a DatabaseError
func IsDatabase(err error) bool {
	var database *DatabaseError
	return errors.As(err, &database)
}

// IsLLM checks if an error is an LLMError
func IsLLM(err error) bool {
	var llm *LLMError
	return errors.As(err, &llm)
}

// GetHTTPStatus returns the HTTP status code for an error
// Returns 500 if the error doesn't implement AppError
func GetHTTPStatus(err error) int {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the error code for an error
// Returns "UNKNOWN_ERROR" if the error doesn't implement AppError
func GetErrorCode(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return "UNKNOWN_ERROR"
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ToResponse converts an error to an ErrorResponse
func ToResponse(err error) ErrorResponse {
	return ErrorResponse{
		Code:    GetErrorCode(err),
		Message: err.Error(),
	}
}
