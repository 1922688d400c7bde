package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("limit", "must be strictly positive")
	assert.Equal(t, "validation error on field 'limit': must be strictly positive", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Equal(t, "VALIDATION_ERROR", err.Code())
	assert.True(t, IsValidation(err))
	assert.False(t, IsNotFound(err))
}

func TestValidationErrorWithoutField(t *testing.T) {
	err := &ValidationError{Message: "question is empty"}
	assert.Equal(t, "validation error: question is empty", err.Error())
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("allowlist profile", "7")
	assert.Equal(t, "allowlist profile with ID '7' not found", err.Error())
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus())
	assert.True(t, IsNotFound(err))
}

func TestDatabaseErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDatabaseError("list query templates", cause)
	assert.Equal(t, "database error during list query templates: connection refused", err.Error())
	assert.True(t, IsDatabase(err))
	assert.ErrorIs(t, err, cause)
}

func TestLLMError(t *testing.T) {
	err := NewLLMError("semantic matching timed out", nil)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	assert.True(t, IsLLM(err))

	wrapped := fmt.Errorf("template matching: %w", err)
	assert.True(t, IsLLM(wrapped))
}

func TestGetHTTPStatusAndCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(NewValidationError("f", "m")))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("plain")))
	assert.Equal(t, "NOT_FOUND", GetErrorCode(NewNotFoundError("profile", "1")))
	assert.Equal(t, "UNKNOWN_ERROR", GetErrorCode(errors.New("plain")))
}

func TestToResponse(t *testing.T) {
	resp := ToResponse(NewValidationError("table", "table could not be resolved"))
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Contains(t, resp.Message, "table could not be resolved")
}
