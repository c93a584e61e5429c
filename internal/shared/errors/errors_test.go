package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns message", func(t *testing.T) {
		err := &AppError{Code: "TEST_ERROR", Message: "test error message"}
		assert.Equal(t, "test error message", err.Error())
	})

	t.Run("Error includes wrapped error", func(t *testing.T) {
		wrapped := errors.New("wrapped error")
		err := &AppError{Code: "TEST_ERROR", Message: "test error message", Err: wrapped}
		assert.Contains(t, err.Error(), "test error message")
		assert.Contains(t, err.Error(), "wrapped error")
		assert.Equal(t, wrapped, err.Unwrap())
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
		target error
	}{
		{"not found", NotFound("plan"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"unauthorized", Unauthorized(""), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden(""), "FORBIDDEN", http.StatusForbidden, ErrForbidden},
		{"bad request", BadRequest("bad"), "BAD_REQUEST", http.StatusBadRequest, ErrBadRequest},
		{"validation", ValidationError("bad field"), "VALIDATION_ERROR", http.StatusUnprocessableEntity, ErrBadRequest},
		{"conflict", Conflict("stale"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"limit", LimitExceeded("too many clients"), "LIMIT_EXCEEDED", http.StatusPaymentRequired, ErrLimitExceeded},
		{"rate limited", RateLimited(""), "RATE_LIMITED", http.StatusTooManyRequests, ErrRateLimited},
		{"unavailable", ServiceUnavailable(""), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.ErrorIs(t, tt.err, tt.target)
		})
	}

	assert.Equal(t, "plan not found", NotFound("plan").Message)
}

func TestToResponse(t *testing.T) {
	err := LimitExceeded("limit").WithDetails(map[string]any{"resource": "clients"})
	resp := err.ToResponse()

	assert.Equal(t, "LIMIT_EXCEEDED", resp.Error.Code)
	assert.Equal(t, "limit", resp.Error.Message)
	assert.Equal(t, "clients", resp.Error.Details["resource"])
}

func TestGetStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"app error", Conflict("x"), http.StatusConflict},
		{"wrapped app error", fmt.Errorf("ctx: %w", NotFound("x")), http.StatusNotFound},
		{"sentinel", ErrForbidden, http.StatusForbidden},
		{"wrapped sentinel", fmt.Errorf("ctx: %w", ErrServiceUnavailable), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetStatusCode(tt.err))
		})
	}
}
