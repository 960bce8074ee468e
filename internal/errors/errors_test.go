package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := New(ErrCodeValidationFailed, "bad input")
	assert.Equal(t, "VALIDATION_FAILED: bad input", err.Error())

	wrapped := Wrap(fmt.Errorf("disk full"), ErrCodePersistence, "insert failed")
	assert.Equal(t, "PERSISTENCE: insert failed: disk full", wrapped.Error())
	assert.EqualError(t, wrapped.Unwrap(), "disk full")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewPersistenceError("insert", fmt.Errorf("locked"))))
	assert.False(t, IsRetryable(New(ErrCodeValidationFailed, "bad input")))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, GetCode(NewNotFoundError("user", 7)))
	assert.Equal(t, ErrCodeInternalError, GetCode(fmt.Errorf("plain error")))
}

func TestGetUserMessage(t *testing.T) {
	err := New(ErrCodeInternalError, "stack trace details")
	assert.Equal(t, "An internal error occurred", GetUserMessage(err))

	err = err.WithUserMessage("Something went wrong")
	assert.Equal(t, "Something went wrong", GetUserMessage(err))
}

func TestPermissionReason(t *testing.T) {
	assert.Equal(t, "not-contacts", PermissionReason(NewPermissionError("not-contacts")))
	assert.Equal(t, "", PermissionReason(New(ErrCodeValidationFailed, "bad input")))
	assert.Equal(t, "", PermissionReason(fmt.Errorf("plain error")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeValidationFailed, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodePermissionDenied, http.StatusForbidden},
		{ErrCodeAuthentication, http.StatusUnauthorized},
		{ErrCodeRateLimit, http.StatusTooManyRequests},
		{ErrCodePersistence, http.StatusInternalServerError},
		{ErrCodeInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.code), string(tt.code))
	}
}
