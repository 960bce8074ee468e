package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field string, value interface{}, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewNotFoundError creates an error for an absent identity
func NewNotFoundError(what string, id int64) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s %d does not exist", what, id)).
		WithContext("id", id).
		WithUserMessage(fmt.Sprintf("Unknown %s", what))
}

// NewPermissionError creates a gate rejection carrying its reason code.
// The reason is part of the contract: clients render different copy per
// reason (self, not-contacts, you-blocked, user-blocked).
func NewPermissionError(reason string) *AppError {
	return New(ErrCodePermissionDenied, fmt.Sprintf("send not permitted: %s", reason)).
		WithContext("reason", reason).
		WithUserMessage("You cannot message this user")
}

// PermissionReason extracts the gate reason from a permission error,
// or "" when the error is not one.
func PermissionReason(err error) string {
	appErr, ok := err.(*AppError)
	if !ok || appErr.Code != ErrCodePermissionDenied {
		return ""
	}
	if reason, ok := appErr.Context["reason"].(string); ok {
		return reason
	}
	return ""
}

// NewPersistenceError wraps a storage failure. Persistence failures are
// the only transient class: the insert was not committed, so the caller
// may retry the whole operation.
func NewPersistenceError(operation string, err error) *AppError {
	return WrapRetryable(err, ErrCodePersistence, fmt.Sprintf("storage %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Temporary storage failure, please retry")
}

// NewTransportError wraps a relay connection failure. Transport errors
// trigger reconnect and are never propagated as user-facing failures.
func NewTransportError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeTransport, fmt.Sprintf("relay %s failed", operation)).
		WithContext("operation", operation)
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewAuthenticationError creates a credential failure
func NewAuthenticationError(message string) *AppError {
	return New(ErrCodeAuthentication, message).
		WithUserMessage("Authentication required")
}
