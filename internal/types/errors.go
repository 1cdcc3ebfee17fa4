package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error type
type ErrorCode string

const (
	// Auth errors
	ErrAccountNotFound    ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrAccountExists      ErrorCode = "ACCOUNT_EXISTS"
	ErrAccountBlocked     ErrorCode = "ACCOUNT_BLOCKED"

	// Transaction errors
	ErrInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrBelowMinimum      ErrorCode = "BELOW_MINIMUM"
	ErrAlreadyFinalized  ErrorCode = "ALREADY_FINALIZED"

	// Lookup errors
	ErrOrderNotFound ErrorCode = "ORDER_NOT_FOUND"
	ErrNotFound      ErrorCode = "NOT_FOUND"

	// Input errors
	ErrValidation           ErrorCode = "VALIDATION_FAILED"
	ErrConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED"
	ErrPermissionDenied     ErrorCode = "PERMISSION_DENIED"

	// System errors
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
)

// StoreError is the structured error returned by every core operation.
// Callers switch on Code; Message is safe to show to a user.
type StoreError struct {
	Code    ErrorCode
	Message string
	Err     error // Underlying error, if any
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError
func NewStoreError(code ErrorCode, message string) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error in a StoreError
func WrapError(code ErrorCode, message string, err error) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsStoreError checks if an error is a StoreError and has a specific code
func IsStoreError(err error, code ErrorCode) bool {
	var storeErr *StoreError
	if err == nil {
		return false
	}
	if ok := As(err, &storeErr); !ok {
		return false
	}
	return storeErr.Code == code
}

// As finds the first StoreError in err's chain
func As(err error, target **StoreError) bool {
	if target == nil || err == nil {
		return false
	}
	return errors.As(err, target)
}

// CodeOf returns the code of a StoreError, or ErrInternalError for anything else
func CodeOf(err error) ErrorCode {
	var storeErr *StoreError
	if As(err, &storeErr) {
		return storeErr.Code
	}
	return ErrInternalError
}

// IsTransient reports whether the operation that produced err may be retried
func IsTransient(err error) bool {
	return IsStoreError(err, ErrStoreUnavailable)
}
