package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling (OCP compliance).
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}

	// ForbiddenError indicates authorization failure
	ForbiddenError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }
func (e *ForbiddenError) Error() string    { return e.Message }

func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *ForbiddenError) StatusCode() int    { return http.StatusForbidden }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrInsufficientTokens is the business-rule failure returned by the
	// ledger when a reservation does not fit the current balance.
	ErrInsufficientTokens = errors.New("insufficient tokens")

	// ErrProviderFailure aborts a debate session: a step's provider
	// invocation failed and the session-level policy is abort-and-refund.
	ErrProviderFailure = errors.New("provider failure")

	// ErrDispatchFailure means the external compose worker was unreachable.
	ErrDispatchFailure = errors.New("dispatch failure")

	// ErrConfiguration indicates missing registry/credential data. Fatal to
	// the request, never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrDuplicateEvent is the payment idempotency short-circuit. Callers
	// treat it as success.
	ErrDuplicateEvent = errors.New("duplicate event")
)

// InsufficientTokensError carries the required/available amounts so handlers
// can tell the caller exactly how many tokens are missing.
type InsufficientTokensError struct {
	Required  int
	Available int
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("insufficient tokens: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientTokensError) StatusCode() int { return http.StatusPaymentRequired }

// Missing returns how many tokens the user is short.
func (e *InsufficientTokensError) Missing() int {
	if m := e.Required - e.Available; m > 0 {
		return m
	}
	return 0
}

// Is allows errors.Is() to match against ErrInsufficientTokens
func (e *InsufficientTokensError) Is(target error) bool {
	return target == ErrInsufficientTokens
}

// ConflictError represents a resource conflict with details about the existing resource
type ConflictError struct {
	Message      string
	ResourceType string
	ResourceID   string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) StatusCode() int { return http.StatusConflict }

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
