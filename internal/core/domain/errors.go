// Package domain defines the core domain models for LayerKV.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a store error with a structured error code.
//
// Codes follow the format KV-<AREA>-<NNNN>; the numeric part mirrors the
// closest HTTP status so relay logs stay greppable.
type DomainError struct {
	Code    string // Error code (e.g., "KV-KEY-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Command Errors (CMD)
// ============================================================================

var (
	// ErrInvalidCommand indicates a grammar violation: unknown verb or wrong arity.
	ErrInvalidCommand = NewDomainError("KV-CMD-4000", "invalid command")

	// ErrInvalidTTL indicates a missing, non-integer or non-positive TTL.
	ErrInvalidTTL = NewDomainError("KV-CMD-4001", "invalid TTL")
)

// ============================================================================
// Key Errors (KEY)
// ============================================================================

var (
	// ErrKeyNotFound indicates the key is in neither tier of the top layer.
	ErrKeyNotFound = NewDomainError("KV-KEY-4040", "key not found")
)

// ============================================================================
// Stack Errors (STK)
// ============================================================================

var (
	// ErrNoSavedState indicates a POP with only the base layer remaining.
	ErrNoSavedState = NewDomainError("KV-STK-4090", "no saved state to reverse to")
)

// ============================================================================
// Storage Errors (STO)
// ============================================================================

var (
	// ErrStorage indicates an overlay read or write failed.
	ErrStorage = NewDomainError("KV-STO-5000", "storage failure")
)

// IsValidation reports whether err is a grammar or TTL validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidCommand) || errors.Is(err, ErrInvalidTTL)
}
