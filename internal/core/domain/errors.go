package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
//
// Two errors are equal under errors.Is when their codes match, so a
// sentinel enriched with details or a cause still matches the sentinel.
type DomainError struct {
	Code    string // Error code (e.g., "TS-TABL-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += " (" + e.Cause.Error() + ")"
	}
	return msg
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

// ============================================================================
// Table Errors (TABL)
//
// These are the only two errors the table, batch, resolver and reactive
// services return. Lower-level failures are collapsed into one of them and
// kept as the Cause.
// ============================================================================

var (
	// ErrMissingKey indicates the requested key is absent, or that the
	// synchronization primitive failed while the key was being resolved.
	ErrMissingKey = NewDomainError("TS-TABL-4040", "missing key")

	// ErrMissingTableService indicates a table is absent from the supplied
	// table universe, or that any step of reference resolution failed.
	ErrMissingTableService = NewDomainError("TS-TABL-4041", "missing table service")
)

// ============================================================================
// Synchronization Errors (SYNC)
//
// Returned by synchronization backends. The services above translate them.
// ============================================================================

var (
	// ErrSyncFailed indicates the backend could not read or commit a table.
	ErrSyncFailed = NewDomainError("TS-SYNC-5001", "synchronization failed")

	// ErrVersionConflict indicates a proposal was derived from a stale version.
	ErrVersionConflict = NewDomainError("TS-SYNC-4090", "version conflict")

	// ErrNotLeader indicates a replicated backend cannot serve the request
	// because this node is not the leader.
	ErrNotLeader = NewDomainError("TS-SYNC-5030", "not the cluster leader")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("TS-ARG-1001", "invalid argument")
)
