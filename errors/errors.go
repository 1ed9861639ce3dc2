// Package errors provides error handling for savesync.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// Usage:
//
//	// Wrap a transport failure with context
//	if err := transport.Patch(ctx, id, blob); err != nil {
//	    return errors.Wrapf(err, "failed to patch remote file %s", id)
//	}
//
//	// Classify by sentinel
//	if errors.Is(err, errors.ErrUnauthorized) {
//	    // session token no longer valid
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// Sentinel errors shared by transports, stores and the sync controller.
// Wrap these with errors.Wrap() or errors.Mark() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested remote file or local slot does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates a malformed request or argument
	ErrInvalidRequest = New("invalid request")

	// ErrUnauthorized indicates the session's credentials were rejected
	ErrUnauthorized = New("unauthorized")

	// ErrServiceUnavailable indicates the remote store or identity provider is not reachable
	ErrServiceUnavailable = New("service unavailable")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")

	// ErrConflict indicates a concurrent modification was rejected by the remote
	ErrConflict = New("resource conflict")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsUnauthorizedError checks if an error is or wraps ErrUnauthorized
func IsUnauthorizedError(err error) bool {
	return err != nil && Is(err, ErrUnauthorized)
}

// IsRetryable reports whether err is a transient failure worth retrying on the
// next session activation (network, timeout, service unavailable).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return IsAny(err, ErrServiceUnavailable, ErrTimeout, ErrConflict)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}
