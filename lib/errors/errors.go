// Package errors provides structured error types for the tunnelkit VPN client.
// All errors are designed to be safe to surface to callers and logs without
// exposing internal implementation details.
//
// This package provides:
//   - Sentinel errors for common error conditions
//   - Error codes for categorizing failures across the tunnel lifecycle
//   - Error wrapping with context preservation
package errors

import (
	"errors"
	"fmt"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Error codes for categorizing errors. Codes in the -32000 to -32099 range
// are application-specific and stable across releases.
const (
	CodeInternal = -32603 // Internal error

	// Application-specific error codes (-32000 to -32099)
	CodeNotFound    = -32003 // Resource not found
	CodeTimeout     = -32005 // Operation timeout
	CodeUnavailable = -32007 // Service unavailable
	CodeValidation  = -32008 // Validation failed
	CodeState       = -32010 // Invalid state
	CodeResolution  = -32011 // Endpoint resolution failed
	CodeSettings    = -32012 // Network settings installation failed
	CodeBackend     = -32013 // Backend engine failure
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnavailable indicates a service is unavailable.
	ErrUnavailable = errors.New("service unavailable")

	// ErrClosed indicates a resource is closed.
	ErrClosed = errors.New("closed")

	// ErrInvalidState indicates an operation is not valid in the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrInternal indicates an internal error.
	ErrInternal = errors.New("internal error")

	// ErrConfiguration indicates a configuration error.
	ErrConfiguration = errors.New("configuration error")
)

// Tunnel lifecycle errors. These cover the closed set of failure kinds the
// lifecycle coordinator surfaces to its callers.
var (
	// ErrResolution indicates one or more peer endpoints failed to resolve.
	ErrResolution = errors.New("endpoint resolution failed")

	// ErrSettingsInstall indicates the host environment rejected the
	// network settings.
	ErrSettingsInstall = errors.New("network settings installation failed")

	// ErrSettingsTimeout indicates the host environment never acknowledged
	// the network settings within the deadline.
	ErrSettingsTimeout = fmt.Errorf("network settings installation: %w", ErrTimeout)

	// ErrDescriptorUnavailable indicates the raw tunnel socket descriptor
	// could not be obtained from the host environment.
	ErrDescriptorUnavailable = errors.New("tunnel file descriptor unavailable")

	// ErrBackendStart indicates the backend engine refused to start.
	ErrBackendStart = errors.New("backend engine failed to start")
)

// Error is a structured error with a code and safe message.
// It implements the error interface and preserves the underlying
// cause for errors.Is/As checks.
type Error struct {
	// Code is the error code for categorization
	Code int `json:"code"`
	// Message is a safe, user-facing error message
	Message string `json:"message"`
	// Err is the underlying error (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// SafeMessage returns a client-safe error message without internal details.
func (e *Error) SafeMessage() string {
	return e.Message
}

// New creates a new structured error with the given code and message.
func New(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and safe message.
// The original error is preserved for debugging and errors.Is checks.
func Wrap(code int, message string, err error) *Error {
	if err != nil {
		log.WithField("code", code).WithError(err).Debug("wrapping error")
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapInternal wraps an internal error with a generic message.
// Use this when the original error contains sensitive information.
func WrapInternal(err error) *Error {
	if err != nil {
		log.WithError(err).Debug("wrapping internal error")
	}
	return &Error{
		Code:    CodeInternal,
		Message: "internal error",
		Err:     err,
	}
}

// FromSentinel creates a structured error from a sentinel error.
// It automatically assigns an appropriate error code based on the error type.
func FromSentinel(err error) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    codeFromError(err),
		Message: err.Error(),
		Err:     err,
	}
}

// codeFromError maps sentinel errors to error codes.
func codeFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrResolution):
		return CodeResolution
	case errors.Is(err, ErrSettingsInstall), errors.Is(err, ErrSettingsTimeout):
		return CodeSettings
	case errors.Is(err, ErrBackendStart), errors.Is(err, ErrDescriptorUnavailable):
		return CodeBackend
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrInvalidInput):
		return CodeValidation
	case errors.Is(err, ErrInvalidState):
		return CodeState
	default:
		return CodeInternal
	}
}

// IsInvalidState returns true if the error indicates an operation was
// attempted in the wrong lifecycle state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsResolution returns true if the error indicates an endpoint resolution failure.
func IsResolution(err error) bool {
	return errors.Is(err, ErrResolution)
}

// IsTimeout returns true if the error indicates a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsClosed returns true if the error indicates a resource is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// Join combines multiple errors into a single error.
// Returns nil if all errors are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target,
// and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
