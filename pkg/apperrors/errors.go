// Package apperrors defines the closed set of error kinds the command
// surface understands. Every error that crosses a package boundary in
// this runtime is either one of these typed errors or wraps one with
// %w, following a typed-error-with-kind convention.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure the command layer maps to a
// stable string code in responses.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation"
	KindPermission      Kind = "permission_denied"
	KindConflict        Kind = "conflict"
	KindUnavailable     Kind = "unavailable"
	KindTimeout         Kind = "timeout"
	KindCircuitOpen     Kind = "circuit_open"
	KindCancelled       Kind = "cancelled"
	KindCapacityReached Kind = "capacity_reached"
	KindInternal        Kind = "internal"
)

// Error is a typed, wrappable error carrying a Kind alongside a
// human-readable message and optional cause.
type Error struct {
	K       Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.K, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.K, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Kind reports the error's classification. Use KindOf to classify an
// arbitrary error; it falls back to KindInternal for errors not
// produced by this package.
func (e *Error) Kind() Kind { return e.K }

// New constructs an *Error with the given kind and message.
func New(k Kind, message string) *Error {
	return &Error{K: k, Message: message}
}

// Wrap constructs an *Error that carries cause as its Unwrap target.
func Wrap(k Kind, message string, cause error) *Error {
	return &Error{K: k, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, walking the Unwrap chain, and
// returns KindInternal if no *Error is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.K
	}
	return KindInternal
}

func NotFound(message string) *Error        { return New(KindNotFound, message) }
func Validation(message string) *Error      { return New(KindValidation, message) }
func PermissionDenied(message string) *Error { return New(KindPermission, message) }
func Conflict(message string) *Error        { return New(KindConflict, message) }
func Timeout(message string) *Error         { return New(KindTimeout, message) }
func Cancelled(message string) *Error       { return New(KindCancelled, message) }

func CapacityReached(message string) *Error {
	return New(KindCapacityReached, message)
}

func CircuitOpen(service string) *Error {
	return New(KindCircuitOpen, fmt.Sprintf("circuit open for %s", service))
}
