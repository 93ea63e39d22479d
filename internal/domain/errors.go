// Package domain provides the error taxonomy raised by command handling.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a business rule rejected the command.
var ErrConflict = errors.New("conflict")

// ValidationError reports a malformed command or request payload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IllegalStateError reports a command that is not allowed in the current state.
type IllegalStateError struct {
	Message string
}

func (e *IllegalStateError) Error() string { return e.Message }

// NewIllegalStateError creates an IllegalStateError with a formatted message.
func NewIllegalStateError(format string, args ...any) *IllegalStateError {
	return &IllegalStateError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity. It matches ErrNotFound via errors.Is.
type NotFoundError struct {
	ID   string
	Type string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Type != "" && e.ID != "":
		return fmt.Sprintf("%s with id %s was not found", e.Type, e.ID)
	case e.Type != "":
		return e.Type + " was not found"
	default:
		return "not found"
	}
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConcurrencyError reports an optimistic concurrency mismatch between the
// expected and the actual stream version.
type ConcurrencyError struct {
	Current  uint64
	Expected string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("expected version %s does not match current %d", e.Expected, e.Current)
}

// NewConcurrencyError creates a ConcurrencyError.
func NewConcurrencyError(current uint64, expected string) *ConcurrencyError {
	return &ConcurrencyError{Current: current, Expected: expected}
}
