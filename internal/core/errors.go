package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every repository error matches exactly one of the first five via errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrMalformedRecord = errors.New("malformed record")
	ErrExecution       = errors.New("execution failed")
	ErrNotImplemented  = errors.New("not implemented")

	ErrTaskRunning       = errors.New("task is already running")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports a field rejected before storage was touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// MalformedRecordError reports a stored row whose encoded column could not be decoded.
type MalformedRecordError struct {
	Table  string
	ID     string
	Column string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s row %s: column %s: %v", e.Table, e.ID, e.Column, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// NotFound wraps ErrNotFound with the kind and id that were looked up.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
