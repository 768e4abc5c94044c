package library

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer of the engine. Callers branch with
// errors.Is; the HTTP boundary maps each sentinel to a status code.
var (
	// ErrNotFound is returned when a referenced standard, cluster, backup or
	// library document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when input violates a record invariant.
	// The library is never modified when this error is returned.
	ErrValidation = errors.New("validation failed")

	// ErrIO is returned when durable storage could not be read or written.
	ErrIO = errors.New("storage failure")

	// ErrInvalidFormat is returned when a document (library, backup, upload or
	// import) cannot be parsed.
	ErrInvalidFormat = errors.New("invalid format")
)

// ValidationError names the offending field and value of a rejected input.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field string, value any, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:  field,
		Value:  value,
		Reason: fmt.Sprintf(format, args...),
	}
}

// DecodeError reports a malformed library or import document.
type DecodeError struct {
	// Path locates the offending element, e.g. "standards[3].id".
	Path string
	Err  error
}

// Error implements error.
func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode library document: %v", e.Err)
	}
	return fmt.Sprintf("decode library document at %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrInvalidFormat) match any DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrInvalidFormat
}
