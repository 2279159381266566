package services

import (
	"errors"
	"strings"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// ValidationError is a caller-correctable input problem. Errors lists every
// offending field or per-field message, never just the first.
type ValidationError struct {
	Message string
	Errors  []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Errors, "; ")
}

func missingFieldsError(fields []string) *ValidationError {
	return &ValidationError{
		Message: "Missing required fields: " + strings.Join(fields, ", "),
		Errors:  fields,
	}
}

// draftConflictError reports an update that would give an owner a second
// draft for the same plot.
func draftConflictError() *ValidationError {
	return &ValidationError{
		Message: "A draft already exists for this plot",
		Errors:  []string{"plotId already has a draft for this owner"},
	}
}

type forbiddenError struct{ msg string }

func (e *forbiddenError) Error() string        { return e.msg }
func (e *forbiddenError) Is(target error) bool { return target == ErrForbidden }

// forbidden wraps ErrForbidden with a caller-facing message.
func forbidden(msg string) error { return &forbiddenError{msg: msg} }

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string        { return e.msg }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(msg string) error { return &notFoundError{msg: msg} }
