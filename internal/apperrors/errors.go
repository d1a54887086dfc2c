package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the store drivers and services.
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
)

// ValidationError reports user-correctable input problems. It is surfaced
// to the caller as a 400 and never mutates state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidation creates a ValidationError for the given field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RenderError reports a failed artifact generation. No artifact reference is
// committed when a RenderError occurs; callers may retry.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// UnresolvedSubjectError reports a payment event whose subject (account or
// invoice) could not be resolved. It is non-fatal: the event is still
// acknowledged to the provider.
type UnresolvedSubjectError struct {
	Subject string
	Reason  string
}

func (e *UnresolvedSubjectError) Error() string {
	return fmt.Sprintf("unresolved subject %q: %s", e.Subject, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsForbidden reports whether err wraps ErrForbidden.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsRender reports whether err is a RenderError.
func IsRender(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}
