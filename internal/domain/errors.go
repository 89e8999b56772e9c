package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnsupportedPlan     = errors.New("unsupported plan")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderFailure     = errors.New("provider failure")
	ErrTaskNotFound        = errors.New("task not found")
	ErrVersionConflict     = errors.New("version conflict")
	ErrDiscountInvalid     = errors.New("discount invalid")
	ErrDiscountExhausted   = errors.New("discount exhausted")
	ErrDuplicateOperation  = errors.New("duplicate operation")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
