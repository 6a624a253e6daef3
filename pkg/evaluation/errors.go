package evaluation

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by this module matches exactly one
// of them under errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrNotFound          = errors.New("not found")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
)

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PayloadTooLargeError reports an evidence file over the size ceiling.
type PayloadTooLargeError struct {
	Size  int64 `json:"size"`
	Limit int64 `json:"limit"`
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("evidence is %d bytes, limit is %d bytes", e.Size, e.Limit)
}

// Is matches ErrPayloadTooLarge.
func (e *PayloadTooLargeError) Is(target error) bool {
	return target == ErrPayloadTooLarge
}

// TransitionError is a structured error for operations the lifecycle forbids.
type TransitionError struct {
	Code      string `json:"code"`
	From      Status `json:"from"`
	To        Status `json:"to,omitempty"`
	Operation string `json:"operation,omitempty"`
	Message   string `json:"message"`
}

func (e *TransitionError) Error() string {
	return e.Message
}

// Is matches ErrIllegalTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// NotFoundError reports a missing evaluation.
func NotFoundError(id int64) error {
	return fmt.Errorf("evaluation %d: %w", id, ErrNotFound)
}

// ForbiddenError reports an identity that may not perform an operation.
func ForbiddenError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrForbidden)
}
