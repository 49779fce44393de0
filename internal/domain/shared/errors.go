package shared

import (
	"errors"
	"fmt"
)

// Error codes of the ledger error taxonomy
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidState = "INVALID_STATE"
	CodeConflict     = "CONFLICT"
	CodeNotFound     = "NOT_FOUND"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, ErrNotFound) matches any not-found error.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of the error with an extra detail entry
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Code: e.Code, Message: e.Message, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError reports caller-fixable malformed input.
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// NewValidationErrorf is NewValidationError with formatting.
func NewValidationErrorf(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewInvalidStateError reports an operation that is not legal in the entity's
// current status. The current status and the attempted transition are carried
// in Details so the API can surface them verbatim.
func NewInvalidStateError(entity, current, attempted string) *DomainError {
	return &DomainError{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("cannot %s %s in status %s", attempted, entity, current),
		Details: map[string]any{
			"entity":         entity,
			"current_status": current,
			"attempted":      attempted,
		},
	}
}

// NewConflictError reports a concurrent modification or a mutual-exclusion
// violation. Conflicts are safe for the caller to retry.
func NewConflictError(message string) *DomainError {
	return NewDomainError(CodeConflict, message)
}

// NewNotFoundError reports an unknown id.
func NewNotFoundError(entity string, id any) *DomainError {
	return &DomainError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %v not found", entity, id),
		Details: map[string]any{"entity": entity, "id": fmt.Sprint(id)},
	}
}

// Common domain errors, usable as errors.Is targets
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrValidation          = NewDomainError(CodeValidation, "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(CodeConflict, "Resource was modified by another process")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
)

// IsRetryable reports whether the caller may safely retry the whole command.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
