package dto

import (
	"net/http"

	"github.com/medledger/billing/internal/domain/shared"
)

// Ledger error codes. The first four mirror the domain taxonomy verbatim.
const (
	ErrCodeValidation   = shared.CodeValidation
	ErrCodeInvalidState = shared.CodeInvalidState
	ErrCodeConflict     = shared.CodeConflict
	ErrCodeNotFound     = shared.CodeNotFound
)

// Transport-level error codes
const (
	// ErrCodeInternal hides unexpected failures from the caller
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeBadRequest is used when the body is not parseable JSON
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeUnauthorized is used when the bearer token is missing or invalid
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeRequestTooLarge is used by the body limit middleware
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeUnavailable is reported by the readiness check
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeInvalidState: http.StatusUnprocessableEntity,
	ErrCodeConflict:     http.StatusConflict,
	ErrCodeNotFound:     http.StatusNotFound,

	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsRetryableCode reports whether a client may retry the whole command
func IsRetryableCode(code string) bool {
	return code == ErrCodeConflict
}
