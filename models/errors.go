package models

import (
	"errors"
	"fmt"
)

// Error codes used in logs, metrics and API responses.
const (
	// Stage timeouts. These never leave the extractor; they are recorded and
	// the partial record is finalized.
	ErrCodeLookupTimeout     = "LOOKUP_TIMEOUT"
	ErrCodeListingTimeout    = "LISTING_TIMEOUT"
	ErrCodeExtractionTimeout = "EXTRACTION_TIMEOUT"

	// Worker-level failures.
	ErrCodeSessionInit = "SESSION_INIT_FAILURE"
	ErrCodeNavigation  = "NAVIGATION_FAILED"

	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExtractError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ExtractError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// NewExtractError creates a new ExtractError.
func NewExtractError(code, message string, err error) *ExtractError {
	return &ExtractError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ExtractError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// DetailOf returns the API-facing detail for any error. Errors that are not
// an ExtractError are reported as INTERNAL_ERROR.
func DetailOf(err error) *ErrorDetail {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.ToDetail()
	}
	return &ErrorDetail{Code: ErrCodeInternal, Message: err.Error()}
}
