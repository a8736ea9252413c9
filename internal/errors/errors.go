// Package errors provides structured error types for the Beacon collector.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryTransport  ErrorCategory = "TRANSPORT"
	ErrCategoryUpload     ErrorCategory = "UPLOAD"
	ErrCategoryConfig     ErrorCategory = "CONFIG"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeEmptyIdentify = "EMPTY_IDENTIFY"
	CodeEmptyEvent    = "EMPTY_EVENT"

	// Storage codes
	CodeAppendFailed    = "APPEND_FAILED"
	CodeQueryFailed     = "QUERY_FAILED"
	CodeStoreCorrupt    = "STORE_CORRUPT"
	CodeMigrationFailed = "MIGRATION_FAILED"

	// Transport codes
	CodePostFailed      = "POST_FAILED"
	CodeBadResponse     = "BAD_RESPONSE"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"

	// Upload codes
	CodePartialAck = "PARTIAL_ACK"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// BeaconError is the structured error type used throughout the collector.
type BeaconError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *BeaconError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *BeaconError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *BeaconError) Is(target error) bool {
	var t *BeaconError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new BeaconError.
func New(category ErrorCategory, code, message string) *BeaconError {
	return &BeaconError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new BeaconError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *BeaconError {
	return &BeaconError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *BeaconError) WithDetails(details map[string]interface{}) *BeaconError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var be *BeaconError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a BeaconError.
func GetCategory(err error) ErrorCategory {
	var be *BeaconError
	if errors.As(err, &be) {
		return be.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a BeaconError.
func GetCode(err error) string {
	var be *BeaconError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. Transport failures
// are recovered by the upload engine's retry-on-next-trigger policy;
// payload-too-large has its own recovery algorithm and is not a plain retry.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryTransport && code == CodePostFailed:
		return true
	case category == ErrCategoryTransport && code == CodeBadResponse:
		return true
	case category == ErrCategoryUpload && code == CodePartialAck:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *BeaconError {
	return New(ErrCategoryValidation, code, message)
}

func NewStorageError(code, message string, cause error) *BeaconError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewTransportError(code, message string, cause error) *BeaconError {
	return Wrap(ErrCategoryTransport, code, message, cause)
}

func NewConfigError(message string) *BeaconError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *BeaconError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
