// Package errors provides a structured error system for geodex with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for geodex operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig    ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeUnknownSetting   ErrorCode = "UNKNOWN_SETTING"
	ErrCodeUnknownDriver    ErrorCode = "UNKNOWN_DRIVER"

	// Asset Errors
	ErrCodeUnparseableAsset ErrorCode = "UNPARSEABLE_ASSET"
	ErrCodeDuplicateAsset   ErrorCode = "DUPLICATE_ASSET"
	ErrCodeCorruptContainer ErrorCode = "CORRUPT_CONTAINER"
	ErrCodeAssetQuarantined ErrorCode = "ASSET_QUARANTINED"
	ErrCodeAssetUnavailable ErrorCode = "ASSET_UNAVAILABLE"

	// Archive Errors
	ErrCodeArchiveLink    ErrorCode = "ARCHIVE_LINK"
	ErrCodeArchiveSweep   ErrorCode = "ARCHIVE_SWEEP"
	ErrCodeStageRead      ErrorCode = "STAGE_READ"
	ErrCodeExtractFailed  ErrorCode = "EXTRACT_FAILED"
	ErrCodeMismatchedDate ErrorCode = "MISMATCHED_DATE"

	// Fetch / Provider Errors
	ErrCodeFetchFailed       ErrorCode = "FETCH_FAILED"
	ErrCodeQueryFailed       ErrorCode = "QUERY_FAILED"
	ErrCodeDownloadFailed    ErrorCode = "DOWNLOAD_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Inventory Backend Errors
	ErrCodeBackendQuery    ErrorCode = "BACKEND_QUERY"
	ErrCodeBackendUpdate   ErrorCode = "BACKEND_UPDATE"
	ErrCodeBackendConnect  ErrorCode = "BACKEND_CONNECT"
	ErrCodeRecordNotFound  ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeTileGridInvalid ErrorCode = "TILE_GRID_INVALID"

	// Operation Errors
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeOperationFailed   ErrorCode = "OPERATION_FAILED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeProcessFailed     ErrorCode = "PROCESS_FAILED"

	// Authentication Errors
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeCredentialsMissing   ErrorCode = "CREDENTIALS_MISSING"

	// Internal Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknownError  ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryAsset         ErrorCategory = "asset"
	CategoryArchive       ErrorCategory = "archive"
	CategoryFetch         ErrorCategory = "fetch"
	CategoryBackend       ErrorCategory = "backend"
	CategoryOperation     ErrorCategory = "operation"
	CategoryAuth          ErrorCategory = "auth"
	CategoryInternal      ErrorCategory = "internal"
)

// Error represents a structured geodex error with context and metadata.
type Error struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	// Contextual information
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time         `json:"timestamp"`

	// Operational metadata
	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	// Error handling hints
	Retryable bool `json:"retryable"`

	// Debug information
	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *Error) Is(target error) bool {
	if gerr, ok := target.(*Error); ok {
		return e.Code == gerr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *Error) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Context) > 0 {
		ctx, _ := json.Marshal(e.Context)
		parts = append(parts, fmt.Sprintf("Context=%s", ctx))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("Error{%s}", strings.Join(parts, ", "))
}

// New creates a new geodex error with default values.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
	}
}

// Newf creates a new geodex error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new geodex error wrapping a cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return New(code, message).WithCause(cause)
}

// Code extracts the error code from an error, or ErrCodeUnknownError if it is
// not a geodex error.
func Code(err error) ErrorCode {
	var gerr *Error
	if stderrors.As(err, &gerr) {
		return gerr.Code
	}
	return ErrCodeUnknownError
}

// HasCode reports whether err carries the given geodex error code.
func HasCode(err error, code ErrorCode) bool {
	var gerr *Error
	if stderrors.As(err, &gerr) {
		return gerr.Code == code
	}
	return false
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeMissingConfig, ErrCodeConfigValidation,
		ErrCodeConfigLoad, ErrCodeUnknownSetting, ErrCodeUnknownDriver:
		return CategoryConfiguration
	case ErrCodeUnparseableAsset, ErrCodeDuplicateAsset, ErrCodeCorruptContainer,
		ErrCodeAssetQuarantined, ErrCodeAssetUnavailable:
		return CategoryAsset
	case ErrCodeArchiveLink, ErrCodeArchiveSweep, ErrCodeStageRead,
		ErrCodeExtractFailed, ErrCodeMismatchedDate:
		return CategoryArchive
	case ErrCodeFetchFailed, ErrCodeQueryFailed, ErrCodeDownloadFailed,
		ErrCodeConnectionTimeout, ErrCodeConnectionFailed, ErrCodeNetworkError:
		return CategoryFetch
	case ErrCodeBackendQuery, ErrCodeBackendUpdate, ErrCodeBackendConnect,
		ErrCodeRecordNotFound, ErrCodeTileGridInvalid:
		return CategoryBackend
	case ErrCodeOperationTimeout, ErrCodeOperationCanceled, ErrCodeOperationFailed,
		ErrCodeRetryExhausted, ErrCodeProcessFailed:
		return CategoryOperation
	case ErrCodeAuthenticationFailed, ErrCodeCredentialsMissing:
		return CategoryAuth
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeConnectionTimeout: true,
		ErrCodeConnectionFailed:  true,
		ErrCodeNetworkError:      true,
		ErrCodeOperationTimeout:  true,
		ErrCodeQueryFailed:       true,
		ErrCodeDownloadFailed:    true,
		ErrCodeInternalError:     true,
	}
	return retryableCodes[code]
}

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:]) // +2 to skip this function and the caller
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") { // Skip frames from this file
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext adds contextual information to an error.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable overrides the default retryable hint.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithStack captures the current stack trace.
func (e *Error) WithStack() *Error {
	e.Stack = CaptureStack(2)
	return e
}
