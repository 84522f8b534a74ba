// Package errors defines the typed error taxonomy used across the
// reconciliation service.
//
// Every error carries a category (what subsystem failed), a code (what
// specifically went wrong), optional context values and a suggestion for
// the operator. The same error value maps to an HTTP status for the API
// layer and to an exit code for the CLI.
package errors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryPersistence    ErrorCategory = "persistence"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFileUnreadable ErrorCode = "file_unreadable"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeEmptyDocument ErrorCode = "empty_document"
	CodeInvalidLine   ErrorCode = "invalid_line"

	// Validation errors
	CodeInvalidPayload ErrorCode = "invalid_payload"
	CodeInvalidPeriod  ErrorCode = "invalid_period"
	CodeInvalidAmount  ErrorCode = "invalid_amount"
	CodeMissingField   ErrorCode = "missing_field"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Reconciliation errors
	CodeNotFound          ErrorCode = "not_found"
	CodeOwnershipMismatch ErrorCode = "ownership_mismatch"
	CodeMatchingFailed    ErrorCode = "matching_failed"
	CodeInvalidTransition ErrorCode = "invalid_transition"

	// Persistence errors
	CodeStoreUnavailable    ErrorCode = "store_unavailable"
	CodeConstraintViolation ErrorCode = "constraint_violation"
	CodeTransactionFailed   ErrorCode = "transaction_failed"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error to the status code the API layer should return.
func (e *ReconcilerError) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound, CodeOwnershipMismatch, CodeFileNotFound:
		return http.StatusNotFound
	}
	switch e.Category {
	case CategoryValidation, CategoryParse, CategoryFile:
		return http.StatusBadRequest
	case CategoryReconciliation:
		return http.StatusConflict
	case CategoryPersistence, CategoryConfiguration, CategoryInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// GetExitCode returns an appropriate process exit code for CLI usage
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	case CategoryPersistence:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// NotFoundError reports an absent reconciliation, item or registry record.
// An item that exists but belongs to another reconciliation is reported the
// same way: an item ID alone is not sufficient authorization.
func NotFoundError(entity, id string) *ReconcilerError {
	return New(CategoryReconciliation, CodeNotFound,
		fmt.Sprintf("%s not found: %s", entity, id)).
		WithSuggestion("check the identifier and the parent reconciliation it belongs to").
		WithContext("entity", entity).
		WithContext("id", id)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFileUnreadable:
		message = fmt.Sprintf("file is not readable: %s", path)
		suggestion = "check file permissions and that the upload completed"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates a document parsing error. Per-line failures are
// recovered by the parser itself; this type covers whole-document failures.
func ParseError(code ErrorCode, file string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeInvalidFormat:
		message = fmt.Sprintf("document %s does not look like a mapa de vendas", file)
		suggestion = "verify the uploaded file is the monthly sales report PDF"
	case CodeEmptyDocument:
		message = fmt.Sprintf("no client lines detected in %s", file)
		suggestion = "the document may be a scanned image without a text layer"
	default:
		message = fmt.Sprintf("parse error in %s", file)
		suggestion = "check the document format and integrity"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file", file)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeInvalidPayload:
		message = fmt.Sprintf("invalid payload field '%s': %v", field, value)
		suggestion = "check the request body against the API documentation"
	case CodeInvalidPeriod:
		message = fmt.Sprintf("invalid period in field '%s': %v", field, value)
		suggestion = "mes must be 1-12 and ano a four digit year"
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "amounts must be decimal numbers, e.g. '1234.56'"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return New(CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s'", setting)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting via flag, BABORETTE_* env var or config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting)
}

// ReconciliationError creates a reconciliation-related error
func ReconciliationError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeMatchingFailed:
		message = fmt.Sprintf("matching failed during %s", operation)
		suggestion = "registry lookups failed; retry the whole batch"
	case CodeInvalidTransition:
		message = fmt.Sprintf("invalid state transition during %s", operation)
		suggestion = "review has already started or the reconciliation is closed"
	default:
		message = fmt.Sprintf("reconciliation error during %s", operation)
		suggestion = "review the data and configuration"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryReconciliation, code, message)
	} else {
		result = New(CategoryReconciliation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// PersistenceError creates a store-related error. The surrounding
// transaction is expected to have been rolled back already.
func PersistenceError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeStoreUnavailable:
		message = fmt.Sprintf("store unreachable during %s", operation)
		suggestion = "check database connectivity and retry"
	case CodeConstraintViolation:
		message = fmt.Sprintf("constraint violation during %s", operation)
		suggestion = "the write conflicts with existing data"
	case CodeTransactionFailed:
		message = fmt.Sprintf("transaction failed during %s", operation)
		suggestion = "no partial state was persisted; retry the operation"
	default:
		message = fmt.Sprintf("persistence error during %s", operation)
		suggestion = "check the database and retry"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryPersistence, code, message)
	} else {
		result = New(CategoryPersistence, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *ReconcilerError {
	result := Wrap(err, CategoryInternal, CodeUnexpectedError,
		fmt.Sprintf("unexpected error during %s", operation))
	if result == nil {
		result = New(CategoryInternal, CodeUnexpectedError,
			fmt.Sprintf("unexpected error during %s", operation))
	}
	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// Utility functions

// IsReconcilerError checks if an error is a ReconcilerError
func IsReconcilerError(err error) bool {
	_, ok := err.(*ReconcilerError)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a not-found/ownership error.
func IsNotFound(err error) bool {
	if re, ok := AsReconcilerError(err); ok {
		return re.Code == CodeNotFound || re.Code == CodeOwnershipMismatch
	}
	return false
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}
