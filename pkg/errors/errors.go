package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the failure taxonomy of the search engine.
var (
	// ErrNotFound is returned when a record or document is absent from the
	// index. Delete is idempotent and never returns it.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidFilter is a caller input error on the query path.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvalidRecord is a caller input error on the indexing path.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrIndexUnavailable means the backend could not be reached for a write,
	// after bounded retries.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrSearchUnavailable means the backend could not be reached for a read.
	// Surfaced immediately: stale-but-available beats blocking.
	ErrSearchUnavailable = errors.New("search unavailable")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidFilter creates a 400 error naming the offending filter field.
func InvalidFilter(field, message string) *AppError {
	return &AppError{
		Code:    "INVALID_FILTER",
		Message: fmt.Sprintf("%s: %s", field, message),
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidFilter,
	}
}

// InvalidRecord creates a 400 error naming the offending record field.
func InvalidRecord(field, message string) *AppError {
	return &AppError{
		Code:    "INVALID_RECORD",
		Message: fmt.Sprintf("%s: %s", field, message),
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidRecord,
	}
}

// IndexUnavailable creates a 503 error for a failed index write.
func IndexUnavailable(err error) *AppError {
	return &AppError{
		Code:    "INDEX_UNAVAILABLE",
		Message: "search index is unavailable for writes",
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrIndexUnavailable, err),
	}
}

// SearchUnavailable creates a 503 error for a failed query.
func SearchUnavailable(err error) *AppError {
	return &AppError{
		Code:    "SEARCH_UNAVAILABLE",
		Message: "search backend is unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrSearchUnavailable, err),
	}
}

// PartialBulkFailure reports a bulk operation where a subset of items failed.
// The operation as a whole succeeds; failed ids are reported for
// caller-driven retry.
type PartialBulkFailure struct {
	Indexed   int
	FailedIDs []string
}

func (e *PartialBulkFailure) Error() string {
	return fmt.Sprintf("bulk operation indexed %d documents, %d failed", e.Indexed, len(e.FailedIDs))
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidFilter), errors.Is(err, ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexUnavailable), errors.Is(err, ErrSearchUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
