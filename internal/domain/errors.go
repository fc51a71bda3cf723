package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes for categorization
const (
	// Client errors (4xx)
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeDuplicate  = "DUPLICATE_ENTRY"

	// Server errors (5xx)
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeStore          = "STORE_ERROR"
	ErrCodeExternalAPI    = "EXTERNAL_API_ERROR"
	ErrCodeServiceUnavail = "SERVICE_UNAVAILABLE"

	// Pipeline errors
	ErrCodeNormalization     = "NORMALIZATION_FAILED"
	ErrCodeIngestion         = "INGESTION_FAILED"
	ErrCodeEmbedding         = "EMBEDDING_FAILED"
	ErrCodeEmbeddingMismatch = "EMBEDDING_MISMATCH"
	ErrCodeBackend           = "BACKEND_FAILED"
	ErrCodeParse             = "PARSE_FAILED"
)

// AppError is a categorized pipeline or API error. Code is stable for
// callers; Message is safe to show; Cause is never serialized.
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Cause      error                  `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Retryable  bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func (e *AppError) WithRetry() *AppError {
	e.Retryable = true
	return e
}

// ToJSON serializes the error without its cause.
func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// NewError creates a new AppError
func NewError(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now().UTC(),
	}
}

func ErrValidation(message string) *AppError {
	return NewError(ErrCodeValidation, message, http.StatusBadRequest)
}

func ErrValidationField(field, message string) *AppError {
	return NewError(ErrCodeValidation, message, http.StatusBadRequest).
		WithMetadata("field", field)
}

func ErrNotFound(resource, id string) *AppError {
	return NewError(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", resource, id), http.StatusNotFound).
		WithMetadata("resource", resource).
		WithMetadata("id", id)
}

// ErrDuplicateEntry reports an attempt to overwrite an immutable store entry.
func ErrDuplicateEntry(id string) *AppError {
	return NewError(ErrCodeDuplicate, fmt.Sprintf("entry already exists: %s", id), http.StatusConflict).
		WithMetadata("id", id)
}

func ErrInternal(message string) *AppError {
	if message == "" {
		message = "Internal server error"
	}
	return NewError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func ErrStore(operation string, err error) *AppError {
	return NewError(ErrCodeStore, fmt.Sprintf("Knowledge store %s failed", operation), http.StatusInternalServerError).
		WithCause(err).
		WithMetadata("operation", operation)
}

func ErrExternalAPI(service string, err error) *AppError {
	return NewError(ErrCodeExternalAPI, fmt.Sprintf("External API error: %s", service), http.StatusBadGateway).
		WithCause(err).
		WithMetadata("service", service).
		WithRetry()
}

func ErrServiceUnavailable(service string) *AppError {
	return NewError(ErrCodeServiceUnavail, fmt.Sprintf("Service unavailable: %s", service), http.StatusServiceUnavailable).
		WithMetadata("service", service).
		WithRetry()
}

func ErrNormalization(filename string, err error) *AppError {
	return NewError(ErrCodeNormalization, fmt.Sprintf("Cannot normalize %s", filename), http.StatusUnprocessableEntity).
		WithCause(err).
		WithMetadata("filename", filename)
}

func ErrIngestion(filename string, err error) *AppError {
	return NewError(ErrCodeIngestion, fmt.Sprintf("Ingestion failed for %s", filename), http.StatusUnprocessableEntity).
		WithCause(err).
		WithMetadata("filename", filename)
}

func ErrEmbedding(err error) *AppError {
	return NewError(ErrCodeEmbedding, "Embedding generation failed", http.StatusBadGateway).
		WithCause(err)
}

// ErrEmbeddingMismatch reports vectors of different dimensions meeting in
// one similarity computation.
func ErrEmbeddingMismatch(want, got int) *AppError {
	return NewError(ErrCodeEmbeddingMismatch,
		fmt.Sprintf("embedding dimension mismatch: store has %d, query has %d", want, got),
		http.StatusUnprocessableEntity).
		WithMetadata("want", want).
		WithMetadata("got", got)
}

func ErrBackend(provider string, err error) *AppError {
	return NewError(ErrCodeBackend, fmt.Sprintf("Text generation backend failed: %s", provider), http.StatusBadGateway).
		WithCause(err).
		WithMetadata("provider", provider)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns the HTTP status code for an error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the error code for an error
func GetErrorCode(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Sentinels for errors.Is; only the code is compared.
var (
	ErrDuplicateSentinel         = NewError(ErrCodeDuplicate, "duplicate entry", http.StatusConflict)
	ErrEmbeddingMismatchSentinel = NewError(ErrCodeEmbeddingMismatch, "embedding dimension mismatch", http.StatusUnprocessableEntity)
	ErrBackendSentinel           = NewError(ErrCodeBackend, "backend failed", http.StatusBadGateway)
)
