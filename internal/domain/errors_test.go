package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "Resource not found",
			},
			want: "[NOT_FOUND] Resource not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeStore,
				Message: "Knowledge store add failed",
				Cause:   errors.New("disk full"),
			},
			want: "[STORE_ERROR] Knowledge store add failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("inner error")
	err := ErrEmbedding(inner)

	if !errors.Is(err, inner) {
		t.Error("AppError.Unwrap() should allow errors.Is to find inner error")
	}
}

func TestAppError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("query: %w", ErrEmbeddingMismatch(384, 1536))

	if !errors.Is(err, ErrEmbeddingMismatchSentinel) {
		t.Error("wrapped mismatch should match its sentinel")
	}
	if errors.Is(err, ErrDuplicateSentinel) {
		t.Error("mismatch should not match duplicate sentinel")
	}
}

func TestAppError_WithMetadata(t *testing.T) {
	err := ErrValidation("bad input").
		WithDetails("k must be positive").
		WithMetadata("field", "k")

	if err.Details != "k must be positive" {
		t.Errorf("Details = %q", err.Details)
	}
	if err.Metadata["field"] != "k" {
		t.Errorf("Metadata[field] = %v", err.Metadata["field"])
	}
}

func TestAppError_ToJSON(t *testing.T) {
	err := ErrDuplicateEntry("specs_1")
	data := string(err.ToJSON())

	if !strings.Contains(data, `"code":"DUPLICATE_ENTRY"`) {
		t.Errorf("ToJSON() = %s, missing code", data)
	}
	if strings.Contains(data, "HTTPStatus") {
		t.Errorf("ToJSON() = %s, should not expose status", data)
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", ErrValidation("x"), http.StatusBadRequest},
		{"not found", ErrNotFound("chunk", "a_1"), http.StatusNotFound},
		{"duplicate", ErrDuplicateEntry("a_1"), http.StatusConflict},
		{"mismatch", ErrEmbeddingMismatch(2, 3), http.StatusUnprocessableEntity},
		{"backend", ErrBackend("gemini", errors.New("503")), http.StatusBadGateway},
		{"wrapped", fmt.Errorf("ctx: %w", ErrStore("reset", errors.New("x"))), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.wantStatus {
				t.Errorf("GetHTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(ErrNormalization("a.pdf", errors.New("eof"))); got != ErrCodeNormalization {
		t.Errorf("GetErrorCode() = %s", got)
	}
	if got := GetErrorCode(errors.New("plain")); got != ErrCodeInternal {
		t.Errorf("GetErrorCode(plain) = %s, want %s", got, ErrCodeInternal)
	}
}

func TestErrExternalAPI_Retryable(t *testing.T) {
	err := ErrExternalAPI("qdrant", errors.New("timeout"))
	if !err.Retryable {
		t.Error("external API errors should be retryable")
	}
	if err.Metadata["service"] != "qdrant" {
		t.Errorf("service metadata = %v", err.Metadata["service"])
	}
}
