package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/testforge/docforge/internal/domain"
)

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents an API error
type Error struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(resp)
}

// JSONError writes a JSON error response
func JSONError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeError(w, status, &Error{Code: code, Message: message, Details: details})
}

func writeError(w http.ResponseWriter, status int, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: false, Error: e})
}

// ErrorFromDomain converts an application error to an HTTP response. The
// cause is never exposed; Details and Metadata are.
func ErrorFromDomain(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		JSONError(w, http.StatusInternalServerError, domain.ErrCodeInternal, "Internal server error", nil)
		return
	}

	details := make(map[string]any, len(appErr.Metadata)+1)
	for k, v := range appErr.Metadata {
		details[k] = v
	}
	if appErr.Details != "" {
		details["details"] = appErr.Details
	}
	if len(details) == 0 {
		details = nil
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeError(w, status, &Error{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   details,
		Retryable: appErr.Retryable,
	})
}

// DecodeJSON decodes JSON from request body
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return domain.ErrValidationField("body", "request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.NewError(domain.ErrCodeBadRequest, "request body too large", http.StatusRequestEntityTooLarge).
				WithMetadata("limit", maxErr.Limit)
		}
		return domain.ErrValidationField("body", "invalid JSON: "+err.Error())
	}

	return nil
}
