package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		key        string
		headers    map[string]string
		wantStatus int
	}{
		{"disabled", "", nil, http.StatusOK},
		{"missing key", "secret", nil, http.StatusUnauthorized},
		{"x-api-key", "secret", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer", "secret", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"wrong key", "secret", map[string]string{"X-API-Key": "guess"}, http.StatusUnauthorized},
		{"basic auth ignored", "secret", map[string]string{"Authorization": "Basic c2VjcmV0"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/knowledge", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			NewAuthMiddleware(tt.key).Handler(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
