package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/testforge/docforge/pkg/httputil"
)

// AuthMiddleware checks a static API key sent as X-API-Key or as a bearer
// token. An empty key disables the check.
type AuthMiddleware struct {
	apiKey []byte
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(apiKey string) *AuthMiddleware {
	return &AuthMiddleware{apiKey: []byte(apiKey)}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.apiKey) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := extractAPIKey(r)
		if key == "" {
			httputil.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), m.apiKey) != 1 {
			httputil.JSONError(w, http.StatusUnauthorized, "INVALID_API_KEY", "API key not recognized", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
