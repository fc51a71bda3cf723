package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// Counter counts requests per key in a fixed window.
type Counter interface {
	CheckRateLimit(ctx context.Context, key string, limit int) (bool, int, error)
}

// RateLimitMiddleware limits requests per client address
type RateLimitMiddleware struct {
	counter Counter
	limit   int
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware. A nil counter
// or a non-positive limit disables limiting.
func NewRateLimitMiddleware(counter Counter, limit int, logger *zap.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitMiddleware{counter: counter, limit: limit, logger: logger}
}

// Handler returns the middleware handler
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.counter == nil || m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, count, err := m.counter.CheckRateLimit(r.Context(), clientKey(r), m.limit)
		if err != nil {
			// On Redis error, allow the request but log
			m.logger.Warn("rate limit check failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		remaining := m.limit - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey uses RemoteAddr, which chi's RealIP has already resolved.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
