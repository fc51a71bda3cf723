package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeCounter struct {
	counts map[string]int
	err    error
}

func (c *fakeCounter) CheckRateLimit(ctx context.Context, key string, limit int) (bool, int, error) {
	if c.err != nil {
		return false, 0, c.err
	}
	c.counts[key]++
	return c.counts[key] <= limit, c.counts[key], nil
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	counter := &fakeCounter{counts: map[string]int{}}
	handler := NewRateLimitMiddleware(counter, 2, nil).Handler(ok)

	wantStatus := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	wantRemaining := []string{"1", "0", "0"}
	for i := range wantStatus {
		req := httptest.NewRequest("GET", "/api/v1/knowledge", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != wantStatus[i] {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, wantStatus[i])
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != wantRemaining[i] {
			t.Errorf("request %d: remaining = %q, want %q", i+1, got, wantRemaining[i])
		}
	}

	if counter.counts["ip:10.0.0.1"] != 3 {
		t.Errorf("counts = %v, want ip:10.0.0.1 keyed by host", counter.counts)
	}
}

func TestRateLimitMiddleware_FailOpen(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name    string
		counter Counter
		limit   int
	}{
		{"no counter", nil, 10},
		{"zero limit", &fakeCounter{counts: map[string]int{}}, 0},
		{"counter error", &fakeCounter{err: errors.New("redis down")}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewRateLimitMiddleware(tt.counter, tt.limit, nil).Handler(ok).
				ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		})
	}
}
