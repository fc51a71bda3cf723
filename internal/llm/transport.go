package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 512

// APIError is a non-200 answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s API error (status %d, %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Throttled reports a quota or rate limit rejection.
func (e *APIError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Type == "RESOURCE_EXHAUSTED" || e.Type == "rate_limit_error"
}

// IsThrottled reports whether err carries a provider throttling rejection.
func IsThrottled(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Throttled()
}

// Metrics tracks API usage per client.
type Metrics struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalTokensIn   int64
	TotalTokensOut  int64
	TotalLatencyMs  int64
	CacheHits       int64
	CacheMisses     int64
}

func (m *Metrics) snapshot() Metrics {
	return Metrics{
		TotalRequests:   atomic.LoadInt64(&m.TotalRequests),
		SuccessRequests: atomic.LoadInt64(&m.SuccessRequests),
		FailedRequests:  atomic.LoadInt64(&m.FailedRequests),
		TotalTokensIn:   atomic.LoadInt64(&m.TotalTokensIn),
		TotalTokensOut:  atomic.LoadInt64(&m.TotalTokensOut),
		TotalLatencyMs:  atomic.LoadInt64(&m.TotalLatencyMs),
		CacheHits:       atomic.LoadInt64(&m.CacheHits),
		CacheMisses:     atomic.LoadInt64(&m.CacheMisses),
	}
}

// withDefaults fills unset fields from d
func (cfg Config) withDefaults(d Config) Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = d.RateLimitRPM
	}
	return cfg
}

// transport is the provider-independent part of a client: pacing, the
// response cache, usage counters and JSON over HTTP.
type transport struct {
	provider    string
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int

	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *Cache
	cacheTTL   time.Duration
	metrics    *Metrics
}

func newTransport(provider string, cfg Config, defaults Config) (*transport, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", provider)
	}
	cfg = cfg.withDefaults(defaults)
	return &transport{
		provider:    provider,
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		// one token per request, refilled at RPM/60 per second
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), 1),
		cache:    NewCache(),
		cacheTTL: cfg.CacheTTL,
		metrics:  &Metrics{},
	}, nil
}

// complete wraps one provider call with the cache, the limiter and the
// usage counters. call returns the response text.
func (t *transport) complete(ctx context.Context, systemPrompt, userPrompt string, call func(ctx context.Context) (string, *Usage, error)) (string, *Usage, error) {
	atomic.AddInt64(&t.metrics.TotalRequests, 1)

	key := cacheKey(t.model, systemPrompt, userPrompt)
	if t.cacheTTL > 0 {
		if cached, ok := t.cache.Get(key); ok {
			atomic.AddInt64(&t.metrics.CacheHits, 1)
			return cached, &Usage{}, nil
		}
		atomic.AddInt64(&t.metrics.CacheMisses, 1)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		atomic.AddInt64(&t.metrics.FailedRequests, 1)
		return "", nil, fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	text, usage, err := call(ctx)
	if usage != nil {
		atomic.AddInt64(&t.metrics.TotalTokensIn, int64(usage.InputTokens))
		atomic.AddInt64(&t.metrics.TotalTokensOut, int64(usage.OutputTokens))
	}
	if err != nil {
		atomic.AddInt64(&t.metrics.FailedRequests, 1)
		return "", usage, err
	}
	atomic.AddInt64(&t.metrics.SuccessRequests, 1)
	atomic.AddInt64(&t.metrics.TotalLatencyMs, time.Since(start).Milliseconds())

	if t.cacheTTL > 0 {
		t.cache.Set(key, text, t.cacheTTL)
	}
	return text, usage, nil
}

// postJSON sends in and decodes a 200 answer into out. Anything else
// becomes an *APIError.
func (t *transport) postJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return t.apiError(resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// apiError reads the {"error": {...}} envelope both providers use. Anthropic
// names the category "type", Gemini "status".
func (t *transport) apiError(status int, body []byte) *APIError {
	e := &APIError{Provider: t.provider, StatusCode: status}

	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		e.Type = envelope.Error.Type
		if e.Type == "" {
			e.Type = envelope.Error.Status
		}
		e.Message = envelope.Error.Message
	}
	if e.Message == "" {
		msg := string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		e.Message = msg
	}
	return e
}

// GetMetrics returns current metrics
func (t *transport) GetMetrics() Metrics {
	return t.metrics.snapshot()
}

// GetModel returns the model being used
func (t *transport) GetModel() string {
	return t.model
}
