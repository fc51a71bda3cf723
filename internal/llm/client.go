// Package llm talks to hosted text generation backends.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/config"
	"github.com/testforge/docforge/internal/observability"
	"github.com/testforge/docforge/internal/resilience"
)

// Client completes a system + user prompt pair into text.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error)
}

// Usage contains token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Config for a provider client
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	RateLimitRPM int           // Requests per minute
	CacheTTL     time.Duration // 0 disables the response cache
}

// Cache for LLM responses
type Cache struct {
	data map[string]cacheEntry
	mu   sync.RWMutex
}

type cacheEntry struct {
	response  string
	expiresAt time.Time
}

// NewCache creates a new cache
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves from cache
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.response, true
}

// Set stores in cache
func (c *Cache) Set(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		response:  value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Len returns the number of cached responses
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// cacheKey hashes the model and both prompts
func cacheKey(model, systemPrompt, userPrompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(userPrompt))
	return hex.EncodeToString(h.Sum(nil))
}

// New builds the client for the configured provider, guarded by a circuit
// breaker when enabled and instrumented with metrics.
func New(cfg config.LLMConfig, breaker config.BreakerConfig, metrics *observability.Metrics, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := Config{
		APIKey:       cfg.APIKey(),
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.Timeout,
		RateLimitRPM: cfg.RateLimitRPM,
		CacheTTL:     cfg.CacheTTL,
	}

	var (
		client Client
		err    error
	)
	switch cfg.Provider {
	case config.ProviderClaude:
		base.BaseURL = cfg.ClaudeBaseURL
		base.Model = cfg.ClaudeModel
		client, err = NewClaudeClient(base)
	case config.ProviderGemini:
		base.BaseURL = cfg.GeminiBaseURL
		base.Model = cfg.GeminiModel
		client, err = NewGeminiClient(base)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	var b *resilience.Breaker
	if breaker.Enabled {
		b = resilience.NewBreaker(resilience.SettingsFromConfig(cfg.Provider, breaker, logger))
	}
	return NewGuardedClient(client, cfg.Provider, base.Model, b, metrics, logger), nil
}
