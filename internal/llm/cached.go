package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/config"
	"github.com/testforge/docforge/internal/observability"
)

// RemoteCache is a completion cache shared across processes, typically Redis.
type RemoteCache interface {
	GetCompletion(ctx context.Context, key string) (string, bool, error)
	SetCompletion(ctx context.Context, key, text string, ttl time.Duration) error
}

// CachedClient answers repeated prompts from a RemoteCache so separate runs
// over the same knowledge base reuse earlier responses. Cache failures are
// logged and fall through to the inner client.
type CachedClient struct {
	inner   Client
	model   string
	remote  RemoteCache
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCachedClient wraps inner. model is part of every key, so switching
// models never serves another model's answers.
func NewCachedClient(inner Client, model string, remote RemoteCache, ttl time.Duration, metrics *observability.Metrics, logger *zap.Logger) *CachedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedClient{
		inner:   inner,
		model:   model,
		remote:  remote,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// WithRemoteCache wraps client in a CachedClient when remote is set and
// LLM_CACHE_TTL is positive. Otherwise client is returned as is.
func WithRemoteCache(client Client, cfg config.LLMConfig, remote RemoteCache, metrics *observability.Metrics, logger *zap.Logger) Client {
	if remote == nil || cfg.CacheTTL <= 0 {
		return client
	}
	return NewCachedClient(client, cfg.Model(), remote, cfg.CacheTTL, metrics, logger)
}

// Complete returns a cached response when one exists. Hits report zero usage.
func (c *CachedClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error) {
	key := cacheKey(c.model, systemPrompt, userPrompt)

	text, ok, err := c.remote.GetCompletion(ctx, key)
	if err != nil {
		c.logger.Warn("completion cache read failed", zap.Error(err))
	}
	c.metrics.RecordCompletionCache(ok)
	if ok {
		c.logger.Debug("completion cache hit", zap.String("key", key[:16]))
		return text, &Usage{}, nil
	}

	text, usage, err := c.inner.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", usage, err
	}
	if err := c.remote.SetCompletion(ctx, key, text, c.ttl); err != nil {
		c.logger.Warn("completion cache write failed", zap.Error(err))
	}
	return text, usage, nil
}
