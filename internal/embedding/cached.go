package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/observability"
)

// RemoteCache is a shared embedding cache, typically Redis.
type RemoteCache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, embedding []float32, ttl time.Duration) error
}

// CacheConfig holds cache settings
type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

// DefaultCacheConfig returns default cache settings
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 10000,
		TTL:        7 * 24 * time.Hour,
	}
}

type cachedEmbedding struct {
	embedding []float32
	createdAt time.Time
}

// CachedEmbedder memoizes another Embedder in memory and, optionally, in a
// RemoteCache. Only misses reach the inner embedder, in one batch.
type CachedEmbedder struct {
	inner   Embedder
	remote  RemoteCache
	config  CacheConfig
	metrics *observability.Metrics
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedEmbedding
}

// NewCachedEmbedder wraps inner. remote, metrics and logger may be nil.
func NewCachedEmbedder(inner Embedder, remote RemoteCache, config CacheConfig, metrics *observability.Metrics, logger *zap.Logger) *CachedEmbedder {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig().TTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:   inner,
		remote:  remote,
		config:  config,
		metrics: metrics,
		logger:  logger,
		cache:   make(map[string]cachedEmbedding),
	}
}

func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := c.cacheKey(text)
		if vec, ok := c.lookup(ctx, key); ok {
			results[i] = vec
			c.metrics.RecordEmbeddingCache(true)
			continue
		}
		c.metrics.RecordEmbeddingCache(false)
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, domain.ErrEmbedding(fmt.Errorf("got %d vectors for %d texts", len(vecs), len(missTexts)))
	}

	for j, vec := range vecs {
		i := missIdx[j]
		results[i] = vec
		key := c.cacheKey(texts[i])
		c.setMemory(key, vec)
		if c.remote != nil {
			if err := c.remote.SetEmbedding(ctx, key, vec, c.config.TTL); err != nil {
				c.logger.Warn("embedding cache write failed", zap.Error(err))
			}
		}
	}

	return results, nil
}

// Len returns the number of in-memory entries
func (c *CachedEmbedder) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Clear empties the in-memory cache
func (c *CachedEmbedder) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cachedEmbedding)
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	c.mu.RLock()
	if cached, ok := c.cache[key]; ok && time.Since(cached.createdAt) < c.config.TTL {
		c.mu.RUnlock()
		return cached.embedding, true
	}
	c.mu.RUnlock()

	if c.remote == nil {
		return nil, false
	}
	vec, ok, err := c.remote.GetEmbedding(ctx, key)
	if err != nil {
		c.logger.Warn("embedding cache read failed", zap.Error(err))
		return nil, false
	}
	if ok {
		c.setMemory(key, vec)
	}
	return vec, ok
}

func (c *CachedEmbedder) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(c.inner.Model() + "\x00" + text))
	return hex.EncodeToString(hash[:16])
}

func (c *CachedEmbedder) setMemory(key string, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict 10% when full
	if len(c.cache) >= c.config.MaxEntries {
		count := 0
		for k := range c.cache {
			delete(c.cache, k)
			count++
			if count >= c.config.MaxEntries/10 {
				break
			}
		}
	}

	c.cache[key] = cachedEmbedding{
		embedding: embedding,
		createdAt: time.Now(),
	}
}
