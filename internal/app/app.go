// Package app assembles the knowledge base, generators and optional
// integrations from configuration. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/artifacts"
	"github.com/testforge/docforge/internal/cache"
	"github.com/testforge/docforge/internal/chunker"
	"github.com/testforge/docforge/internal/config"
	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/embedding"
	"github.com/testforge/docforge/internal/generation"
	"github.com/testforge/docforge/internal/knowledge"
	"github.com/testforge/docforge/internal/llm"
	"github.com/testforge/docforge/internal/observability"
	"github.com/testforge/docforge/internal/scriptgen"
	"github.com/testforge/docforge/internal/vectorstore"
)

// App holds the wired components. The LLM client is built on first use so
// ingestion works without a backend key.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Store    vectorstore.Store
	Base     *knowledge.Base

	// Cache is nil when Redis is not configured or unreachable.
	Cache *cache.Cache

	mu      sync.Mutex
	client  llm.Client
	closers []func() error
}

// New opens the configured store and embedder. reg may be nil.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg *prometheus.Registry) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  observability.NewMetrics(cfg.App.Name, reg),
	}

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	if cfg.Redis.Enabled() {
		c, err := cache.New(cfg.Redis)
		if err != nil {
			logger.Warn("Failed to connect to Redis, embedding cache is memory only", zap.Error(err))
		} else {
			a.Cache = c
			a.closers = append(a.closers, c.Close)
			logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	embedder := a.embedder()
	splitter := chunker.NewSplitter(
		chunker.WithChunkSize(cfg.Chunking.Size),
		chunker.WithOverlap(cfg.Chunking.Overlap),
	)
	a.Base = knowledge.NewBase(store, embedder, splitter, a.Metrics, logger)

	logger.Info("Knowledge base ready",
		zap.String("backend", store.Backend()),
		zap.String("embedding_model", embedder.Model()),
	)
	return a, nil
}

// OpenStore opens the vector store selected by STORE_BACKEND.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (vectorstore.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return vectorstore.NewMemoryStore(), nil
	case config.StoreSQLite:
		return vectorstore.OpenSQL(ctx, vectorstore.DriverSQLite, cfg.Store.SQLitePath, cfg.Store.Collection, logger)
	case config.StorePostgres:
		return vectorstore.OpenPostgres(ctx, cfg.Database, cfg.Store.Collection, logger)
	case config.StoreQdrant:
		q := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Store.Collection,
			Timeout:    cfg.Qdrant.Timeout,
		}, logger)
		if err := q.Health(ctx); err != nil {
			return nil, domain.ErrStore("connect", err)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (a *App) embedder() embedding.Embedder {
	cfg := a.Config.Embedding

	var inner embedding.Embedder
	switch cfg.Provider {
	case config.EmbeddingOpenAI:
		inner = embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			BaseURL:      cfg.BaseURL,
			Dimensions:   cfg.Dimensions,
			MaxBatchSize: cfg.BatchSize,
			Timeout:      cfg.Timeout,
		}, a.Logger)
	default:
		inner = embedding.NewHashEmbedder(cfg.Dimensions)
	}

	var remote embedding.RemoteCache
	cacheCfg := embedding.DefaultCacheConfig()
	if a.Cache != nil {
		remote = a.Cache
		cacheCfg.TTL = a.Config.Redis.CacheTTL
	}
	return embedding.NewCachedEmbedder(inner, remote, cacheCfg, a.Metrics, a.Logger)
}

// LLM returns the text generation client, building it on first call.
func (a *App) LLM() (llm.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	if err := a.Config.RequireLLM(); err != nil {
		return nil, domain.ErrServiceUnavailable(a.Config.LLM.Provider).WithDetails(err.Error())
	}
	client, err := llm.New(a.Config.LLM, a.Config.Breaker, a.Metrics, a.Logger)
	if err != nil {
		return nil, err
	}
	if a.Cache != nil {
		client = llm.WithRemoteCache(client, a.Config.LLM, a.Cache, a.Metrics, a.Logger)
	}
	a.client = client
	return client, nil
}

// SetLLM replaces the text generation client.
func (a *App) SetLLM(client llm.Client) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client = client
}

// Generator returns a test case generator on the configured backend.
func (a *App) Generator() (*generation.Generator, error) {
	client, err := a.LLM()
	if err != nil {
		return nil, err
	}
	return generation.NewGenerator(client, a.Metrics, a.Logger), nil
}

// Synthesizer returns a script synthesizer for framework, or the configured
// framework when empty.
func (a *App) Synthesizer(framework domain.ScriptFramework) (*scriptgen.Synthesizer, error) {
	client, err := a.LLM()
	if err != nil {
		return nil, err
	}
	if framework == "" {
		framework = domain.ScriptFramework(a.Config.Scripts.Framework)
	}
	if !framework.IsValid() {
		return nil, domain.ErrValidationField("framework", fmt.Sprintf("unknown framework %q", framework))
	}
	return scriptgen.NewSynthesizer(a.Base, client, scriptgen.Config{
		Framework: framework,
		SelectorK: a.Config.Scripts.SelectorK,
		DocK:      a.Config.Scripts.DocK,
		MinDelay:  a.Config.Scripts.MinDelay,
	}, a.Metrics, a.Logger), nil
}

// Artifacts connects to the artifact bucket, creating it if needed.
func (a *App) Artifacts(ctx context.Context) (*artifacts.Store, error) {
	s, err := artifacts.New(a.Config.Artifacts, a.Logger)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, domain.ErrExternalAPI("artifacts", err)
	}
	return s, nil
}

// Close releases the store and cache connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
