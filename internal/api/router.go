package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/api/handlers"
	"github.com/testforge/docforge/internal/api/middleware"
	"github.com/testforge/docforge/internal/observability"
	"github.com/testforge/docforge/pkg/httputil"
)

// Router holds the HTTP router and its dependencies
type Router struct {
	chi.Router
	logger *zap.Logger
}

// RouterConfig contains configuration for the router
type RouterConfig struct {
	Base        handlers.KnowledgeBase
	Generator   handlers.GeneratorFactory
	Synthesizer handlers.SynthesizerFactory
	DefaultTopK int

	Metrics        *observability.Metrics
	RateLimiter    middleware.Counter
	RateLimit      int
	APIKey         string
	CORSOrigins    []string
	MaxRequestSize int64
	Logger         *zap.Logger

	// Timeout bounds non-streaming requests. Script synthesis is paced and
	// is exempt.
	Timeout time.Duration
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	r := chi.NewRouter()

	// Base middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(cfg.Logger).Handler)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Handler)
	r.Use(cfg.Metrics.HTTPMiddleware)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", healthHandler)
	r.Handle("/metrics", cfg.Metrics.Handler())

	knowledgeHandler := handlers.NewKnowledgeHandler(cfg.Base, cfg.Logger)
	testCaseHandler := handlers.NewTestCaseHandler(cfg.Base, cfg.Generator, cfg.DefaultTopK, cfg.Logger)
	scriptHandler := handlers.NewScriptHandler(cfg.Synthesizer, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(cfg.APIKey).Handler)
		r.Use(middleware.NewRateLimitMiddleware(cfg.RateLimiter, cfg.RateLimit, cfg.Logger).Handler)
		if cfg.MaxRequestSize > 0 {
			r.Use(chimw.RequestSize(cfg.MaxRequestSize))
		}

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(cfg.Timeout))

			r.Post("/documents", knowledgeHandler.Ingest)
			r.Get("/knowledge", knowledgeHandler.Stats)
			r.Delete("/knowledge", knowledgeHandler.Reset)
			r.Post("/testcases", testCaseHandler.Generate)
		})

		r.Post("/scripts", scriptHandler.Synthesize)
	})

	return &Router{
		Router: r,
		logger: cfg.Logger,
	}
}

// healthHandler returns basic health status
func healthHandler(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "docforge-api",
	})
}
