package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/api"
	"github.com/testforge/docforge/internal/api/middleware"
	"github.com/testforge/docforge/internal/app"
	"github.com/testforge/docforge/internal/config"
	"github.com/testforge/docforge/internal/observability"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(string(cfg.App.Environment), cfg.App.LogLevel)
	defer logger.Sync()

	logger.Info("Starting docforge API",
		zap.String("version", cfg.App.Version),
		zap.String("environment", string(cfg.App.Environment)),
		zap.String("store", cfg.Store.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(startCtx, cfg, logger, nil)
	cancelStart()
	if err != nil {
		logger.Fatal("Failed to open knowledge base", zap.Error(err))
	}
	defer a.Close()

	if err := cfg.RequireLLM(); err != nil {
		logger.Warn("Text generation disabled until an API key is configured", zap.Error(err))
	}

	// A nil *cache.Cache must not reach the interface.
	var limiter middleware.Counter
	if a.Cache != nil {
		limiter = a.Cache
	} else {
		logger.Warn("Redis not configured, rate limiting disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Base:           a.Base,
		Generator:      a.Generator,
		Synthesizer:    a.Synthesizer,
		DefaultTopK:    cfg.Retrieval.TopK,
		Metrics:        a.Metrics,
		RateLimiter:    limiter,
		RateLimit:      cfg.Server.RateLimitRPM,
		APIKey:         cfg.Server.APIKey,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxRequestSize: cfg.Server.MaxRequestSize,
		Logger:         logger,
		Timeout:        cfg.LLM.Timeout + time.Minute,
	})

	addr := cfg.Server.Addr()
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", zap.String("addr", addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed, forcing close", zap.Error(err))
			server.Close()
		}

		logger.Info("Server stopped gracefully")
	}
}
