package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/observability"
	"github.com/testforge/docforge/internal/resilience"
)

type completion struct {
	text  string
	usage *Usage
}

// GuardedClient wraps a provider client with a circuit breaker, metrics and
// logging. Failures come back as BACKEND_FAILED errors. There are no retries.
type GuardedClient struct {
	inner    Client
	provider string
	model    string
	breaker  *resilience.Breaker
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewGuardedClient wraps inner. breaker, metrics and logger may be nil.
func NewGuardedClient(inner Client, provider, model string, breaker *resilience.Breaker, metrics *observability.Metrics, logger *zap.Logger) *GuardedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardedClient{
		inner:    inner,
		provider: provider,
		model:    model,
		breaker:  breaker,
		metrics:  metrics,
		logger:   logger.With(zap.String("provider", provider), zap.String("model", model)),
	}
}

// Complete forwards to the provider unless the breaker is open.
func (g *GuardedClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error) {
	start := time.Now()

	call := func(ctx context.Context) (completion, error) {
		text, usage, err := g.inner.Complete(ctx, systemPrompt, userPrompt)
		return completion{text: text, usage: usage}, err
	}

	var (
		res completion
		err error
	)
	if g.breaker != nil {
		res, err = resilience.Do(ctx, g.breaker, call)
	} else {
		res, err = call(ctx)
	}
	duration := time.Since(start)

	var in, out int
	if res.usage != nil {
		in, out = res.usage.InputTokens, res.usage.OutputTokens
	}

	if err != nil {
		appErr := domain.ErrBackend(g.provider, err)
		status := "error"
		if IsThrottled(err) {
			status = "throttled"
			appErr = appErr.WithRetry()
		}
		g.metrics.RecordBackendRequest(g.provider, g.model, status, duration, in, out)
		g.logger.Warn("completion failed",
			zap.String("status", status),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", res.usage, appErr
	}

	g.metrics.RecordBackendRequest(g.provider, g.model, "success", duration, in, out)
	g.logger.Debug("completion finished",
		zap.Duration("duration", duration),
		zap.Int("input_tokens", in),
		zap.Int("output_tokens", out),
	)
	return res.text, res.usage, nil
}

// Provider returns the provider name
func (g *GuardedClient) Provider() string {
	return g.provider
}

// Model returns the model name
func (g *GuardedClient) Model() string {
	return g.model
}

// BreakerState reports the breaker state, or closed when none is set
func (g *GuardedClient) BreakerState() resilience.State {
	if g.breaker == nil {
		return resilience.StateClosed
	}
	return g.breaker.State()
}
