package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OpenAIConfig holds settings for an OpenAI-compatible embeddings endpoint
type OpenAIConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	Dimensions   int
	MaxBatchSize int
	RateLimitRPM int
	Timeout      time.Duration
}

// DefaultOpenAIConfig returns default embedding configuration
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:        "text-embedding-3-small",
		BaseURL:      "https://api.openai.com/v1",
		MaxBatchSize: 100,
		RateLimitRPM: 3000,
		Timeout:      60 * time.Second,
	}
}

// OpenAIEmbedder calls the /embeddings endpoint in batches.
type OpenAIEmbedder struct {
	config      OpenAIConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// NewOpenAIEmbedder creates a new embedder
func NewOpenAIEmbedder(config OpenAIConfig, logger *zap.Logger) *OpenAIEmbedder {
	defaults := DefaultOpenAIConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = defaults.MaxBatchSize
	}
	if config.RateLimitRPM <= 0 {
		config.RateLimitRPM = defaults.RateLimitRPM
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIEmbedder{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(config.RateLimitRPM)/60.0), 1),
		logger:      logger,
	}
}

// Model names the vector space. Shortened outputs of the same model are a
// different space, so the requested dimensions are part of the name.
func (o *OpenAIEmbedder) Model() string {
	if o.config.Dimensions > 0 {
		return fmt.Sprintf("%s-%d", o.config.Model, o.config.Dimensions)
	}
	return o.config.Model
}

func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += o.config.MaxBatchSize {
		end := i + o.config.MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := o.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		batch, err := o.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}
	return results, nil
}

func (o *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]interface{}{
		"model": o.config.Model,
		"input": texts,
	}
	if o.config.Dimensions > 0 {
		payload["dimensions"] = o.config.Dimensions
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.config.BaseURL+"/embeddings", bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embedding API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing embedding response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(result.Data), len(texts))
	}

	// Sort by index to maintain order
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding API returned out-of-range index %d", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}

	o.logger.Debug("generated embeddings",
		zap.Int("count", len(texts)),
		zap.Int("tokens", result.Usage.TotalTokens),
	)

	return embeddings, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
