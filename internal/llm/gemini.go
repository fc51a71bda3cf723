package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultGeminiConfig returns default Gemini configuration
func DefaultGeminiConfig() Config {
	return Config{
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
		Model:        "gemini-2.5-flash",
		Temperature:  0.2,
		MaxTokens:    8192,
		Timeout:      120 * time.Second,
		RateLimitRPM: 15,
	}
}

// GeminiClient calls the Gemini generateContent REST endpoint
type GeminiClient struct {
	*transport
}

// NewGeminiClient creates a new Gemini API client
func NewGeminiClient(cfg Config) (*GeminiClient, error) {
	t, err := newTransport("gemini", cfg, DefaultGeminiConfig())
	if err != nil {
		return nil, err
	}
	return &GeminiClient{transport: t}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Complete sends a generateContent request
func (g *GeminiClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error) {
	return g.complete(ctx, systemPrompt, userPrompt, func(ctx context.Context) (string, *Usage, error) {
		var req geminiRequest
		if systemPrompt != "" {
			req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
		}
		req.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userPrompt}}}}
		req.GenerationConfig.Temperature = g.temperature
		req.GenerationConfig.MaxOutputTokens = g.maxTokens

		endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
		var resp geminiResponse
		if err := g.postJSON(ctx, endpoint, map[string]string{"x-goog-api-key": g.apiKey}, req, &resp); err != nil {
			return "", nil, err
		}

		usage := &Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		}
		if resp.PromptFeedback.BlockReason != "" {
			return "", usage, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		if len(resp.Candidates) == 0 {
			return "", usage, fmt.Errorf("empty response: no candidates")
		}

		var text strings.Builder
		for _, p := range resp.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() == 0 {
			return "", usage, fmt.Errorf("empty response (finish reason %q)", resp.Candidates[0].FinishReason)
		}
		return text.String(), usage, nil
	})
}
