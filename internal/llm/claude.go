package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ClaudeClient calls the Anthropic Messages API
type ClaudeClient struct {
	*transport
}

// DefaultConfig returns default Claude configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://api.anthropic.com",
		Model:        "claude-sonnet-4-20250514",
		Temperature:  0.2,
		MaxTokens:    8192,
		Timeout:      120 * time.Second,
		RateLimitRPM: 50,
	}
}

// NewClaudeClient creates a new Claude API client
func NewClaudeClient(cfg Config) (*ClaudeClient, error) {
	t, err := newTransport("claude", cfg, DefaultConfig())
	if err != nil {
		return nil, err
	}
	return &ClaudeClient{transport: t}, nil
}

// Request represents a Claude API request
type Request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Message is one turn of the conversation. Only a single user turn is sent.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response represents a Claude API response
type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// ContentBlock represents a content block in the response
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete sends a completion request to Claude
func (c *ClaudeClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error) {
	return c.complete(ctx, systemPrompt, userPrompt, func(ctx context.Context) (string, *Usage, error) {
		req := Request{
			Model:       c.model,
			MaxTokens:   c.maxTokens,
			System:      systemPrompt,
			Messages:    []Message{{Role: "user", Content: userPrompt}},
			Temperature: c.temperature,
		}
		headers := map[string]string{
			"x-api-key":         c.apiKey,
			"anthropic-version": "2023-06-01",
		}

		var resp Response
		if err := c.postJSON(ctx, c.baseURL+"/v1/messages", headers, req, &resp); err != nil {
			return "", nil, err
		}

		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		if text.Len() == 0 {
			return "", &resp.Usage, fmt.Errorf("empty response (stop reason %q)", resp.StopReason)
		}
		return text.String(), &resp.Usage, nil
	})
}
