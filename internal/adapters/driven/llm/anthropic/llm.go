// Package anthropic generates text with the Anthropic messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/prdmachine/internal/adapters/driven/llm/httpapi"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

var _ driven.TextGenerator = (*Generator)(nil)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 8192

	anthropicVersion = "2023-06-01"
)

// Config configures a Generator. Only APIKey is required.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Generator calls POST /v1/messages.
type Generator struct {
	api       *httpapi.Client
	model     string
	maxTokens int
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewGenerator fills unset Config fields with the package defaults.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	baseURL := valueOr(cfg.BaseURL, DefaultBaseURL)
	header := http.Header{}
	header.Set("x-api-key", cfg.APIKey)
	header.Set("anthropic-version", anthropicVersion)

	return &Generator{
		api:       httpapi.New("anthropic", baseURL, valueOr(cfg.Timeout, DefaultTimeout), header),
		model:     valueOr(cfg.Model, DefaultModel),
		maxTokens: valueOr(cfg.MaxTokens, DefaultMaxTokens),
	}, nil
}

// Generate passes system as the top-level system prompt and returns the
// concatenated text blocks of the reply.
func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := g.api.Post(ctx, "/v1/messages", messagesRequest{
		Model:     g.model,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", err
	}

	var out messagesResponse
	if err := resp.Decode(&out); err != nil {
		return "", fmt.Errorf("anthropic error (status %d): decode response: %w", resp.Status, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("anthropic error (status %d): %s", resp.Status, out.Error.Message)
	}
	if !resp.OK() {
		return "", resp.Err()
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("anthropic: no response content returned")
	}
	return text.String(), nil
}

func (g *Generator) ModelName() string { return g.model }

// Ping lists models, which checks the key without spending tokens.
func (g *Generator) Ping(ctx context.Context) error {
	return g.api.Check(ctx, "/v1/models")
}

func (g *Generator) Close() error { return nil }

func valueOr[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
