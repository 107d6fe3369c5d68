// Package ollama generates text with a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/prdmachine/internal/adapters/driven/llm/httpapi"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

var _ driven.TextGenerator = (*Generator)(nil)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"

	// Local models are slow on long documents.
	DefaultTimeout = 5 * time.Minute
)

// Config configures a Generator. Every field is optional.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Generator calls POST /api/chat without streaming.
type Generator struct {
	api   *httpapi.Client
	model string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

func NewGenerator(cfg Config) *Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Generator{
		api:   httpapi.New("ollama", cfg.BaseURL, cfg.Timeout, nil),
		model: cfg.Model,
	}
}

// Generate sends system and user as a two-message chat.
func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := g.api.Post(ctx, "/api/chat", chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", resp.Err()
	}

	var out chatResponse
	if err := resp.Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return out.Message.Content, nil
}

func (g *Generator) ModelName() string { return g.model }

// Ping lists local models.
func (g *Generator) Ping(ctx context.Context) error {
	return g.api.Check(ctx, "/api/tags")
}

func (g *Generator) Close() error { return nil }
