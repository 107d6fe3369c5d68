// Package ai builds the configured text generator.
package ai

import (
	"context"
	"fmt"
	"time"

	anthropicllm "github.com/custodia-labs/prdmachine/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/prdmachine/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/prdmachine/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateAndValidateTextGenerator creates a generator and validates connectivity.
// Returns nil, nil when no provider is configured; the engine then reports
// domain.ErrTransformerUnavailable for operations that need one.
func CreateAndValidateTextGenerator(ctx context.Context, settings *domain.LLMSettings) (driven.TextGenerator, error) {
	gen, err := CreateTextGenerator(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'prdmachine config set llm.provider ...' to fix",
			domain.ErrTransformerUnavailable, err)
	}
	if gen == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := gen.Ping(ctx); err != nil {
		gen.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrTransformerUnavailable, err)
	}

	return gen, nil
}

// ValidateLLMConfig creates a generator from settings and pings it.
// Used by 'prdmachine config check' to validate credentials.
func ValidateLLMConfig(ctx context.Context, settings *domain.LLMSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return fmt.Errorf("%w: llm provider is not configured", domain.ErrTransformerUnavailable)
	}

	gen, err := CreateTextGenerator(settings)
	if err != nil {
		return err
	}
	defer gen.Close()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return gen.Ping(ctx)
}

// CreateTextGenerator creates the generator for the configured provider.
// Returns nil if the provider is not configured.
func CreateTextGenerator(settings *domain.LLMSettings) (driven.TextGenerator, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewGenerator(ollamallm.Config{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewGenerator(openaillm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})

	case domain.AIProviderAnthropic:
		return anthropicllm.NewGenerator(anthropicllm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
}
