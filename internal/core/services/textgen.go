package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// generate calls the text generator once and classifies failures as
// domain.ErrTransformer. Retries belong to the trigger delivery layer.
func generate(ctx context.Context, gen driven.TextGenerator, system, user string) (string, error) {
	if gen == nil {
		return "", domain.ErrTransformerUnavailable
	}

	logger.Debug("generate: %d+%d instruction bytes via %s", len(system), len(user), gen.ModelName())
	out, err := gen.Generate(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTransformer, err)
	}

	out = stripFence(strings.TrimSpace(out))
	if out == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrTransformer)
	}
	return out, nil
}

// stripFence removes a single Markdown code fence wrapping the whole response.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	body := strings.TrimSuffix(s, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return s
	}
	return strings.TrimSpace(body[nl+1:])
}
