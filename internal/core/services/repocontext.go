package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
	"github.com/custodia-labs/prdmachine/internal/logger"
)

// Truncation limits applied to text embedded in instructions.
const (
	contextFileLimit   = 2000
	extendedFileLimit  = 1500
	driftBodyLimit     = 3000
	changelogBodyLimit = 2000
	summaryBodyLimit   = 1500
)

// referenceFiles are fetched for every distillation and detection.
var referenceFiles = []string{"README.md", "pyproject.toml", "package.json", "go.mod", "VERSION"}

// extendedReferenceFiles are added when generating a document from scratch.
var extendedReferenceFiles = []string{"docs/README.md", "CHANGELOG.md", "CONTRIBUTING.md", "Makefile"}

// contextEntry is one labelled block of repository context.
type contextEntry struct {
	Label   string
	Content string
}

// repoContext is an ordered list of context blocks.
type repoContext []contextEntry

// String renders the blocks as "=== label ===" sections.
func (c repoContext) String() string {
	parts := make([]string, 0, len(c))
	for _, e := range c {
		parts = append(parts, "=== "+e.Label+" ===\n"+e.Content+"\n")
	}
	return strings.Join(parts, "\n")
}

// contextGatherer reads reference files through the content source.
// Missing or failing files are omitted; gathering never fails.
type contextGatherer struct {
	source driven.ContentSource
}

func (g contextGatherer) gather(ctx context.Context, repo string, extra map[string]string) repoContext {
	out := extraContext(extra)
	out = append(out, g.fetchAll(ctx, repo, referenceFiles, contextFileLimit)...)
	return out
}

func (g contextGatherer) gatherExtended(ctx context.Context, repo string) repoContext {
	out := g.gather(ctx, repo, nil)
	out = append(out, g.fetchAll(ctx, repo, extendedReferenceFiles, extendedFileLimit)...)
	return out
}

func (g contextGatherer) fetchAll(ctx context.Context, repo string, paths []string, limit int) repoContext {
	if g.source == nil {
		return nil
	}
	var out repoContext
	for _, path := range paths {
		content, err := g.source.FetchFile(ctx, repo, path)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				logger.Warn("context file %s:%s skipped: %v", repo, path, err)
			}
			continue
		}
		out = append(out, contextEntry{Label: path, Content: truncate(content, limit)})
	}
	return out
}

// extraContext converts caller-supplied context into blocks sorted by key.
func extraContext(extra map[string]string) repoContext {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(repoContext, 0, len(keys))
	for _, k := range keys {
		out = append(out, contextEntry{Label: k, Content: extra[k]})
	}
	return out
}

// truncate limits s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
