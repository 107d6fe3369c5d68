package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

// Ensure ContentSource implements the interface.
var _ driven.ContentSource = (*ContentSource)(nil)

// ContentSource serves files from a local checkout of one repository.
type ContentSource struct {
	repo string
	root string
}

// NewContentSource creates a content source for repo rooted at root.
// An empty repo serves every repository from the same checkout.
func NewContentSource(repo, root string) (*ContentSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", abs)
	}
	return &ContentSource{repo: repo, root: abs}, nil
}

// Root returns the absolute checkout path.
func (s *ContentSource) Root() string {
	return s.root
}

// FetchFile reads path relative to the checkout root.
func (s *ContentSource) FetchFile(ctx context.Context, repo, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.repo != "" && repo != s.repo {
		return "", fmt.Errorf("%w: no local checkout for %s", domain.ErrContentSourceUnavailable, repo)
	}

	rel := filepath.FromSlash(path)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: path %q escapes the checkout", domain.ErrInvalidInput, path)
	}

	data, err := os.ReadFile(filepath.Join(s.root, rel))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%s:%s: %w", repo, path, domain.ErrNotFound)
	case err != nil:
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
