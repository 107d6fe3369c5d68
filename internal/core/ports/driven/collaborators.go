package driven

import (
	"context"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

// ContentSource reads files from the tracked repository.
type ContentSource interface {
	// FetchFile returns the current content of path in repo.
	// Returns an error wrapping domain.ErrNotFound if the file does not exist.
	FetchFile(ctx context.Context, repo, path string) (string, error)
}

// IssueTracker creates work items in an external tracker.
type IssueTracker interface {
	// CreateItem creates one item and returns its reference.
	CreateItem(ctx context.Context, repo, title, body string, labels []string) (domain.ExternalRef, error)
}

// Notifier delivers conflict alerts. It never returns an error;
// the result reports whether delivery was confirmed.
type Notifier interface {
	Send(ctx context.Context, target string, payload domain.AlertPayload) bool
}
