package github

import (
	"context"
	"fmt"
	"strconv"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driven"
)

// Ensure adapters implement the interfaces.
var (
	_ driven.ContentSource = (*ContentSource)(nil)
	_ driven.IssueTracker  = (*IssueTracker)(nil)
)

// ContentSource reads repository files through the contents API.
type ContentSource struct {
	client *Client
}

// NewContentSource creates a content source backed by client.
func NewContentSource(client *Client) *ContentSource {
	return &ContentSource{client: client}
}

// FetchFile returns the file at path on the default branch of repo.
func (s *ContentSource) FetchFile(ctx context.Context, repo, path string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	content, err := s.client.GetFileContent(ctx, owner, name, path)
	if err != nil {
		return "", fmt.Errorf("%s:%s: %w", repo, path, err)
	}
	return content, nil
}

// IssueTracker creates GitHub issues.
type IssueTracker struct {
	client *Client
}

// NewIssueTracker creates an issue tracker backed by client.
func NewIssueTracker(client *Client) *IssueTracker {
	return &IssueTracker{client: client}
}

// CreateItem opens an issue. The reference ID is the issue number.
func (t *IssueTracker) CreateItem(
	ctx context.Context, repo, title, body string, labels []string,
) (domain.ExternalRef, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return domain.ExternalRef{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	issue, err := t.client.CreateIssue(ctx, owner, name, title, body, labels)
	if err != nil {
		return domain.ExternalRef{}, err
	}
	return domain.ExternalRef{
		ID:  strconv.Itoa(issue.GetNumber()),
		URL: issue.GetHTMLURL(),
	}, nil
}
