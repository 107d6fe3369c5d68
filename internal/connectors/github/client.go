package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second
)

// Config holds GitHub API connection settings.
type Config struct {
	// Token is a personal access token. Empty means unauthenticated.
	Token string

	// BaseURL points at a GitHub Enterprise API (empty for github.com).
	BaseURL string

	// Timeout bounds each request (default: DefaultTimeout).
	Timeout time.Duration
}

// Client is a throttled go-github client whose errors are mapped to
// *APIError and *RateLimitError.
type Client struct {
	gh       *gh.Client
	throttle *Throttle
}

// NewClient creates a GitHub API client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = timeout
	}

	api := gh.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base := strings.TrimSuffix(cfg.BaseURL, "/") + "/"
		var err error
		if api, err = api.WithEnterpriseURLs(base, base); err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
	}

	return &Client{gh: api, throttle: NewThrottle()}, nil
}

// call runs fn once the throttle allows it and folds the response quota
// back into the throttle.
func (c *Client) call(ctx context.Context, op string, fn func() (*gh.Response, error)) error {
	if err := c.throttle.Acquire(ctx); err != nil {
		return fmt.Errorf("%s: waiting for rate limit: %w", op, err)
	}
	resp, err := fn()
	if resp != nil {
		c.throttle.Observe(resp.Response)
	}
	if err != nil {
		return mapError(op, err)
	}
	return nil
}

// GetFileContent returns the decoded contents of path on the default branch.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path string) (string, error) {
	var file *gh.RepositoryContent
	err := c.call(ctx, "get contents", func() (resp *gh.Response, err error) {
		file, _, resp, err = c.gh.Repositories.GetContents(ctx, owner, repo, path, nil)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	if file == nil {
		return "", fmt.Errorf("%s is a directory, not a file", path)
	}

	text, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return text, nil
}

// CreateIssue opens an issue with the given labels.
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (*gh.Issue, error) {
	req := &gh.IssueRequest{Title: gh.Ptr(title), Body: gh.Ptr(body)}
	if len(labels) > 0 {
		req.Labels = &labels
	}

	var issue *gh.Issue
	err := c.call(ctx, "create issue", func() (resp *gh.Response, err error) {
		issue, resp, err = c.gh.Issues.Create(ctx, owner, repo, req)
		return resp, err
	})
	return issue, err
}

// ValidateCredentials fetches the authenticated user.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	return c.call(ctx, "validate credentials", func() (resp *gh.Response, err error) {
		_, resp, err = c.gh.Users.Get(ctx, "")
		return resp, err
	})
}

// Quota returns the quota reported by the last response.
func (c *Client) Quota() Quota {
	return c.throttle.Quota()
}

func mapError(op string, err error) error {
	var primary *gh.RateLimitError
	if errors.As(err, &primary) {
		return &RateLimitError{Quota: Quota{
			Limit:     primary.Rate.Limit,
			Remaining: primary.Rate.Remaining,
			Reset:     primary.Rate.Reset.Time,
		}}
	}

	var secondary *gh.AbuseRateLimitError
	if errors.As(err, &secondary) {
		reset := time.Now()
		if secondary.RetryAfter != nil {
			reset = reset.Add(*secondary.RetryAfter)
		}
		return &RateLimitError{Quota: Quota{Reset: reset}}
	}

	var resp *gh.ErrorResponse
	if errors.As(err, &resp) && resp.Response != nil {
		apiErr := &APIError{Op: op, Status: resp.Response.StatusCode, Message: resp.Message}
		if resp.Response.Request != nil {
			apiErr.URL = resp.Response.Request.URL.String()
		}
		return apiErr
	}

	return fmt.Errorf("%s: %w", op, err)
}

// splitRepo splits "owner/name".
func splitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repository %q must be owner/name", repo)
	}
	return owner, name, nil
}
