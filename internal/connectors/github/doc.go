// Package github connects the document engine to GitHub.
//
// It provides three things over the REST API and webhook deliveries:
//
//   - ContentSource: reads repository files (the canonical PRD, README,
//     manifests) from the default branch via the contents API.
//   - IssueTracker: creates issues for exported user stories.
//   - ParseWebhook: validates push, pull_request, issues and release
//     deliveries and maps them to engine triggers.
//
// # Authentication
//
// A personal access token is sent through an oauth2 static token source.
// Without a token only public repositories can be read and issue
// creation fails with 401.
//
// # Rate Limiting
//
// Calls pass through a token bucket and the X-RateLimit-* response headers
// are tracked. When fewer than ReserveRequests remain, callers wait for
// the reset time.
//
// # Errors
//
// API failures surface as *APIError; a 404 matches domain.ErrNotFound with
// errors.Is. Primary and secondary rate limits surface as *RateLimitError.
package github
