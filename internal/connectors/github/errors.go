package github

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

// ErrInvalidSignature is returned for webhook deliveries whose HMAC does
// not match the configured secret.
var ErrInvalidSignature = errors.New("github: invalid webhook signature")

// RateLimitError is returned when GitHub refuses a call for quota reasons.
// Secondary limits carry only the retry time.
type RateLimitError struct {
	Quota Quota
}

func (e *RateLimitError) Error() string {
	return "github: rate limited until " + e.Quota.Reset.Format(time.RFC3339)
}

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Op      string
	Status  int
	Message string
	URL     string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("github: %s: %d %s", e.Op, e.Status, e.Message)
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	return msg
}

// Unwrap maps 404 to domain.ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err is a missing file, issue or repository.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// IsRateLimited reports whether err is a *RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsUnauthorized reports whether GitHub rejected the token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
