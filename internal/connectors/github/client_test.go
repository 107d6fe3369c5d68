package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

const apiPrefix = "/api/v3"

// newTestClient points a client at an httptest server and removes throttling.
func newTestClient(t *testing.T, mux *http.ServeMux, token string) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), Config{Token: token, BaseURL: server.URL})
	require.NoError(t, err)
	client.throttle = newThrottle(rate.Inf)
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestContentSource_FetchFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(apiPrefix+"/repos/acme/widgets/contents/docs/PRD.md", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ghp_test", r.Header.Get("Authorization"))
		w.Header().Set(headerRemaining, "4321")
		w.Header().Set(headerLimit, "5000")
		writeJSON(w, http.StatusOK, map[string]any{
			"type":     "file",
			"path":     "docs/PRD.md",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte("# Widgets PRD\n")),
		})
	})
	client := newTestClient(t, mux, "ghp_test")

	content, err := NewContentSource(client).FetchFile(context.Background(), "acme/widgets", "docs/PRD.md")

	require.NoError(t, err)
	assert.Equal(t, "# Widgets PRD\n", content)
	assert.Equal(t, 4321, client.Quota().Remaining)
}

func TestContentSource_FetchFile_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(apiPrefix+"/repos/acme/widgets/contents/README.md", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
	})
	client := newTestClient(t, mux, "")

	_, err := NewContentSource(client).FetchFile(context.Background(), "acme/widgets", "README.md")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestContentSource_FetchFile_Directory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(apiPrefix+"/repos/acme/widgets/contents/docs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"type": "file", "path": "docs/PRD.md"}})
	})
	client := newTestClient(t, mux, "")

	_, err := NewContentSource(client).FetchFile(context.Background(), "acme/widgets", "docs")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestContentSource_FetchFile_InvalidRepo(t *testing.T) {
	client := newTestClient(t, http.NewServeMux(), "")

	for _, repo := range []string{"widgets", "/widgets", "acme/", "acme/widgets/extra"} {
		_, err := NewContentSource(client).FetchFile(context.Background(), repo, "PRD.md")
		assert.ErrorIs(t, err, domain.ErrInvalidInput, repo)
	}
}

func TestContentSource_FetchFile_RateLimited(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(apiPrefix+"/repos/acme/widgets/contents/PRD.md", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerRemaining, "0")
		w.Header().Set(headerLimit, "5000")
		w.Header().Set(headerReset, "1900000000")
		writeJSON(w, http.StatusForbidden, map[string]any{"message": "API rate limit exceeded for user."})
	})
	client := newTestClient(t, mux, "ghp_test")

	_, err := NewContentSource(client).FetchFile(context.Background(), "acme/widgets", "PRD.md")

	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, 0, client.Quota().Remaining)
}

func TestIssueTracker_CreateItem(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(apiPrefix+"/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req struct {
			Title  string   `json:"title"`
			Body   string   `json:"body"`
			Labels []string `json:"labels"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "[PRD] Export stories", req.Title)
		assert.Equal(t, "As a user...", req.Body)
		assert.Equal(t, []string{"prd-generated", "P1"}, req.Labels)

		writeJSON(w, http.StatusCreated, map[string]any{
			"number":   42,
			"html_url": "https://github.com/acme/widgets/issues/42",
		})
	})
	client := newTestClient(t, mux, "ghp_test")

	ref, err := NewIssueTracker(client).CreateItem(context.Background(),
		"acme/widgets", "[PRD] Export stories", "As a user...", []string{"prd-generated", "P1"})

	require.NoError(t, err)
	assert.Equal(t, domain.ExternalRef{ID: "42", URL: "https://github.com/acme/widgets/issues/42"}, ref)
}

func TestIssueTracker_CreateItem_Unauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(apiPrefix+"/repos/acme/widgets/issues", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Requires authentication"})
	})
	client := newTestClient(t, mux, "")

	_, err := NewIssueTracker(client).CreateItem(context.Background(), "acme/widgets", "t", "b", nil)

	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "create issue")
}

func TestClient_ValidateCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(apiPrefix+"/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Bad credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"login": "octocat"})
	})

	assert.NoError(t, newTestClient(t, mux, "good").ValidateCredentials(context.Background()))

	err := newTestClient(t, mux, "bad").ValidateCredentials(context.Background())
	assert.True(t, IsUnauthorized(err))
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{BaseURL: "://bad"})
	assert.Error(t, err)
}

func TestThrottle_AcquireWaitsForReset(t *testing.T) {
	throttle := newThrottle(rate.Inf)
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set(headerRemaining, "3")
	resp.Header.Set(headerReset, "1900000000")
	throttle.Observe(resp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, throttle.Acquire(ctx), context.Canceled)
	q := throttle.Quota()
	assert.Equal(t, 3, q.Remaining)
	assert.Equal(t, hourlyQuota, q.Limit, "limit header absent")
	assert.Equal(t, int64(1900000000), q.Reset.Unix())
}

func TestThrottle_IgnoresMalformedHeaders(t *testing.T) {
	throttle := newThrottle(rate.Inf)
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set(headerRemaining, "lots")
	throttle.Observe(resp)
	throttle.Observe(nil)

	assert.Equal(t, hourlyQuota, throttle.Quota().Remaining)
	assert.NoError(t, throttle.Acquire(context.Background()))
}

func TestRateLimitError_Message(t *testing.T) {
	err := &RateLimitError{Quota: Quota{Reset: time.Unix(1900000000, 0).UTC()}}
	assert.Equal(t, "github: rate limited until 2030-03-17T17:46:40Z", err.Error())
}
