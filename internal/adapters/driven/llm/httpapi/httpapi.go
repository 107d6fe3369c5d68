// Package httpapi is the JSON-over-HTTP plumbing shared by the LLM
// adapters that have no vendor SDK.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client sends JSON requests to one provider.
type Client struct {
	provider string
	baseURL  string
	header   http.Header
	http     *http.Client
}

// New returns a client for provider rooted at baseURL. header is sent
// with every request.
func New(provider, baseURL string, timeout time.Duration, header http.Header) *Client {
	if header == nil {
		header = http.Header{}
	}
	return &Client{
		provider: provider,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		header:   header,
		http:     &http.Client{Timeout: timeout},
	}
}

// Response is a fully read reply.
type Response struct {
	provider string
	Status   int
	Body     []byte
}

// OK reports a 200 status.
func (r *Response) OK() bool { return r.Status == http.StatusOK }

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Err describes a non-200 reply.
func (r *Response) Err() error {
	return &StatusError{Provider: r.provider, Status: r.Status, Body: string(r.Body)}
}

// StatusError is a reply with an unexpected HTTP status.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.Status, e.Body)
}

// Post sends in as JSON to path.
func (c *Client) Post(ctx context.Context, path string, in any) (*Response, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(payload))
}

// Check GETs path and fails on anything but 200. It is used to verify
// credentials and reachability without running inference.
func (c *Client) Check(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodGet, path, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: ping failed: %w", c.provider, err)
	}
	if !resp.OK() {
		return resp.Err()
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range c.header {
		req.Header[k] = vs
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{provider: c.provider, Status: resp.StatusCode, Body: data}, nil
}
