// Package dbclient provides a typed gateway over the PostgREST metadata API.
//
// The gateway is stateless beyond its pooled HTTP client; callers that need
// isolation (scan workers, the uploader) construct their own instance.
package dbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout is the per-request timeout used when the caller does not
// configure one. Soft-delete sweeps over large tables can run long.
const DefaultTimeout = 120 * time.Second

// pageSize is the row count per page for paginated table fetches.
const pageSize = 2000

// Client is the PostgREST metadata API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new metadata API client. A zero timeout selects
// DefaultTimeout.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do performs an HTTP request and decodes the response.
// prefer is attached as the Prefer header when non-empty.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, prefer string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			apiErr.StatusCode = resp.StatusCode
			return &apiErr
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	return c.do(ctx, http.MethodGet, path, query, "", nil, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, path string, query url.Values, prefer string, body, result any) error {
	return c.do(ctx, http.MethodPost, path, query, prefer, body, result)
}

// patch performs a PATCH request.
func (c *Client) patch(ctx context.Context, path string, query url.Values, prefer string, body, result any) error {
	return c.do(ctx, http.MethodPatch, path, query, prefer, body, result)
}

// nowUTC returns the current time formatted the way PostgREST expects
// timestamptz values.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// truncate limits a string to max bytes. Error columns cap at 500.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
