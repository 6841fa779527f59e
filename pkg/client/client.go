package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tendant/motion-compare/pkg/compare"
)

// Client is an HTTP client for the comparison API
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New creates a new comparison client. Comparisons run inline, so the
// default timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// NewWithHTTPClient creates a new client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// WithToken sets the bearer token sent with every request
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// Compare runs a comparison and waits for its result
func (c *Client) Compare(ctx context.Context, req compare.Request) (*compare.Result, error) {
	var res compare.Result
	if err := c.do(ctx, http.MethodPost, "/v1/compare", req, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CompareAsync enqueues a comparison
func (c *Client) CompareAsync(ctx context.Context, req compare.Request) (*compare.AsyncResponse, error) {
	var res compare.AsyncResponse
	if err := c.do(ctx, http.MethodPost, "/v1/compare/async", req, http.StatusAccepted, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RunStatus fetches the state of a queued comparison
func (c *Client) RunStatus(ctx context.Context, runID string) (*compare.RunStatus, error) {
	var res compare.RunStatus
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+runID, nil, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
