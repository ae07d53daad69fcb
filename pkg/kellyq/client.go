// Package kellyq is a Go SDK for the kelly-server HTTP API.
package kellyq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kelly-server: %d: %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for interacting with the kelly-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new kelly-server API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Scores returns the scores of the latest run, or of runID when non-empty.
func (c *Client) Scores(ctx context.Context, runID string) (*ScoresResponse, error) {
	path := "/api/scores"
	if runID != "" {
		path += "?run=" + url.QueryEscape(runID)
	}
	var out ScoresResponse
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Curve returns the growth table of symbol.
func (c *Client) Curve(ctx context.Context, symbol string) (*CurveResponse, error) {
	var out CurveResponse
	if err := c.do(ctx, http.MethodGet, "/api/curves/"+url.PathEscape(symbol), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Summary returns the per-symbol summaries of the latest run.
func (c *Client) Summary(ctx context.Context) (*SummaryResponse, error) {
	var out SummaryResponse
	if err := c.do(ctx, http.MethodGet, "/api/summary", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Runs lists up to limit persisted runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int) (*RunsResponse, error) {
	path := "/api/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out RunsResponse
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trigger asks the server to recompute now and returns the new scores.
func (c *Client) Trigger(ctx context.Context) (*ScoresResponse, error) {
	var out ScoresResponse
	if err := c.do(ctx, http.MethodPost, "/api/run", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var er ErrorResponse
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
