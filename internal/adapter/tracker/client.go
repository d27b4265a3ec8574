// Package tracker provides an HTTP client for a generic issue-tracker API
// and the reconciler strategies that sync issue entities through it.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Issue represents a work item on the tracker side.
type Issue struct {
	ID          string   `json:"id,omitempty"`
	Key         string   `json:"key,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

// Client talks to the issue tracker REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	pool       *requestPool
}

// NewClient creates a new tracker client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetConcurrencyLimit bounds the number of in-flight tracker requests.
func (c *Client) SetConcurrencyLimit(limit int) {
	c.pool = newRequestPool(limit)
}

// GetIssue fetches a single issue by its tracker-side ID.
func (c *Client) GetIssue(ctx context.Context, id string) (*Issue, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/issues/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, err)
	}

	var issue Issue
	if err := json.Unmarshal(resp, &issue); err != nil {
		return nil, fmt.Errorf("unmarshal issue %s: %w", id, err)
	}
	return &issue, nil
}

// CreateIssue creates a new issue and returns it with its assigned ID.
func (c *Client) CreateIssue(ctx context.Context, issue *Issue) (*Issue, error) {
	body, err := json.Marshal(issue)
	if err != nil {
		return nil, fmt.Errorf("marshal issue: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/issues", body)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	var created Issue
	if err := json.Unmarshal(resp, &created); err != nil {
		return nil, fmt.Errorf("unmarshal created issue: %w", err)
	}
	return &created, nil
}

// UpdateIssue overwrites an existing issue.
func (c *Client) UpdateIssue(ctx context.Context, issue *Issue) (*Issue, error) {
	body, err := json.Marshal(issue)
	if err != nil {
		return nil, fmt.Errorf("marshal issue: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPut, "/api/issues/"+issue.ID, body)
	if err != nil {
		return nil, fmt.Errorf("update issue %s: %w", issue.ID, err)
	}

	var updated Issue
	if err := json.Unmarshal(resp, &updated); err != nil {
		return nil, fmt.Errorf("unmarshal updated issue: %w", err)
	}
	return &updated, nil
}

// doRequest performs an HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var resp *http.Response
	if err := c.pool.run(ctx, func() error {
		var doErr error
		resp, doErr = c.httpClient.Do(req)
		return doErr
	}); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	return data, nil
}
