// Package worker is the API client for the external execution worker. The
// worker accepts dispatch requests, acknowledges with a 202, and reports
// lifecycle events back asynchronously; status can also be queried
// synchronously for reconciliation.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 10 * time.Second

// Status is the worker's authoritative view of one execution.
type Status struct {
	Status             string `json:"status"`
	ProgressPercentage int    `json:"progress_percentage"`
	ProgressMessage    string `json:"progress_message,omitempty"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

// Client is the contract the orchestration core consumes. *HTTPClient
// satisfies it; tests substitute a mock.
type Client interface {
	Dispatch(ctx context.Context, jobType string, parameters map[string]any, correlationID string) error
	Stop(ctx context.Context, correlationID string) error
	QueryStatus(ctx context.Context, correlationID string) (*Status, error)
	Health(ctx context.Context) error
}

// HTTPClient talks to the worker over HTTP with bearer-token auth.
type HTTPClient struct {
	base   string
	token  string
	client *http.Client
}

func NewHTTPClient(base, token string) *HTTPClient {
	return &HTTPClient{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

type dispatchRequest struct {
	Parameters map[string]any `json:"parameters"`
}

// Dispatch posts the job payload to the worker with the trigger id as
// correlation metadata. The worker is expected to answer 202 and report
// progress through events.
func (c *HTTPClient) Dispatch(ctx context.Context, jobType string, parameters map[string]any, correlationID string) error {
	body, err := json.Marshal(dispatchRequest{Parameters: parameters})
	if err != nil {
		return fmt.Errorf("encode dispatch payload: %w", err)
	}

	path := fmt.Sprintf("/v1/jobs/%s/%s", url.PathEscape(jobType), url.PathEscape(correlationID))
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", correlationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("dispatch %s: worker returned %d", correlationID, resp.StatusCode)
	}
	return nil
}

// Stop asks the worker to halt an execution. Best effort: the local record
// is marked STOPPED regardless of the outcome here.
func (c *HTTPClient) Stop(ctx context.Context, correlationID string) error {
	path := fmt.Sprintf("/v1/executions/%s/stop", url.PathEscape(correlationID))
	resp, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return fmt.Errorf("stop %s: %w", correlationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("stop %s: worker returned %d", correlationID, resp.StatusCode)
	}
	return nil
}

// QueryStatus fetches the worker's authoritative status for an execution.
func (c *HTTPClient) QueryStatus(ctx context.Context, correlationID string) (*Status, error) {
	path := fmt.Sprintf("/v1/executions/%s/status", url.PathEscape(correlationID))
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("query status %s: %w", correlationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("query status %s: unknown to worker", correlationID)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("query status %s: worker returned %d", correlationID, resp.StatusCode)
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode status %s: %w", correlationID, err)
	}
	return &st, nil
}

// Health checks worker reachability.
func (c *HTTPClient) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("worker health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("worker health: returned %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.client.Do(req)
}
