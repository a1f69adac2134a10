// Package engine is a client for a Cromwell-compatible workflow
// engine's REST API.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

const apiBase = "/api/workflows/v1"

// HTTPError represents a non-2xx response from the engine.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsRetryable returns true if the error is worth retrying.
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Config holds connection settings for the engine.
type Config struct {
	// BaseURL is the engine's root URL, e.g. http://localhost:8000.
	BaseURL string

	// Username and Password enable HTTP basic auth when non-empty.
	Username string
	Password string

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client talks to the engine's REST API.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

// NewClient creates an engine client with the given configuration.
func NewClient(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
		logger: logger.With("component", "engine-client"),
	}
}

// Submit starts a new workflow and returns the engine-assigned ID.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := writeField(mw, "workflowSource", req.Source); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	if req.Inputs != "" {
		if err := writeField(mw, "workflowInputs", req.Inputs); err != nil {
			return "", fmt.Errorf("submit: %w", err)
		}
	}
	if req.Options != "" {
		if err := writeField(mw, "workflowOptions", req.Options); err != nil {
			return "", fmt.Errorf("submit: %w", err)
		}
	}
	if len(req.Labels) > 0 {
		labels, err := json.Marshal(req.Labels)
		if err != nil {
			return "", fmt.Errorf("submit: marshal labels: %w", err)
		}
		if err := writeField(mw, "labels", string(labels)); err != nil {
			return "", fmt.Errorf("submit: %w", err)
		}
	}
	if len(req.Dependencies) > 0 {
		fw, err := mw.CreateFormFile("workflowDependencies", "imports.zip")
		if err != nil {
			return "", fmt.Errorf("submit: %w", err)
		}
		if _, err := fw.Write(req.Dependencies); err != nil {
			return "", fmt.Errorf("submit: %w", err)
		}
	}
	if req.OnHold {
		if err := mw.WriteField("workflowOnHold", "true"); err != nil {
			return "", fmt.Errorf("submit: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, apiBase, mw.FormDataContentType(), buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("submit: unmarshal response: %w", err)
	}
	c.logger.Info("workflow submitted", "engine_id", resp.ID, "status", resp.Status)
	return resp.ID, nil
}

// Query lists workflows matching the given filters. Keys and values
// map directly onto the engine's query parameters (e.g. "status",
// "name", "label").
func (c *Client) Query(ctx context.Context, filters url.Values) (*QueryResponse, error) {
	path := apiBase + "/query"
	if len(filters) > 0 {
		path += "?" + filters.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	var resp QueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("query: unmarshal response: %w", err)
	}
	return &resp, nil
}

// Metadata fetches the full metadata document for a workflow.
func (c *Client) Metadata(ctx context.Context, engineID string) (Metadata, error) {
	body, err := c.do(ctx, http.MethodGet, apiBase+"/"+engineID+"/metadata", "", nil)
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", engineID, err)
	}

	var md Metadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("metadata %s: unmarshal response: %w", engineID, err)
	}
	return md, nil
}

// Abort requests that the engine stop a running workflow.
func (c *Client) Abort(ctx context.Context, engineID string) error {
	if _, err := c.do(ctx, http.MethodPost, apiBase+"/"+engineID+"/abort", "", nil); err != nil {
		return fmt.Errorf("abort %s: %w", engineID, err)
	}
	c.logger.Info("workflow aborted", "engine_id", engineID)
	return nil
}

// ReleaseHold releases a workflow submitted on hold.
func (c *Client) ReleaseHold(ctx context.Context, engineID string) error {
	if _, err := c.do(ctx, http.MethodPost, apiBase+"/"+engineID+"/releaseHold", "", nil); err != nil {
		return fmt.Errorf("release hold %s: %w", engineID, err)
	}
	return nil
}

// Backends lists the engine's available compute backends.
func (c *Client) Backends(ctx context.Context) (*BackendsResponse, error) {
	body, err := c.do(ctx, http.MethodGet, apiBase+"/backends", "", nil)
	if err != nil {
		return nil, fmt.Errorf("backends: %w", err)
	}

	var resp BackendsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("backends: unmarshal response: %w", err)
	}
	return &resp, nil
}

// do performs one request with retries on network failure and
// retryable HTTP statuses.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	logger := c.logger.With("method", method, "path", path)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.config.RetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			logger.Debug("retrying after delay", "attempt", attempt, "delay", delay)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		respBody, err := c.doRequest(ctx, method, path, contentType, body)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.IsRetryable() {
			return nil, err
		}
		logger.Debug("request failed, will retry", "error", err, "attempt", attempt)
	}

	return nil, fmt.Errorf("all retries exhausted: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// writeField adds a form field carried as a file part, which is how
// the engine expects workflow documents to arrive.
func writeField(mw *multipart.Writer, name, value string) error {
	fw, err := mw.CreateFormFile(name, name)
	if err != nil {
		return err
	}
	_, err = io.WriteString(fw, value)
	return err
}
