package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/me/stagehand/pkg/uri"
)

// HTTPAdapter serves http:// and https:// URIs. The backend is
// read-only: WriteText and Put always fail.
type HTTPAdapter struct {
	client   *http.Client
	retry    RetryPolicy
	username string
	password string
	logger   *slog.Logger
}

// HTTPOptions configures the HTTP adapter.
type HTTPOptions struct {
	// Timeout bounds a single request. Zero means 5 minutes.
	Timeout time.Duration

	// Username and Password enable basic auth on every request when
	// both are set. Credentials are passed through as configured,
	// never prompted for.
	Username string
	Password string
}

// NewHTTPAdapter creates a read-only HTTP adapter.
func NewHTTPAdapter(opts HTTPOptions, retry RetryPolicy, logger *slog.Logger) *HTTPAdapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPAdapter{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:    retry,
		username: opts.Username,
		password: opts.Password,
		logger:   logger.With("component", "http-storage"),
	}
}

func (a *HTTPAdapter) Kind() uri.Kind { return uri.URL }

// Exists probes with a HEAD request. 4xx responses report false
// without retrying; transient failures retry per policy and report
// false once exhausted, with the cause logged.
func (a *HTTPAdapter) Exists(ctx context.Context, u uri.URI) bool {
	var found bool
	err := a.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.Locator(), nil)
		if err != nil {
			return err
		}
		a.applyAuth(req)

		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			found = true
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// Absent or forbidden; this is only a probe.
			found = false
			return nil
		default:
			return &httpStatusError{StatusCode: resp.StatusCode}
		}
	})
	if err != nil {
		a.logger.Warn("existence probe failed, treating as absent", "uri", u.String(), "error", err)
		return false
	}
	return found
}

func (a *HTTPAdapter) ReadText(ctx context.Context, u uri.URI) (string, error) {
	r, err := a.Open(ctx, u)
	if err != nil {
		return "", err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", &ReadError{URI: u, Err: err}
	}
	return string(data), nil
}

func (a *HTTPAdapter) WriteText(_ context.Context, u uri.URI, _ string) error {
	return fmt.Errorf("http storage: write %s: %w", u, ErrReadOnly)
}

func (a *HTTPAdapter) Put(_ context.Context, u uri.URI, _ io.Reader) error {
	return fmt.Errorf("http storage: put %s: %w", u, ErrReadOnly)
}

func (a *HTTPAdapter) Delete(_ context.Context, u uri.URI) error {
	return fmt.Errorf("http storage: delete %s: %w", u, ErrReadOnly)
}

func (a *HTTPAdapter) Open(ctx context.Context, u uri.URI) (io.ReadCloser, error) {
	return a.OpenAt(ctx, u, 0)
}

// OpenAt starts a streamed GET at the given byte offset using a Range
// request. Servers that ignore the range are compensated for by
// discarding the leading bytes; a 416 means the offset is already at
// the end and yields an empty reader.
func (a *HTTPAdapter) OpenAt(ctx context.Context, u uri.URI, offset int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.Locator(), nil)
	if err != nil {
		return nil, &ReadError{URI: u, Err: err}
	}
	a.applyAuth(req)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &ReadError{URI: u, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		return resp.Body, nil
	case resp.StatusCode == http.StatusOK:
		if offset > 0 {
			// Server ignored the range; skip what we already have.
			if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
				resp.Body.Close()
				return nil, &ReadError{URI: u, Err: err}
			}
		}
		return resp.Body, nil
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// Offset is at or past the end: nothing left to fetch.
		resp.Body.Close()
		return io.NopCloser(strings.NewReader("")), nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, &ReadError{URI: u, Err: fmt.Errorf("%w: HTTP %d", ErrAuthRequired, resp.StatusCode)}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, &ReadError{URI: u, Err: &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}}
	}
}

func (a *HTTPAdapter) applyAuth(req *http.Request) {
	if a.username != "" || a.password != "" {
		req.SetBasicAuth(a.username, a.password)
	}
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}
