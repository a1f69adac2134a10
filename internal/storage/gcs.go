package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/me/stagehand/pkg/uri"
)

// GCSAdapter serves gs:// URIs using the Google Cloud Storage client.
type GCSAdapter struct {
	client *gcs.Client
	retry  RetryPolicy
	logger *slog.Logger
}

// NewGCSAdapter creates a GCS adapter from application default credentials.
func NewGCSAdapter(ctx context.Context, retry RetryPolicy, logger *slog.Logger) (*GCSAdapter, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs storage: create client: %w", err)
	}
	return NewGCSAdapterWithClient(client, retry, logger), nil
}

// NewGCSAdapterWithClient wraps an existing client (used in tests
// against an emulator endpoint).
func NewGCSAdapterWithClient(client *gcs.Client, retry RetryPolicy, logger *slog.Logger) *GCSAdapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &GCSAdapter{
		client: client,
		retry:  retry,
		logger: logger.With("component", "gcs-storage"),
	}
}

func (a *GCSAdapter) Kind() uri.Kind { return uri.GCS }

func (a *GCSAdapter) object(u uri.URI) *gcs.ObjectHandle {
	bucket, key := splitBucketKey(u)
	return a.client.Bucket(bucket).Object(key)
}

// Exists probes object attributes, retrying transient failures.
func (a *GCSAdapter) Exists(ctx context.Context, u uri.URI) bool {
	var found bool
	err := a.retry.Do(ctx, func() error {
		_, err := a.object(u).Attrs(ctx)
		if err == nil {
			found = true
			return nil
		}
		if errors.Is(err, gcs.ErrObjectNotExist) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		a.logger.Warn("existence probe failed, treating as absent", "uri", u.String(), "error", err)
		return false
	}
	return found
}

func (a *GCSAdapter) ReadText(ctx context.Context, u uri.URI) (string, error) {
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

func (a *GCSAdapter) WriteText(ctx context.Context, u uri.URI, text string) error {
	return a.Put(ctx, u, strings.NewReader(text))
}

func (a *GCSAdapter) Delete(ctx context.Context, u uri.URI) error {
	if err := a.object(u).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("gcs storage: delete %s: %w", u, wrapGCSAuth(err))
	}
	return nil
}

func (a *GCSAdapter) Open(ctx context.Context, u uri.URI) (io.ReadCloser, error) {
	r, err := a.object(u).NewReader(ctx)
	if err != nil {
		return nil, &ReadError{URI: u, Err: wrapGCSAuth(err)}
	}
	return r, nil
}

// Put streams r into the object through a resumable-upload writer.
func (a *GCSAdapter) Put(ctx context.Context, u uri.URI, r io.Reader) error {
	w := a.object(u).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("gcs storage: write %s: %w", u, wrapGCSAuth(err))
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs storage: finalize %s: %w", u, wrapGCSAuth(err))
	}
	return nil
}

// Copy performs a server-side GCS-to-GCS object copy.
func (a *GCSAdapter) Copy(ctx context.Context, src, dst uri.URI) error {
	_, err := a.object(dst).CopierFrom(a.object(src)).Run(ctx)
	if err != nil {
		return fmt.Errorf("gcs storage: copy %s to %s: %w", src, dst, wrapGCSAuth(err))
	}
	return nil
}

func wrapGCSAuth(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == 401 || apiErr.Code == 403) {
		return fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}
	return err
}
