package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/stagehand/pkg/uri"
)

// LocalAdapter serves local-filesystem URIs.
type LocalAdapter struct {
	logger *slog.Logger
}

// NewLocalAdapter creates a filesystem adapter.
func NewLocalAdapter(logger *slog.Logger) *LocalAdapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LocalAdapter{logger: logger.With("component", "local-storage")}
}

func (a *LocalAdapter) Kind() uri.Kind { return uri.Local }

// Exists reports whether the locator names a regular file.
func (a *LocalAdapter) Exists(_ context.Context, u uri.URI) bool {
	info, err := os.Stat(u.Locator())
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

func (a *LocalAdapter) ReadText(_ context.Context, u uri.URI) (string, error) {
	data, err := os.ReadFile(u.Locator())
	if err != nil {
		return "", &ReadError{URI: u, Err: err}
	}
	return string(data), nil
}

func (a *LocalAdapter) WriteText(ctx context.Context, u uri.URI, text string) error {
	return a.Put(ctx, u, strings.NewReader(text))
}

func (a *LocalAdapter) Delete(_ context.Context, u uri.URI) error {
	if err := os.Remove(u.Locator()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("local storage: remove %s: %w", u, err)
	}
	return nil
}

func (a *LocalAdapter) Open(_ context.Context, u uri.URI) (io.ReadCloser, error) {
	f, err := os.Open(u.Locator())
	if err != nil {
		return nil, &ReadError{URI: u, Err: err}
	}
	return f, nil
}

// Put streams r to the locator through a temp file and an atomic
// rename, creating parent directories as needed. The temp name is
// unique per call, so concurrent writers racing on one destination
// each rename their own file into place instead of clobbering a
// shared temp path.
func (a *LocalAdapter) Put(_ context.Context, u uri.URI, r io.Reader) error {
	dst := u.Locator()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("local storage: mkdir: %w", err)
	}

	out, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("local storage: create temp: %w", err)
	}
	tmp := out.Name()

	_, err = io.Copy(out, r)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("local storage: write %s: %w", dst, err)
	}

	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("local storage: chmod temp: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("local storage: rename temp: %w", err)
	}
	return nil
}

// Copy copies a local file to a local destination.
func (a *LocalAdapter) Copy(ctx context.Context, src, dst uri.URI) error {
	in, err := a.Open(ctx, src)
	if err != nil {
		return err
	}
	defer in.Close()
	return a.Put(ctx, dst, in)
}

// ResumeFrom downloads src into u, appending to a partial temp file
// left by an earlier interrupted attempt when the source supports
// offset reads. The temp file is renamed into place only on success,
// so a half-written object is never visible at the final path.
func (a *LocalAdapter) ResumeFrom(ctx context.Context, u uri.URI, srcURI uri.URI, src ResumableSource) error {
	dst := u.Locator()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("local storage: mkdir: %w", err)
	}

	tmp := partialPath(dst)
	var offset int64
	if info, err := os.Stat(tmp); err == nil {
		offset = info.Size()
	}
	if offset > 0 {
		a.logger.Info("resuming partial download", "target", dst, "offset", offset)
	}

	in, err := src.OpenAt(ctx, srcURI, offset)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("local storage: open temp: %w", err)
	}

	_, err = io.Copy(out, in)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		// Keep the partial temp file for the next resume attempt.
		return fmt.Errorf("local storage: write %s: %w", dst, err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("local storage: rename temp: %w", err)
	}
	return nil
}

func partialPath(dst string) string { return dst + ".partial" }
