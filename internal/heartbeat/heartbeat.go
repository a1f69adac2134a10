// Package heartbeat shares a server's hostname and port with clients
// on the same filesystem. The server periodically stamps a file with
// "hostname:port"; clients read it and reject stale files so a dead
// server is not mistaken for a live one.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTimeout is how old a heartbeat file may be before a
	// client considers the server gone.
	DefaultTimeout = 2 * time.Minute

	// DefaultInterval is how often the server restamps the file.
	DefaultInterval = time.Minute
)

// ErrStale means the heartbeat file exists but is past the timeout.
var ErrStale = errors.New("heartbeat: file is stale")

// Writer periodically stamps a heartbeat file while the server runs.
type Writer struct {
	path     string
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWriter returns a Writer for the given file. A zero interval
// falls back to DefaultInterval.
func NewWriter(path string, interval time.Duration, logger *slog.Logger) *Writer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Writer{
		path:     path,
		interval: interval,
		logger:   logger.With("component", "heartbeat"),
	}
}

// Start writes the first heartbeat and then keeps restamping the file
// in the background until Stop is called or ctx is cancelled.
func (w *Writer) Start(ctx context.Context, hostname string, port int) error {
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("heartbeat: hostname: %w", err)
		}
		hostname = h
	}

	if err := w.write(hostname, port); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		w.logger.Info("heartbeat started", "file", w.path, "hostname", hostname, "port", port)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("heartbeat stopped", "file", w.path)
				return
			case <-ticker.C:
				if err := w.write(hostname, port); err != nil {
					w.logger.Error("failed to write heartbeat", "file", w.path, "error", err)
				}
			}
		}
	}()
	return nil
}

// Stop halts the background writer and removes the heartbeat file.
func (w *Writer) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		w.logger.Error("failed to remove heartbeat file", "file", w.path, "error", err)
	}
}

func (w *Writer) write(hostname string, port int) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("heartbeat: mkdir: %w", err)
	}
	content := fmt.Sprintf("%s:%d", hostname, port)
	if err := os.WriteFile(w.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("heartbeat: write %s: %w", w.path, err)
	}
	return nil
}

// Read returns the hostname and port from a heartbeat file. It
// returns ErrStale when the file's mtime is older than timeout; a
// zero timeout falls back to DefaultTimeout.
func Read(path string, timeout time.Duration) (string, int, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("heartbeat: stat %s: %w", path, err)
	}
	if time.Since(info.ModTime()) > timeout {
		return "", 0, fmt.Errorf("heartbeat: %s: %w", path, ErrStale)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("heartbeat: read %s: %w", path, err)
	}

	hostname, portStr, ok := strings.Cut(strings.TrimSpace(string(data)), ":")
	if !ok || hostname == "" {
		return "", 0, fmt.Errorf("heartbeat: malformed file %s: %q", path, data)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("heartbeat: malformed port in %s: %w", path, err)
	}
	return hostname, port, nil
}
