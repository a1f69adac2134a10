package heartbeat

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hb")

	w := NewWriter(path, time.Hour, testLogger())
	if err := w.Start(context.Background(), "server-1", 8080); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	hostname, port, err := Read(path, time.Minute)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if hostname != "server-1" || port != 8080 {
		t.Errorf("got %s:%d", hostname, port)
	}
}

func TestStopRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hb")

	w := NewWriter(path, time.Hour, testLogger())
	if err := w.Start(context.Background(), "server-1", 8080); err != nil {
		t.Fatalf("start: %v", err)
	}
	w.Stop()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("heartbeat file still exists after stop: %v", err)
	}
}

func TestReadStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hb")
	if err := os.WriteFile(path, []byte("server-1:8080"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	_, _, err := Read(path, time.Minute)
	if !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
}

func TestReadMissing(t *testing.T) {
	_, _, err := Read(filepath.Join(t.TempDir(), "nope"), time.Minute)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, ErrStale) {
		t.Fatal("missing file should not report ErrStale")
	}
}

func TestReadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hb")

	for _, content := range []string{"no-port", "server-1:notanumber", ":8080"} {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, _, err := Read(path, time.Minute); err == nil {
			t.Errorf("content %q: expected error", content)
		}
	}
}

func TestDefaultHostname(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hb")

	w := NewWriter(path, time.Hour, testLogger())
	if err := w.Start(context.Background(), "", 9000); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	hostname, port, err := Read(path, time.Minute)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if hostname == "" || port != 9000 {
		t.Errorf("got %q:%d", hostname, port)
	}
}
