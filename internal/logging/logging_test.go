package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerWithWriter_Formats(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter(slog.LevelInfo, "text", &buf).Info("hello", "uri", "gs://b/k")
	if out := buf.String(); !strings.Contains(out, "uri=gs://b/k") {
		t.Errorf("text output = %q", out)
	}

	buf.Reset()
	NewLoggerWithWriter(slog.LevelInfo, "json", &buf).Info("hello", "uri", "gs://b/k")
	if out := buf.String(); !strings.Contains(out, `"uri":"gs://b/k"`) {
		t.Errorf("json output = %q", out)
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelWarn, "text", &buf)

	logger.Info("filtered")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "filtered") {
		t.Errorf("INFO should be filtered at WARN level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("WARN should pass at WARN level: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNop(t *testing.T) {
	// Must not panic and must swallow output.
	Nop().With("component", "x").Info("dropped")
}
