package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/me/stagehand/pkg/uri"
)

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
local_root: /scratch/stagehand
gcs_root: gs://my-tmp/scratch
max_retries: 5
retry_delay: 2s
advisory_lock: true
engine_url: http://engine:8000
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LocalRoot != "/scratch/stagehand" {
		t.Errorf("LocalRoot = %q", cfg.LocalRoot)
	}
	if cfg.GCSRoot != "gs://my-tmp/scratch" {
		t.Errorf("GCSRoot = %q", cfg.GCSRoot)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay.Std() != 2*time.Second {
		t.Errorf("RetryDelay = %v", cfg.RetryDelay)
	}
	if !cfg.AdvisoryLock {
		t.Errorf("AdvisoryLock = false")
	}
	// Untouched keys keep their defaults.
	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want default 8", cfg.Concurrency)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("engine_url: http://engine:8000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STAGEHAND_ENGINE_URL", "http://other:9000")
	t.Setenv("STAGEHAND_ENGINE_PASSWORD", "hunter2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EngineURL != "http://other:9000" {
		t.Errorf("EngineURL = %q", cfg.EngineURL)
	}
	if cfg.EnginePassword != "hunter2" {
		t.Errorf("EnginePassword = %q", cfg.EnginePassword)
	}
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Errorf("Load of an explicit missing path should fail")
	}
}

func TestRoots(t *testing.T) {
	cfg := Default()
	cfg.LocalRoot = "/tmp/root"
	cfg.GCSRoot = "gs://bucket/prefix"
	cfg.S3Root = ""

	roots, err := cfg.Roots()
	if err != nil {
		t.Fatalf("Roots: %v", err)
	}
	if got := roots[uri.Local].String(); got != "/tmp/root" {
		t.Errorf("local root = %q", got)
	}
	if got := roots[uri.GCS].String(); got != "gs://bucket/prefix" {
		t.Errorf("gcs root = %q", got)
	}
	if _, ok := roots[uri.S3]; ok {
		t.Errorf("empty s3 root should be omitted")
	}
}

func TestRoots_KindMismatch(t *testing.T) {
	cfg := Default()
	cfg.GCSRoot = "s3://wrong/kind"
	if _, err := cfg.Roots(); err == nil {
		t.Errorf("mismatched root kind should fail")
	}
}
