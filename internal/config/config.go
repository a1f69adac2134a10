// Package config loads the stagehand configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/stagehand/pkg/uri"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "2s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds everything stagehand needs for one invocation. It is
// loaded once and passed explicitly into constructors; nothing reads
// it from global state.
type Config struct {
	// Storage roots. LocalRoot is required; cloud roots are needed
	// only when localizing to that backend.
	LocalRoot string `yaml:"local_root"`
	GCSRoot   string `yaml:"gcs_root"`
	S3Root    string `yaml:"s3_root"`

	// HTTP credentials for password-protected URL sources.
	HTTPUser     string `yaml:"http_user"`
	HTTPPassword string `yaml:"http_password"`

	// Transfer policy.
	MaxRetries   int      `yaml:"max_retries"`
	RetryDelay   Duration `yaml:"retry_delay"`
	Concurrency  int      `yaml:"concurrency"`
	MaxDepth     int      `yaml:"max_depth"`
	AdvisoryLock bool     `yaml:"advisory_lock"`

	// Workflow engine endpoint.
	EngineURL      string `yaml:"engine_url"`
	EngineUser     string `yaml:"engine_user"`
	EnginePassword string `yaml:"engine_password"`

	// Local run-history database. ":memory:" for testing.
	DBPath string `yaml:"db_path"`

	// Server settings.
	Addr          string `yaml:"addr"`
	HeartbeatFile string `yaml:"heartbeat_file"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in defaults.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		LocalRoot:     filepath.Join(os.TempDir(), "stagehand"),
		MaxRetries:    3,
		RetryDelay:    Duration(time.Second),
		Concurrency:   8,
		MaxDepth:      32,
		EngineURL:     "http://localhost:8000",
		DBPath:        filepath.Join(home, ".stagehand", "stagehand.db"),
		Addr:          ":8080",
		HeartbeatFile: filepath.Join(home, ".stagehand", "server_heartbeat"),
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// DefaultPath is the conventional config file location; Load falls
// back to defaults when it does not exist.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".stagehand", "config.yaml")
}

// Load reads a YAML config file over the defaults. An empty path uses
// DefaultPath, and a missing file at the default location is not an
// error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path == "" {
		loadEnv(&cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			loadEnv(&cfg)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	loadEnv(&cfg)
	return cfg, nil
}

// loadEnv applies environment overrides for endpoints and credentials,
// so secrets can stay out of the config file.
func loadEnv(cfg *Config) {
	for env, field := range map[string]*string{
		"STAGEHAND_ENGINE_URL":      &cfg.EngineURL,
		"STAGEHAND_ENGINE_USER":     &cfg.EngineUser,
		"STAGEHAND_ENGINE_PASSWORD": &cfg.EnginePassword,
		"STAGEHAND_HTTP_USER":       &cfg.HTTPUser,
		"STAGEHAND_HTTP_PASSWORD":   &cfg.HTTPPassword,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// Roots parses the configured storage roots into URIs, keyed by kind.
// Only non-empty roots are included.
func (c Config) Roots() (map[uri.Kind]uri.URI, error) {
	roots := make(map[uri.Kind]uri.URI)

	entries := []struct {
		kind uri.Kind
		raw  string
	}{
		{uri.Local, c.LocalRoot},
		{uri.GCS, c.GCSRoot},
		{uri.S3, c.S3Root},
	}
	for _, e := range entries {
		if e.raw == "" {
			continue
		}
		u, err := uri.Parse(e.raw)
		if err != nil {
			return nil, fmt.Errorf("config: %s root: %w", e.kind, err)
		}
		if u.Kind() != e.kind {
			return nil, fmt.Errorf("config: %s root %q is a %s URI", e.kind, e.raw, u.Kind())
		}
		roots[e.kind] = u
	}
	return roots, nil
}
