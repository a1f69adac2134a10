package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/me/stagehand/internal/engine"
	"github.com/me/stagehand/internal/localize"
	"github.com/me/stagehand/internal/storage"
	"github.com/me/stagehand/internal/store"
)

// newService wires storage adapters for all four URI kinds into a
// localization service using the loaded config. The registry is
// returned too for callers that read objects directly.
func newService(ctx context.Context) (*localize.Service, *storage.Registry, error) {
	roots, err := cfg.Roots()
	if err != nil {
		return nil, nil, err
	}

	retry := storage.RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		Delay:       cfg.RetryDelay.Std(),
	}
	if retry.MaxAttempts <= 0 {
		retry = storage.DefaultRetryPolicy()
	}

	adapters := []storage.Adapter{
		storage.NewLocalAdapter(logger),
		storage.NewHTTPAdapter(storage.HTTPOptions{
			Username: cfg.HTTPUser,
			Password: cfg.HTTPPassword,
		}, retry, logger),
	}

	// Cloud adapters need ambient credentials; a missing credential
	// chain only disables that backend, it does not block local work.
	if gcsAdapter, err := storage.NewGCSAdapter(ctx, retry, logger); err != nil {
		logger.Warn("gcs backend disabled", "error", err)
	} else {
		adapters = append(adapters, gcsAdapter)
	}
	if s3Adapter, err := storage.NewS3Adapter(ctx, retry, logger); err != nil {
		logger.Warn("s3 backend disabled", "error", err)
	} else {
		adapters = append(adapters, s3Adapter)
	}
	reg := storage.NewRegistry(adapters...)

	svc := localize.NewService(localize.Config{
		Roots:        roots,
		MaxDepth:     cfg.MaxDepth,
		Concurrency:  cfg.Concurrency,
		AdvisoryLock: cfg.AdvisoryLock,
	}, reg, logger)
	return svc, reg, nil
}

// newEngine returns a client for the configured workflow engine.
func newEngine() *engine.Client {
	return engine.NewClient(engine.Config{
		BaseURL:    cfg.EngineURL,
		Username:   cfg.EngineUser,
		Password:   cfg.EnginePassword,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay.Std(),
	}, logger)
}

// openStore opens the run history database, creating its directory on
// first use.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
