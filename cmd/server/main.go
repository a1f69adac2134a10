package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/me/stagehand/internal/config"
	"github.com/me/stagehand/internal/engine"
	"github.com/me/stagehand/internal/heartbeat"
	"github.com/me/stagehand/internal/localize"
	"github.com/me/stagehand/internal/logging"
	"github.com/me/stagehand/internal/server"
	"github.com/me/stagehand/internal/storage"
	"github.com/me/stagehand/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Config file (default ~/.stagehand/config.yaml)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	roots, err := cfg.Roots()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	svc := localize.NewService(localize.Config{
		Roots:        roots,
		MaxDepth:     cfg.MaxDepth,
		Concurrency:  cfg.Concurrency,
		AdvisoryLock: cfg.AdvisoryLock,
	}, storage.NewRegistry(adapters...), logger)

	// Open run history and migrate.
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", filepath.Dir(cfg.DBPath), err)
		os.Exit(1)
	}
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	var serverOpts []server.Option
	if cfg.EngineURL != "" {
		eng := engine.NewClient(engine.Config{
			BaseURL:    cfg.EngineURL,
			Username:   cfg.EngineUser,
			Password:   cfg.EnginePassword,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay.Std(),
		}, logger)
		serverOpts = append(serverOpts, server.WithEngine(eng))
		logger.Info("engine configured", "url", cfg.EngineURL)
	}

	srv := server.New(svc, st, logger, serverOpts...)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Announce ourselves for `stagehand info`.
	hb := heartbeat.NewWriter(cfg.HeartbeatFile, heartbeat.DefaultInterval, logger)
	if port, err := listenPort(cfg.Addr); err != nil {
		logger.Warn("heartbeat disabled", "addr", cfg.Addr, "error", err)
	} else if err := hb.Start(ctx, "", port); err != nil {
		logger.Warn("heartbeat disabled", "error", err)
	} else {
		defer hb.Stop()
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// listenPort extracts the numeric port from a listen address.
func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
