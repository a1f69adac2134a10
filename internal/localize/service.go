package localize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/me/stagehand/internal/storage"
	"github.com/me/stagehand/pkg/uri"
)

// ErrRecursionLimit is returned when nested manifests exceed the
// configured deepcopy depth.
var ErrRecursionLimit = errors.New("recursion limit exceeded")

// TransferError wraps a transport failure with the failing URI pair.
type TransferError struct {
	Source uri.URI
	Target uri.URI
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s to %s: %v", e.Source, e.Target, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Config is the explicit localization configuration. It replaces any
// ambient state: roots and policy are fixed for the lifetime of the
// Service they are passed to.
type Config struct {
	// Roots maps each localizable kind to its storage root. URL never
	// appears here because it is read-only.
	Roots map[uri.Kind]uri.URI

	// MaxDepth bounds manifest recursion. Zero means DefaultMaxDepth.
	MaxDepth int

	// Concurrency bounds parallel leaf localizations within one
	// deepcopy pass. Zero means DefaultConcurrency.
	Concurrency int

	// AdvisoryLock guards each transfer with a <target>.lock sentinel
	// on the target backend. Off by default: two independent processes
	// racing on one target path are safe for correctness (the loser's
	// transfer is skipped once the target exists) but a reader can
	// observe another writer's in-flight object.
	AdvisoryLock bool

	// LockPoll and LockTimeout control how long a foreign lock is
	// waited on before giving up.
	LockPoll    time.Duration
	LockTimeout time.Duration
}

const (
	DefaultMaxDepth    = 32
	DefaultConcurrency = 8
	defaultLockPoll    = 5 * time.Second
	defaultLockTimeout = 15 * time.Minute
)

func (c Config) maxDepth() int {
	if c.MaxDepth > 0 {
		return c.MaxDepth
	}
	return DefaultMaxDepth
}

func (c Config) concurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return DefaultConcurrency
}

func (c Config) lockPoll() time.Duration {
	if c.LockPoll > 0 {
		return c.LockPoll
	}
	return defaultLockPoll
}

func (c Config) lockTimeout() time.Duration {
	if c.LockTimeout > 0 {
		return c.LockTimeout
	}
	return defaultLockTimeout
}

// Service is the localization entry point: single-file localization,
// explicit-destination copies, and recursive manifest deepcopy.
type Service struct {
	cfg     Config
	reg     *storage.Registry
	planner *Planner
	logger  *slog.Logger
}

// NewService creates a Service over the given adapters.
func NewService(cfg Config, reg *storage.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		cfg:     cfg,
		reg:     reg,
		planner: NewPlanner(cfg.Roots, reg),
		logger:  logger.With("component", "localize"),
	}
}

// Localize copies source to the configured root of targetKind and
// returns the target URI. Re-running with the same inputs is a no-op:
// the target path is deterministic and an existing target is never
// overwritten.
func (s *Service) Localize(ctx context.Context, source uri.URI, targetKind uri.Kind) (uri.URI, error) {
	plan, err := s.planner.Plan(ctx, source, targetKind)
	if err != nil {
		return uri.URI{}, err
	}
	if !plan.NeedsTransfer {
		if plan.Source != plan.Target {
			s.logger.Debug("transfer skipped, target exists", "source", source.String(), "target", plan.Target.String())
		}
		return plan.Target, nil
	}

	if err := s.transfer(ctx, plan.Source, plan.Target); err != nil {
		return uri.URI{}, err
	}
	return plan.Target, nil
}

// CopyTo copies source to an explicit target URI, subject to the same
// no-clobber rule as planned transfers.
func (s *Service) CopyTo(ctx context.Context, source, target uri.URI) error {
	if !target.Localizable() {
		return fmt.Errorf("localize: %s is read-only, not a valid target", target)
	}
	return s.transfer(ctx, source, target)
}

// transfer moves one object between backends. The target is probed
// first and an existing object short-circuits to success without being
// touched.
func (s *Service) transfer(ctx context.Context, source, target uri.URI) error {
	srcAdapter, err := s.reg.For(source.Kind())
	if err != nil {
		return err
	}
	dstAdapter, err := s.reg.For(target.Kind())
	if err != nil {
		return err
	}

	run := func() error {
		if dstAdapter.Exists(ctx, target) {
			s.logger.Debug("transfer skipped, target exists", "target", target.String())
			return nil
		}

		s.logger.Info("copying",
			"from", source.Kind().String(), "to", target.Kind().String(), "source", source.String())

		if source.Kind() == target.Kind() {
			if copier, ok := srcAdapter.(storage.Copier); ok {
				return copier.Copy(ctx, source, target)
			}
		}

		// Resumable download path for local targets.
		if local, ok := dstAdapter.(*storage.LocalAdapter); ok {
			if rs, ok := srcAdapter.(storage.ResumableSource); ok {
				return local.ResumeFrom(ctx, target, source, rs)
			}
		}

		// Streamed relay: read from source into target without
		// materializing the object.
		r, err := srcAdapter.Open(ctx, source)
		if err != nil {
			return err
		}
		defer r.Close()
		return dstAdapter.Put(ctx, target, r)
	}

	if s.cfg.AdvisoryLock {
		err = s.withLock(ctx, target, dstAdapter, run)
	} else {
		err = run()
	}
	if err != nil {
		return &TransferError{Source: source, Target: target, Err: err}
	}
	return nil
}

// withLock wraps fn with a <target>.lock sentinel on the target
// backend, waiting a bounded time for a foreign lock to clear.
func (s *Service) withLock(ctx context.Context, target uri.URI, adapter storage.Adapter, fn func() error) error {
	lock := uri.Make(target.Kind(), target.Locator()+".lock")

	deadline := time.Now().Add(s.cfg.lockTimeout())
	for adapter.Exists(ctx, lock) {
		if time.Now().After(deadline) {
			return fmt.Errorf("target locked for too long: %s", lock)
		}
		s.logger.Info("waiting for lock", "lock", lock.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.lockPoll()):
		}
	}

	if err := adapter.WriteText(ctx, lock, ""); err != nil {
		return fmt.Errorf("acquire lock %s: %w", lock, err)
	}
	defer func() {
		if err := adapter.Delete(ctx, lock); err != nil {
			s.logger.Warn("failed to remove lock", "lock", lock.String(), "error", err)
		}
	}()

	return fn()
}
