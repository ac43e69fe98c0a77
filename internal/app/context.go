package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"partnertrack/internal/config"
	"partnertrack/internal/engine"
	"partnertrack/internal/logging"
	"partnertrack/internal/persist"
	"partnertrack/internal/store"
)

// Options selects the workspace and optional overrides for one process.
type Options struct {
	Workspace string
	// Backend overrides config.storage.backend when set.
	Backend string
	// LogLevel overrides config.log.level when set.
	LogLevel string
	// Logger, when nil, is built from config.log.
	Logger *slog.Logger
	Now    func() time.Time
}

// Context is an opened workspace: resolved config, logger, backend and engine.
type Context struct {
	Config  *config.Config
	Log     *slog.Logger
	Backend persist.Backend
	Engine  engine.Engine

	logCloser io.Closer
}

// Open resolves partnertrack.yml (falling back to defaults), opens the configured
// storage backend and loads the state into a new store.
func Open(ctx context.Context, opts Options) (*Context, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Backend != "" {
		cfg.Storage.Backend = opts.Backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	log := opts.Logger
	var closer io.Closer
	if log == nil {
		log, closer, err = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
		if err != nil {
			return nil, err
		}
	}
	backend, err := OpenBackend(ctx, opts.Workspace, cfg, log)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := store.New(ctx, backend, store.Reducer{Now: now}, log)
	e := engine.New(s, cfg, log)
	e.Now = now
	log.Debug("workspace opened", slog.String("workspace", opts.Workspace), slog.String("backend", cfg.Storage.Backend))
	return &Context{Config: cfg, Log: log, Backend: backend, Engine: e, logCloser: closer}, nil
}

// OpenBackend builds the storage backend named by cfg.
func OpenBackend(ctx context.Context, workspace string, cfg *config.Config, log *slog.Logger) (persist.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendFile:
		return persist.NewFileBackend(workspace, cfg.Storage.Key, log)
	case config.BackendSQLite:
		return persist.OpenSQLite(ctx, workspace, cfg.Storage.Key, log)
	case config.BackendMemory:
		return persist.NewMemoryBackend(log), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Close releases the backend and the log file.
func (c *Context) Close() error {
	var errs []error
	if c.Backend != nil {
		errs = append(errs, c.Backend.Close())
	}
	if c.logCloser != nil {
		errs = append(errs, c.logCloser.Close())
	}
	return errors.Join(errs...)
}
