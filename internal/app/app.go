// Package app implements the application layer for stash: the cache
// session controller and the operations the CLI exposes over it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.trai.ch/stash/internal/adapters/watcher"
	"go.trai.ch/stash/internal/core/domain"
	"go.trai.ch/stash/internal/core/ports"
	"go.trai.ch/zerr"
)

// debounceWindow is how long the watcher waits after the last file system
// event before delivering a batch to the session.
const debounceWindow = 500 * time.Millisecond

// App represents the main application logic. Every operation loads the
// configuration fresh and runs against its own session.
type App struct {
	configLoader ports.ConfigLoader
	watcher      ports.Watcher
	files        ports.FileReader
	packages     ports.PackageReader
	modules      ports.ModuleLoader
	logger       ports.Logger
	tracer       ports.Tracer

	workdir  string
	debounce time.Duration
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	w ports.Watcher,
	files ports.FileReader,
	packages ports.PackageReader,
	modules ports.ModuleLoader,
	logger ports.Logger,
	tracer ports.Tracer,
) *App {
	return &App{
		configLoader: loader,
		watcher:      w,
		files:        files,
		packages:     packages,
		modules:      modules,
		logger:       logger,
		tracer:       tracer,
		workdir:      ".",
		debounce:     debounceWindow,
	}
}

// WithWorkdir overrides the directory configuration discovery starts from.
func (a *App) WithWorkdir(dir string) *App {
	a.workdir = dir
	return a
}

// WithDebounce overrides the event debounce window.
func (a *App) WithDebounce(window time.Duration) *App {
	a.debounce = window
	return a
}

// session loads the configuration and assembles a session for it.
func (a *App) session() (*Session, *domain.Config, error) {
	cfg, err := a.configLoader.Load(a.workdir)
	if err != nil {
		return nil, nil, zerr.Wrap(err, "failed to load configuration")
	}
	return NewSession(cfg, a.files, a.packages, a.modules, a.logger, a.tracer), cfg, nil
}

// Status reports the persisted and in-memory condition of the cache
// without mutating anything.
func (a *App) Status(ctx context.Context) (*Status, error) {
	s, _, err := a.session()
	if err != nil {
		return nil, err
	}
	return s.Status(ctx)
}

// GC rewrites the packs with entries outside the retention window removed.
func (a *App) GC(ctx context.Context) error {
	s, _, err := a.session()
	if err != nil {
		return err
	}
	return s.GC(ctx)
}

// Clean removes the cache namespace entirely.
func (a *App) Clean(_ context.Context) error {
	s, cfg, err := a.session()
	if err != nil {
		return err
	}
	if err := s.Clean(); err != nil {
		return err
	}
	a.logger.Info("cache cleared: " + cfg.NamespaceDir())
	return nil
}

// Watch runs the full session lifecycle: validate, resolve, then feed
// debounced file system events into the state machine until ctx ends.
func (a *App) Watch(ctx context.Context) error {
	s, cfg, err := a.session()
	if err != nil {
		return err
	}

	state := s.Validate(ctx)
	a.logger.Info(fmt.Sprintf("cache %q validated: %s", cfg.Name, state))

	if err := s.Refresh(ctx); err != nil {
		s.Shutdown()
		return zerr.Wrap(err, "initial resolve failed")
	}
	s.Begin()

	deb := watcher.NewDebouncer(a.debounce, func(paths []string) {
		s.OnEvent(ctx, paths)
	})
	if err := a.watcher.Start(ctx, cfg.Root); err != nil {
		s.Shutdown()
		return zerr.Wrap(err, "failed to start file watcher")
	}
	defer func() { _ = a.watcher.Stop() }()

	a.logger.Info("watching " + cfg.Root)
	for event := range a.watcher.Events() {
		deb.Add(event.Path)
	}

	// The event stream ended: ctx was cancelled or the watcher closed.
	deb.Flush()
	s.Shutdown()
	return nil
}
