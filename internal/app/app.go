package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/specialistvlad/cyclegrid/internal/config"
	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/engine"
	"github.com/specialistvlad/cyclegrid/internal/hcl"
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/internal/yml"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logW       io.Writer
	logger     *slog.Logger
	config     *Config
	registry   *registry.Registry
	loaders    []config.Loader
	httpServer *http.Server
	activeRun  atomic.Pointer[engine.Run]
}

// NewApp is the constructor for the main application. Run results go to
// outW and logs to logW. Without modules the core modules are registered.
func NewApp(outW, logW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules()
	}
	if err := reg.RegisterModules(modules...); err != nil {
		return nil, fmt.Errorf("failed to register modules: %w", err)
	}
	reg.Freeze()
	logger.Debug("All Go modules registered.", "count", len(modules), "types", reg.Types())

	return &App{
		ctx:      ctx,
		outW:     outW,
		logW:     logW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		loaders:  []config.Loader{hcl.NewLoader(), yml.NewLoader()},
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
