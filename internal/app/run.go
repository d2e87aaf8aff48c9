package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/specialistvlad/cyclegrid/internal/config"
	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/engine"
	"github.com/specialistvlad/cyclegrid/internal/faults"
	"github.com/specialistvlad/cyclegrid/internal/inmemorystore"
	"github.com/specialistvlad/cyclegrid/internal/journal"
	"github.com/specialistvlad/cyclegrid/internal/tracing"
)

const (
	serviceName = "cyclegrid"
	version     = "0.1.0"
)

// Run loads, assembles and executes the configured graph, then writes the
// RunResult as JSON to the output writer. The result is written even when
// the run fails so that partial state stays inspectable. Run errors are
// prefixed with their kind.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer()
	defer func() {
		if cerr := a.closeHealthCheckServer(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	provider, closeTrace, err := a.tracingProvider(ctx)
	if err != nil {
		return fmt.Errorf("failed to configure tracing: %w", err)
	}
	defer func() {
		if serr := provider.Shutdown(context.WithoutCancel(ctx)); serr != nil {
			a.logger.Warn("Tracer shutdown failed", "error", serr)
		}
		closeTrace()
	}()

	storeOpts := []inmemorystore.Option{inmemorystore.WithRetention(a.config.Retention)}
	if a.config.JournalPath != "" {
		j, err := journal.Open(a.config.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer j.Close()
		storeOpts = append(storeOpts, inmemorystore.WithSink(j))
		a.logger.Debug("Journal opened.", "path", a.config.JournalPath)
	}

	doc, err := a.loadDocument(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(doc.Nodes) == 0 {
		a.logger.Warn("No nodes found in graph, execution not required.")
		return nil
	}

	built, params, err := config.Assemble(ctx, doc, a.registry)
	if err != nil {
		return classify(err)
	}

	eng := engine.New(
		engine.WithStore(inmemorystore.New(storeOpts...)),
		engine.WithWorkers(a.config.WorkerCount),
		engine.WithRetention(a.config.Retention),
		engine.WithTracer(provider.Tracer(serviceName)),
	)

	a.logger.Info("🚀 Starting execution...", "nodes", len(doc.Nodes), "workers", a.config.WorkerCount)
	var runOpts []engine.RunOption
	if a.config.Timeout > 0 {
		runOpts = append(runOpts, engine.WithTimeout(a.config.Timeout))
	}
	run, err := eng.Start(ctx, built, params, runOpts...)
	if err != nil {
		return classify(err)
	}
	a.activeRun.Store(run)
	defer a.activeRun.Store(nil)

	res, runErr := run.Wait()
	if res != nil {
		if err := writeResult(a.outW, res); err != nil {
			return err
		}
		a.logger.Info("🏁 Execution finished.", "runID", res.RunID, "duration", res.FinishedAt.Sub(res.StartedAt))
	}
	if runErr != nil {
		return classify(runErr)
	}
	return nil
}

func (a *App) tracingProvider(ctx context.Context) (*tracing.Provider, func(), error) {
	cfg := tracing.Config{ServiceName: serviceName, ServiceVersion: version}
	closeFn := func() {}
	switch a.config.TraceOutput {
	case "":
	case "stdout":
		cfg.Output = a.outW
	case "stderr":
		cfg.Output = a.logW
	default:
		f, err := os.Create(a.config.TraceOutput)
		if err != nil {
			return nil, nil, err
		}
		cfg.Output = f
		closeFn = func() { _ = f.Close() }
	}
	p, err := tracing.New(ctx, cfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return p, closeFn, nil
}

func writeResult(w io.Writer, res *engine.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write run result: %w", err)
	}
	return nil
}

// kindError prefixes an error with its faults.Kind.
type kindError struct {
	kind faults.Kind
	err  error
}

func (e *kindError) Error() string { return fmt.Sprintf("%s error: %v", e.kind, e.err) }

func (e *kindError) Unwrap() error { return e.err }

func classify(err error) error {
	var ke *kindError
	if errors.As(err, &ke) {
		return err
	}
	return &kindError{kind: faults.KindOf(err), err: err}
}
