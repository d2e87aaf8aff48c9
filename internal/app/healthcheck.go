package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
)

// healthHandler answers liveness probes. While the graph is executing the
// body also names the run.
func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	run := app.activeRun.Load()
	ctxlog.FromContext(app.ctx).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "running", run != nil)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if run != nil {
		fmt.Fprintf(w, "OK run=%s graph=%s\n", run.ID, app.config.GraphPath)
		return
	}
	fmt.Fprintln(w, "OK")
}

// healthCheckServer serves /health for the lifetime of a graph run. A port
// of zero disables it.
func (app *App) healthCheckServer() {
	logger := ctxlog.FromContext(app.ctx)
	if app.config.HealthcheckPort <= 0 {
		logger.Debug("Health check server disabled.")
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", app.healthHandler)

	addr := fmt.Sprintf(":%d", app.config.HealthcheckPort)
	app.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr), "graph", app.config.GraphPath)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
}

// closeHealthCheckServer stops the server once the run has finished.
func (app *App) closeHealthCheckServer() error {
	if app.httpServer == nil {
		return nil
	}
	logger := ctxlog.FromContext(app.ctx)

	ctx, cancel := context.WithTimeout(app.ctx, 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := app.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}

	logger.Debug("Health check server shut down gracefully.")
	return nil
}
