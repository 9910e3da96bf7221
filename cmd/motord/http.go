package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ============================================================================
// HTTP Server
// ============================================================================
// One listener carries the telemetry websocket, the Prometheus scrape
// endpoint and a liveness probe.
// ============================================================================

// newHTTPMux wires the daemon's HTTP endpoints.
func newHTTPMux(cfg HTTPConfig, ws *Server) *http.ServeMux {
	mux := http.NewServeMux()

	if ws != nil {
		ws.Register(mux, cfg.WSPath)
	}
	if cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	return mux
}

// runHTTPServer serves handler on port and shuts down gracefully when ctx is
// canceled.
func runHTTPServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	logger.Info("HTTP server listening", "port", port)

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
