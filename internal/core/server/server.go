package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/geoquery/internal/core/config"
	"github.com/mohammed-shakir/geoquery/internal/core/health"
	middleware "github.com/mohammed-shakir/geoquery/internal/core/middleware"
	"github.com/mohammed-shakir/geoquery/internal/core/router"
)

// Deps are the request-serving components. DB and Sync feed readiness and
// may be nil.
type Deps struct {
	Dispatcher router.Dispatcher
	Layers     router.LayerAPI
	DB         health.Pinger
	Sync       health.ReadinessReporter
}

// Handler builds the chi router with every route mounted.
func Handler(logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.DB, d.Sync))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	router.Mount(r, logger, d.Dispatcher, d.Layers)
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// chat waits on the classifier and possibly on generation
		WriteTimeout: 2*cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
