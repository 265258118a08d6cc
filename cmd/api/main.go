package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/selfcanonical/csvmerge/internal/adapters/http"
	"github.com/selfcanonical/csvmerge/internal/bootstrap"
	"github.com/selfcanonical/csvmerge/internal/config"
	"github.com/selfcanonical/csvmerge/internal/observability/logging"
	"github.com/selfcanonical/csvmerge/internal/observability/metrics"
)

const serviceName = "csvmerge-api"

func main() {
	cfg := config.Load()
	logging.Setup(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	router := httpadapter.NewRouter(cfg, app.CreateUC, app.ReaderUC, app.Storage)
	router.OnJobCreated(func(files int, totalBytes int64) {
		httpMetrics.RecordJobCreated(serviceName, files, totalBytes)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", httpMetrics.Handler())
	mux.Handle("/", httpMetrics.Middleware(serviceName, router.Handler()))

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown error", "error", err)
	}
}
