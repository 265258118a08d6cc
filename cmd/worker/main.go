package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/selfcanonical/csvmerge/internal/bootstrap"
	"github.com/selfcanonical/csvmerge/internal/config"
	"github.com/selfcanonical/csvmerge/internal/observability/logging"
	"github.com/selfcanonical/csvmerge/internal/observability/metrics"
)

const serviceName = "csvmerge-worker"

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

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeJobQueued(ctx, func(handlerCtx context.Context, jobID string) error {
		mergeCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
		defer cancel()

		workerMetrics.StartJob()
		start := time.Now()
		job, mergeErr := app.MergeUC.MergeByID(mergeCtx, jobID)
		workerMetrics.FinishJob(serviceName, time.Since(start), mergeErr)

		if job != nil {
			workerMetrics.ObserveQueueLag(serviceName, start.Sub(job.CreatedAt))
			workerMetrics.RecordFileReports(serviceName, job.Reports)
		}
		return mergeErr
	})
	if err != nil {
		slog.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}
