package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/normative-retrieval/internal/bootstrap"
	"github.com/kirillkom/normative-retrieval/internal/config"
	"github.com/kirillkom/normative-retrieval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/normative-retrieval/internal/observability/logging"
	"github.com/kirillkom/normative-retrieval/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("retrieval-worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("retrieval-worker")
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Observers{
		Retrieval: workerMetrics.Retrieval(),
		Breaker:   workerMetrics.Retrieval().ObserveBreakerState,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSRetrievalSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		HandlerTimeout:     cfg.RetrievalRequestTimeout + 5*time.Second,
		ResilienceExecutor: app.Executor,
		Observer:           workerMetrics,
		Logger:             logger,
	})
	if err != nil {
		logger.Error("nats_connect_failed", "error", err)
		return
	}
	defer queue.Close()

	logger.Info("worker_subscribed", "subject", cfg.NATSRetrievalSubject, "queue_group", cfg.NATSQueueGroup)
	if err := queue.ServeRetrieval(ctx, app.Retriever); err != nil {
		logger.Error("worker_serve_failed", "error", err)
	}
}
