package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/nutrition-assistant/internal/bootstrap"
	"github.com/kirillkom/nutrition-assistant/internal/config"
	"github.com/kirillkom/nutrition-assistant/internal/observability/logging"
	"github.com/kirillkom/nutrition-assistant/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.NewScanWorker(ctx, cfg, logger, workerMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	queue, err := app.ConnectQueue()
	if err != nil {
		logger.Error("queue_connect_failed", "error", err.Error())
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err.Error())
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = queue.SubscribeScans(ctx, func(handlerCtx context.Context, sessionID string, labels []string) error {
		ingestCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		workerMetrics.StartEvent()
		started := time.Now()
		result, err := app.ScanUC.Ingest(ingestCtx, sessionID, labels)
		workerMetrics.FinishEvent(time.Since(started), err)
		if err != nil {
			return err
		}
		logger.Debug("scan_event_applied", "session_id", sessionID, "applied", result.Applied, "items", len(result.Items))
		return nil
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
