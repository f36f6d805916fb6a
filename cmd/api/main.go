package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/nutrition-assistant/internal/adapters/http"
	"github.com/kirillkom/nutrition-assistant/internal/bootstrap"
	"github.com/kirillkom/nutrition-assistant/internal/config"
	"github.com/kirillkom/nutrition-assistant/internal/observability/logging"
	"github.com/kirillkom/nutrition-assistant/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, logger, httpMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	app.RefreshLexical(ctx)
	go app.RunLexicalRefresh(ctx)

	router := httpadapter.NewRouter(cfg, app.TurnUC, app.ScanUC, app.ScanUC).
		WithMetrics(httpMetrics).
		WithHealth(app.UpstreamStates).
		WithLogger(logger)
	if app.History != nil {
		router = router.WithHistory(app.History)
	}
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.APIRequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "llm_provider", cfg.LLMProvider, "session_backend", cfg.SessionBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err.Error())
	}
}
