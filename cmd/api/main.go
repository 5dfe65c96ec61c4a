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

	httpadapter "github.com/kirillkom/care-assistant/internal/adapters/http"
	"github.com/kirillkom/care-assistant/internal/bootstrap"
	"github.com/kirillkom/care-assistant/internal/config"
	"github.com/kirillkom/care-assistant/internal/observability/logging"
	"github.com/kirillkom/care-assistant/internal/observability/metrics"
)

const serviceName = "care-api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	schedulerMetrics := metrics.NewSchedulerMetrics(serviceName, httpMetrics.Registerer())

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:           logger,
		TurnObserver:     httpMetrics,
		SchedulerMetrics: schedulerMetrics,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	services := httpadapter.Services{
		Conversations: app.Orchestrator,
		Calls:         app.Calls,
		Scheduler:     app.Scheduler,
		CommandCentre: app.CommandCentre,
	}
	if app.Bus != nil {
		services.Trigger = app.Bus
	}

	handler, err := httpadapter.NewRouter(cfg, services, httpMetrics, logger).Handler()
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		os.Exit(1)
	}
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.SchedulerRunTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
