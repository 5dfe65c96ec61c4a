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

	"github.com/robfig/cron/v3"

	"github.com/kirillkom/care-assistant/internal/bootstrap"
	"github.com/kirillkom/care-assistant/internal/config"
	"github.com/kirillkom/care-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/care-assistant/internal/observability/logging"
	"github.com/kirillkom/care-assistant/internal/observability/metrics"
)

const serviceName = "care-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedulerMetrics := metrics.NewSchedulerMetrics(serviceName, nil)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:           logger,
		SchedulerMetrics: schedulerMetrics,
		WithGraph:        true,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	r := &runner{
		scheduler:  app.Scheduler,
		recorder:   schedulerMetrics,
		runTimeout: cfg.SchedulerRunTimeout,
		logger:     logger,
	}
	if app.Projector != nil {
		r.project = func(ctx context.Context) error {
			_, err := app.CommandCentre.Project(ctx, app.Projector)
			return err
		}
	}

	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: logger}), cron.SkipIfStillRunning(cronLogger{logger: logger})),
	)
	if _, err := scheduler.AddFunc(cfg.SchedulerCron, func() { r.run(ctx, "cron") }); err != nil {
		logger.Error("scheduler_cron_invalid", "spec", cfg.SchedulerCron, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("scheduler_cron_started", "spec", cfg.SchedulerCron)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", schedulerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()

	if app.Bus != nil {
		go func() {
			logger.Info("worker_subscribed", "subject", cfg.NATSTriggerSubject)
			err := app.Bus.SubscribeRunRequests(ctx, func(handlerCtx context.Context, req nats.RunRequest) error {
				r.run(handlerCtx, "nats:"+req.RequestedBy)
				return nil
			})
			if err != nil {
				logger.Error("worker_subscribe_failed", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("worker_stopping")
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker_metrics_shutdown_failed", "error", err)
	}
}
