package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/care-assistant/internal/core/domain"
	"github.com/kirillkom/care-assistant/internal/core/ports"
)

type projectionRecorder interface {
	RecordProjection(err error)
}

// runner executes one scheduler pass per trigger and refreshes the graph
// projection afterwards.
type runner struct {
	scheduler  ports.SchedulerRunner
	project    func(ctx context.Context) error
	recorder   projectionRecorder
	runTimeout time.Duration
	logger     *slog.Logger
}

func (r *runner) run(ctx context.Context, trigger string) {
	runCtx := ctx
	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	result, err := r.scheduler.RunFullScheduler(runCtx)
	switch {
	case domain.IsKind(err, domain.ErrRunInProgress):
		r.logger.Info("scheduler_run_skipped", "trigger", trigger, "reason", "run in progress")
		return
	case err != nil:
		attrs := []any{"trigger", trigger, "error", err}
		if result != nil {
			attrs = append(attrs, "run_id", result.RunID, "considered", result.Considered, "remaining", result.Remaining)
		}
		r.logger.Error("scheduler_run_failed", attrs...)
	}

	if r.project == nil {
		return
	}
	projectErr := r.project(ctx)
	if r.recorder != nil {
		r.recorder.RecordProjection(projectErr)
	}
	if projectErr != nil {
		r.logger.Warn("graph_projection_failed", "trigger", trigger, "error", projectErr)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron_"+msg, append(keysAndValues, "error", err)...)
}
