package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/care-assistant/internal/config"
	"github.com/kirillkom/care-assistant/internal/core/agent"
	"github.com/kirillkom/care-assistant/internal/core/domain"
	"github.com/kirillkom/care-assistant/internal/core/ports"
	"github.com/kirillkom/care-assistant/internal/core/usecase"
	"github.com/kirillkom/care-assistant/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/care-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/care-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/care-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/care-assistant/internal/observability/metrics"
)

// Options carries the process-specific observers.
type Options struct {
	Logger           *slog.Logger
	TurnObserver     usecase.TurnObserver
	SchedulerMetrics *metrics.SchedulerMetrics
	// WithGraph connects the Neo4j projector when NEO4J_URI is set.
	WithGraph bool
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Repo *postgres.RecordRepository
	// Bus is nil when NATS is disabled.
	Bus *nats.Bus
	// Projector is nil unless requested and configured.
	Projector *neo4j.Projector

	Orchestrator  *usecase.Orchestrator
	Scheduler     *usecase.Scheduler
	CommandCentre *usecase.CommandCentreUseCase
	Calls         *usecase.CallIntakeUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	signals, err := config.LoadAgentSignals(cfg.AgentSignalsFile)
	if err != nil {
		return nil, fmt.Errorf("load agent signals: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewRecordRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	closers := []func(){func() { _ = db.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		bus      *nats.Bus
		notifier ports.ActionNotifier
	)
	if cfg.NATSEnabled {
		executorOpts := []resilience.Option{resilience.WithLogger(logger)}
		if opts.SchedulerMetrics != nil {
			executorOpts = append(executorOpts, resilience.WithStateObserver(opts.SchedulerMetrics.ObserveBreaker))
		}
		bus, err = nats.Connect(cfg.NATSURL, nats.Options{
			ActionSubject:  cfg.NATSActionSubject,
			TriggerSubject: cfg.NATSTriggerSubject,
			ResilienceExecutor: resilience.NewExecutor(
				resilience.PublishConfig(cfg.NATSPublishRetryAttempts, cfg.NATSBreakerOpenTimeout),
				executorOpts...,
			),
			Logger: logger,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init message bus: %w", err)
		}
		closers = append(closers, bus.Close)
		notifier = bus
	} else {
		logger.Warn("nats_disabled", "detail", "scheduler actions are recorded but not published")
	}

	var projector *neo4j.Projector
	if opts.WithGraph && cfg.Neo4jURI != "" {
		projector, err = neo4j.NewProjector(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init graph projector: %w", err)
		}
		closers = append(closers, func() { _ = projector.Close(context.Background()) })
	}

	intervals := schedulerIntervals(cfg)
	registry, err := buildRegistry(cfg, signals, repo, intervals)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("build agent registry: %w", err)
	}

	orchestrator := usecase.NewOrchestrator(registry, repo, usecase.OrchestratorOptions{
		HistoryLimit:     cfg.ConversationHistoryLimit,
		PendingTaskDelay: intervals.PendingTaskDelay,
		Logger:           logger,
		Observer:         opts.TurnObserver,
	})

	schedulerOpts := usecase.SchedulerOptions{
		Intervals:   intervals,
		Concurrency: cfg.SchedulerConcurrency,
		Lock:        postgres.NewAdvisoryRunLock(db, postgres.SchedulerLockKey),
		Logger:      logger,
	}
	if opts.SchedulerMetrics != nil {
		schedulerOpts.Observer = opts.SchedulerMetrics
	}
	scheduler := usecase.NewScheduler(repo, notifier, schedulerOpts)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Repo:      repo,
		Bus:       bus,
		Projector: projector,

		Orchestrator:  orchestrator,
		Scheduler:     scheduler,
		CommandCentre: usecase.NewCommandCentreUseCase(repo, intervals.Recall, nil),
		Calls:         usecase.NewCallIntakeUseCase(repo, nil),

		closeFn: closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func schedulerIntervals(cfg config.Config) domain.SchedulerIntervals {
	return domain.SchedulerIntervals{
		Recall: cfg.RecallInterval(),
		TriageCheckIn: map[domain.Urgency]time.Duration{
			domain.UrgencyEmergency: hours(cfg.TriageEmergencyCheckInHrs),
			domain.UrgencyUrgent:    hours(cfg.TriageUrgentCheckInHrs),
			domain.UrgencyRoutine:   hours(cfg.TriageRoutineCheckInHrs),
		},
		DefaultTriageCheckIn: hours(cfg.TriageRoutineCheckInHrs),
		AppointmentFollowUp:  cfg.AppointmentFollowUp(),
		PendingTaskDelay:     cfg.PendingTaskDelay(),
	}
}

func hours(n int) time.Duration {
	return time.Duration(n) * time.Hour
}

// buildRegistry registers agents in the order the signal file lists them.
func buildRegistry(cfg config.Config, signals config.AgentSignals, store ports.RecordStore, intervals domain.SchedulerIntervals) (*agent.Registry, error) {
	agents := make([]agent.Agent, 0, len(signals.Agents))
	for _, entry := range signals.Agents {
		switch entry.ID {
		case string(domain.AgentTriage):
			agents = append(agents, agent.NewTriageAgent(store, agent.TriageOptions{
				Signals:      agent.NewSignals(entry.Signals...),
				Emergency:    agent.NewSignals(entry.Emergency...),
				Urgent:       agent.NewSignals(entry.Urgent...),
				CheckInDelay: intervals.TriageCheckInDelay,
			}))
		case string(domain.AgentScheduling):
			agents = append(agents, agent.NewSchedulingAgent(store, agent.SchedulingOptions{
				Signals:    agent.NewSignals(entry.Signals...),
				Reschedule: agent.NewSignals(entry.Reschedule...),
				Abort:      agent.NewSignals(entry.Abort...),
				Location:   cfg.ClinicLocation(),
				FollowUp:   intervals.AppointmentFollowUp,
				Calls:      store,
			}))
		default:
			return nil, fmt.Errorf("unknown agent %q", entry.ID)
		}
	}
	general := agent.NewGeneralAgent(agent.GeneralOptions{
		Hours:       cfg.ClinicHours,
		HoursSignal: agent.NewSignals(signals.General.Hours...),
	})
	return agent.NewRegistry(general, agents...)
}
