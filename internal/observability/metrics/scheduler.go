package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

// SchedulerMetrics records scheduler runs, item outcomes, graph projections
// and outbound circuit breaker state.
type SchedulerMetrics struct {
	service  string
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	itemsTotal       *prometheus.CounterVec
	lastRunItems     *prometheus.GaugeVec
	lastSuccess      prometheus.Gauge
	projectionsTotal *prometheus.CounterVec
	breakerOpen      *prometheus.GaugeVec
}

// NewSchedulerMetrics registers with reg, or with a fresh registry served by
// Handler when reg is nil.
func NewSchedulerMetrics(service string, reg prometheus.Registerer) *SchedulerMetrics {
	var registry *prometheus.Registry
	if reg == nil {
		registry = prometheus.NewRegistry()
		reg = registry
	}

	m := &SchedulerMetrics{
		service:  service,
		registry: registry,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "runs_total",
				Help:      "Scheduler runs by status.",
			},
			[]string{"service", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "run_duration_seconds",
				Help:      "Scheduler run duration in seconds by status.",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"service", "status"},
		),
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "items_total",
				Help:      "Due items handled by kind and outcome.",
			},
			[]string{"service", "kind", "outcome"},
		),
		lastRunItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "last_run_items",
				Help:      "Item counts of the most recent run by outcome.",
			},
			[]string{"service", "outcome"},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last run that completed without a fatal error.",
				ConstLabels: prometheus.Labels{
					"service": service,
				},
			},
		),
		projectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "projections_total",
				Help:      "Command centre graph projections by status.",
			},
			[]string{"service", "status"},
		),
		breakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_open",
				Help:      "1 when the circuit breaker for an operation is open.",
			},
			[]string{"service", "operation"},
		),
	}

	reg.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.itemsTotal,
		m.lastRunItems,
		m.lastSuccess,
		m.projectionsTotal,
		m.breakerOpen,
	)
	return m
}

// Handler serves the private registry; it is nil when the metrics were
// registered with a shared registerer.
func (m *SchedulerMetrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SchedulerMetrics) ObserveItem(kind domain.DueKind, outcome domain.ItemOutcome) {
	m.itemsTotal.WithLabelValues(m.service, string(kind), string(outcome)).Inc()
}

func (m *SchedulerMetrics) ObserveRun(result *domain.SchedulerRunResult, duration time.Duration, err error) {
	status := "success"
	switch {
	case err != nil && result != nil && result.Aborted:
		status = "aborted"
	case err != nil:
		status = "error"
	}
	m.runsTotal.WithLabelValues(m.service, status).Inc()
	m.runDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())

	if result == nil {
		return
	}
	m.lastRunItems.WithLabelValues(m.service, string(domain.OutcomeActed)).Set(float64(result.Acted))
	m.lastRunItems.WithLabelValues(m.service, string(domain.OutcomeSkipped)).Set(float64(result.Skipped))
	m.lastRunItems.WithLabelValues(m.service, string(domain.OutcomeFailed)).Set(float64(result.Failed))
	if err == nil {
		m.lastSuccess.Set(float64(result.FinishedAt.Unix()))
	}
}

func (m *SchedulerMetrics) RecordProjection(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.projectionsTotal.WithLabelValues(m.service, status).Inc()
}

// ObserveBreaker matches resilience.StateObserver.
func (m *SchedulerMetrics) ObserveBreaker(operation, _ string, to string) {
	value := 0.0
	if to == "open" {
		value = 1
	}
	m.breakerOpen.WithLabelValues(m.service, operation).Set(value)
}
