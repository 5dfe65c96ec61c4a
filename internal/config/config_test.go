package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadIncludesSchedulerDefaults(t *testing.T) {
	t.Setenv("RECALL_INTERVAL_HOURS", "")
	t.Setenv("SCHEDULER_CRON", "")
	t.Setenv("SCHEDULER_CONCURRENCY", "")
	t.Setenv("CONVERSATION_HISTORY_LIMIT", "")

	cfg := Load()
	if cfg.RecallInterval() != 30*24*time.Hour {
		t.Fatalf("expected default recall interval 30 days, got %s", cfg.RecallInterval())
	}
	if cfg.SchedulerCron != "@every 15m" {
		t.Fatalf("expected default cron @every 15m, got %q", cfg.SchedulerCron)
	}
	if cfg.SchedulerConcurrency != 1 {
		t.Fatalf("expected default concurrency 1, got %d", cfg.SchedulerConcurrency)
	}
	if cfg.ConversationHistoryLimit != 20 {
		t.Fatalf("expected default history limit 20, got %d", cfg.ConversationHistoryLimit)
	}
}

func TestLoadParsesSchedulerOverrides(t *testing.T) {
	t.Setenv("RECALL_INTERVAL_HOURS", "48")
	t.Setenv("PENDING_TASK_DELAY_MINUTES", "5")
	t.Setenv("SCHEDULER_CONCURRENCY", "4")
	t.Setenv("NATS_ENABLED", "false")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")

	cfg := Load()
	if cfg.RecallInterval() != 48*time.Hour {
		t.Fatalf("expected recall interval 48h, got %s", cfg.RecallInterval())
	}
	if cfg.PendingTaskDelay() != 5*time.Minute {
		t.Fatalf("expected pending task delay 5m, got %s", cfg.PendingTaskDelay())
	}
	if cfg.SchedulerConcurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.SchedulerConcurrency)
	}
	if cfg.NATSEnabled {
		t.Fatalf("expected nats disabled")
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5, got %v", cfg.APIRateLimitRPS)
	}
}

func TestClinicLocationFallsBackToUTC(t *testing.T) {
	cfg := Config{ClinicTimezone: "Not/AZone"}
	if cfg.ClinicLocation() != time.UTC {
		t.Fatalf("expected UTC fallback for invalid timezone")
	}
}

func TestLoadAgentSignalsDefaultsWhenPathEmpty(t *testing.T) {
	signals, err := LoadAgentSignals("")
	if err != nil {
		t.Fatalf("LoadAgentSignals() error = %v", err)
	}
	if len(signals.Agents) != 2 || signals.Agents[0].ID != "triage" || signals.Agents[1].ID != "scheduling" {
		t.Fatalf("unexpected default agent order: %+v", signals.Agents)
	}
}

func TestLoadAgentSignalsKeepsFileOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	raw := []byte(`agents:
  - id: scheduling
    signals: [appointment, book]
  - id: triage
    signals: [pain]
    emergency: [chest pain]
general:
  hours: [hours]
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write signals file: %v", err)
	}

	signals, err := LoadAgentSignals(path)
	if err != nil {
		t.Fatalf("LoadAgentSignals() error = %v", err)
	}
	if signals.Agents[0].ID != "scheduling" || signals.Agents[1].ID != "triage" {
		t.Fatalf("expected file order to be preserved, got %+v", signals.Agents)
	}
	if len(signals.Agents[1].Emergency) != 1 {
		t.Fatalf("expected emergency signals to be parsed")
	}
}

func TestParseAgentSignalsRejectsDuplicatesAndUnknownIDs(t *testing.T) {
	cases := map[string]string{
		"duplicate": "agents:\n  - id: triage\n    signals: [pain]\n  - id: triage\n    signals: [ache]\n",
		"unknown":   "agents:\n  - id: billing\n    signals: [invoice]\n",
		"empty":     "agents:\n  - id: triage\n    signals: []\n",
		"field":     "agents:\n  - id: triage\n    signals: [pain]\n    weight: 2\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseAgentSignals([]byte(raw)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestSampleAgentSignalsFileParses(t *testing.T) {
	signals, err := LoadAgentSignals(filepath.Join("..", "..", "configs", "agents.yaml"))
	if err != nil {
		t.Fatalf("LoadAgentSignals() error = %v", err)
	}
	if len(signals.Agents) != 2 || signals.Agents[0].ID != "triage" || signals.Agents[1].ID != "scheduling" {
		t.Fatalf("unexpected agent order %+v", signals.Agents)
	}
	if len(signals.General.Hours) == 0 {
		t.Fatalf("expected hours signals")
	}
	for name, cfg := range map[string]AgentSignalConfig{
		"file":     signals.Agents[1],
		"defaults": DefaultAgentSignals().Agents[1],
	} {
		if len(cfg.Signals) < 2 || cfg.Signals[0] != "reschedule" || cfg.Signals[1] != "appointment" {
			t.Fatalf("%s: expected reschedule to be matched before appointment, got %v", name, cfg.Signals)
		}
	}
}
