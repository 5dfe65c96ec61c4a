package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/care-assistant/internal/core/agent"
	"github.com/kirillkom/care-assistant/internal/core/domain"
	"github.com/kirillkom/care-assistant/internal/core/ports"
)

const fallbackResponse = "I'm sorry, something went wrong while handling your message. Please try again in a moment."

// TurnObserver receives one observation per handled turn.
type TurnObserver interface {
	ObserveTurn(agentID domain.AgentID, outcome string, duration time.Duration)
}

type OrchestratorOptions struct {
	HistoryLimit     int
	PendingTaskDelay time.Duration
	Logger           *slog.Logger
	Observer         TurnObserver
	Now              func() time.Time
	NewID            func() string
}

// Orchestrator routes each inbound message to one agent and returns the
// updated caller-owned state. It holds no per-conversation data.
type Orchestrator struct {
	registry     *agent.Registry
	tasks        ports.TaskStore
	historyLimit int
	taskDelay    time.Duration
	logger       *slog.Logger
	observer     TurnObserver
	now          func() time.Time
	newID        func() string
}

func NewOrchestrator(registry *agent.Registry, tasks ports.TaskStore, opts OrchestratorOptions) *Orchestrator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Orchestrator{
		registry:     registry,
		tasks:        tasks,
		historyLimit: opts.HistoryLimit,
		taskDelay:    opts.PendingTaskDelay,
		logger:       opts.Logger,
		observer:     opts.Observer,
		now:          opts.Now,
		newID:        opts.NewID,
	}
}

func (o *Orchestrator) ProcessMessage(ctx context.Context, message string, state *domain.ConversationState) (*domain.TurnResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process message", errors.New("message is required"))
	}

	current := domain.ConversationState{}
	if state != nil {
		current = state.Clone()
	}
	if current.ConversationID == "" {
		current.ConversationID = o.newID()
	}

	start := time.Now()
	now := o.now()
	selected, reason := o.selectAgent(message, current)

	result, err := o.invoke(ctx, selected, agent.TurnInput{
		Message: message,
		State:   current.Clone(),
		Now:     now,
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrStoreUnavailable) {
			o.observe(selected.ID(), "store_unavailable", start)
			return nil, fmt.Errorf("agent %s: %w", selected.ID(), err)
		}
		o.logger.Error("agent_turn_failed",
			"conversation_id", current.ConversationID,
			"agent_id", selected.ID(),
			"route", reason,
			"error", err,
		)
		o.observe(domain.AgentError, "fallback", start)
		return &domain.TurnResponse{
			Response: fallbackResponse,
			AgentID:  domain.AgentError,
			Metadata: map[string]string{"failed_agent": string(selected.ID())},
			State:    current,
		}, nil
	}

	next := result.State
	next.ConversationID = current.ConversationID
	next.CallID = current.CallID
	if selected.InProgress(next) {
		next.ActiveAgent = selected.ID()
	} else {
		next.ActiveAgent = ""
		next.Slots = nil
	}
	next.History = o.appendHistory(next.History,
		domain.Turn{Role: domain.RoleUser, Content: message, At: now.UTC()},
		domain.Turn{Role: domain.RoleAssistant, Content: result.Response, AgentID: selected.ID(), At: now.UTC()},
	)

	metadata := make(map[string]string, len(result.Metadata)+1)
	for k, v := range result.Metadata {
		metadata[k] = v
	}
	metadata["route"] = reason

	o.logger.Debug("agent_turn",
		"conversation_id", next.ConversationID,
		"agent_id", selected.ID(),
		"route", reason,
		"active_agent", next.ActiveAgent,
	)
	o.observe(selected.ID(), "ok", start)

	return &domain.TurnResponse{
		Response: result.Response,
		AgentID:  selected.ID(),
		Metadata: metadata,
		State:    next,
	}, nil
}

// selectAgent applies sticky routing first, then trigger signals in
// registration order, then the default agent.
func (o *Orchestrator) selectAgent(message string, state domain.ConversationState) (agent.Agent, string) {
	if state.ActiveAgent != "" {
		if active, ok := o.registry.Lookup(state.ActiveAgent); ok && active.InProgress(state) {
			return active, "sticky"
		}
	}
	selected, phrase := o.registry.Classify(message)
	if phrase == "" {
		return selected, "default"
	}
	return selected, "signal:" + phrase
}

// invoke runs the agent and converts a panic into an error so that a
// defective agent never crashes the turn.
func (o *Orchestrator) invoke(ctx context.Context, a agent.Agent, input agent.TurnInput) (result domain.AgentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent %s panicked: %v", a.ID(), r)
		}
	}()
	return a.HandleTurn(ctx, input)
}

func (o *Orchestrator) appendHistory(history []domain.Turn, turns ...domain.Turn) []domain.Turn {
	out := append(append([]domain.Turn(nil), history...), turns...)
	if len(out) > o.historyLimit {
		out = out[len(out)-o.historyLimit:]
	}
	return out
}

// Abandon persists the state's pending actions as tasks for the scheduler
// and returns how many were created.
func (o *Orchestrator) Abandon(ctx context.Context, state domain.ConversationState) (int, error) {
	if len(state.PendingActions) == 0 {
		return 0, nil
	}
	now := o.now().UTC()
	dueAt := now.Add(o.taskDelay)
	created := 0
	for _, action := range state.PendingActions {
		if strings.TrimSpace(action.Kind) == "" {
			continue
		}
		task := &domain.Task{
			ID:             o.newID(),
			Kind:           action.Kind,
			ConversationID: state.ConversationID,
			CallID:         state.CallID,
			Details:        action.Note,
			Status:         domain.TaskStatusOpen,
			DueAt:          &dueAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := o.tasks.CreateTask(ctx, task); err != nil {
			return created, fmt.Errorf("create pending task %s: %w", action.Kind, err)
		}
		created++
	}
	o.logger.Info("conversation_abandoned",
		"conversation_id", state.ConversationID,
		"tasks_created", created,
	)
	return created, nil
}

func (o *Orchestrator) observe(agentID domain.AgentID, outcome string, start time.Time) {
	if o.observer == nil {
		return
	}
	o.observer.ObserveTurn(agentID, outcome, time.Since(start))
}
