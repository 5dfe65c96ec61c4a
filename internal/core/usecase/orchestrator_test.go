package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/care-assistant/internal/config"
	"github.com/kirillkom/care-assistant/internal/core/agent"
	"github.com/kirillkom/care-assistant/internal/core/domain"
)

var orchestratorNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type scriptedAgent struct {
	id       domain.AgentID
	signals  agent.Signals
	panicMsg string
	err      error
}

func (a *scriptedAgent) ID() domain.AgentID                       { return a.id }
func (a *scriptedAgent) Signals() agent.Signals                   { return a.signals }
func (a *scriptedAgent) InProgress(domain.ConversationState) bool { return false }

func (a *scriptedAgent) HandleTurn(_ context.Context, input agent.TurnInput) (domain.AgentResult, error) {
	if a.panicMsg != "" {
		panic(a.panicMsg)
	}
	if a.err != nil {
		return domain.AgentResult{}, a.err
	}
	return domain.AgentResult{Response: "ok", AgentID: a.id, State: input.State}, nil
}

type recordingTurnObserver struct {
	outcomes []string
}

func (r *recordingTurnObserver) ObserveTurn(agentID domain.AgentID, outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, string(agentID)+":"+outcome)
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestRegistry(t *testing.T, store *fakeRecordStore) *agent.Registry {
	t.Helper()
	defaults := config.DefaultAgentSignals()
	triageCfg, schedulingCfg := defaults.Agents[0], defaults.Agents[1]
	intervals := testIntervals()

	triage := agent.NewTriageAgent(store, agent.TriageOptions{
		Signals:      agent.NewSignals(triageCfg.Signals...),
		Emergency:    agent.NewSignals(triageCfg.Emergency...),
		Urgent:       agent.NewSignals(triageCfg.Urgent...),
		CheckInDelay: intervals.TriageCheckInDelay,
		NewID:        sequentialIDs("triage"),
	})
	scheduling := agent.NewSchedulingAgent(store, agent.SchedulingOptions{
		Signals:    agent.NewSignals(schedulingCfg.Signals...),
		Reschedule: agent.NewSignals(schedulingCfg.Reschedule...),
		Abort:      agent.NewSignals(schedulingCfg.Abort...),
		FollowUp:   intervals.AppointmentFollowUp,
		Calls:      store,
		NewID:      sequentialIDs("appt"),
	})
	general := agent.NewGeneralAgent(agent.GeneralOptions{
		Hours:       "Monday to Friday, 8am to 6pm",
		HoursSignal: agent.NewSignals(defaults.General.Hours...),
	})
	registry, err := agent.NewRegistry(general, triage, scheduling)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return registry
}

func newTestOrchestrator(t *testing.T, store *fakeRecordStore, observer TurnObserver) *Orchestrator {
	t.Helper()
	return NewOrchestrator(newTestRegistry(t, store), store, OrchestratorOptions{
		HistoryLimit:     6,
		PendingTaskDelay: time.Hour,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer:         observer,
		Now:              func() time.Time { return orchestratorNow },
		NewID:            sequentialIDs("conv"),
	})
}

func TestProcessMessageRescheduleStartsSchedulingFlow(t *testing.T) {
	store := newFakeRecordStore()
	orchestrator := newTestOrchestrator(t, store, nil)

	resp, err := orchestrator.ProcessMessage(context.Background(), "I need to reschedule my appointment", nil)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if resp.AgentID != domain.AgentScheduling {
		t.Fatalf("expected scheduling agent, got %s", resp.AgentID)
	}
	if !strings.Contains(resp.Response, "date and time") {
		t.Fatalf("expected request for a new date and time, got %q", resp.Response)
	}
	if resp.State.ActiveAgent != domain.AgentScheduling {
		t.Fatalf("expected active agent scheduling, got %q", resp.State.ActiveAgent)
	}
	if resp.State.ConversationID != "conv-1" {
		t.Fatalf("expected generated conversation id, got %q", resp.State.ConversationID)
	}
	if resp.Metadata["route"] != "signal:reschedule" {
		t.Fatalf("unexpected route %q", resp.Metadata["route"])
	}
	if len(resp.State.History) != 2 {
		t.Fatalf("expected user and assistant turns, got %d", len(resp.State.History))
	}
}

func TestProcessMessageIsDeterministic(t *testing.T) {
	state := &domain.ConversationState{ConversationID: "c-1"}
	run := func() *domain.TurnResponse {
		store := newFakeRecordStore()
		resp, err := newTestOrchestrator(t, store, nil).ProcessMessage(context.Background(), "can I book an appointment tomorrow at 3pm", state)
		if err != nil {
			t.Fatalf("ProcessMessage() error = %v", err)
		}
		return resp
	}
	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical responses:\n%+v\n%+v", first, second)
	}
}

func TestProcessMessageStickyRoutingCompletesBooking(t *testing.T) {
	store := newFakeRecordStore()
	orchestrator := newTestOrchestrator(t, store, nil)

	resp, err := orchestrator.ProcessMessage(context.Background(), "I'd like to book an appointment", nil)
	if err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	if resp.State.ActiveAgent != domain.AgentScheduling {
		t.Fatalf("expected scheduling to stay active")
	}

	resp, err = orchestrator.ProcessMessage(context.Background(), "tomorrow at 10:30am", &resp.State)
	if err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}
	if resp.Metadata["route"] != "sticky" {
		t.Fatalf("expected sticky route, got %q", resp.Metadata["route"])
	}
	// "fever" would route to triage without sticky routing.
	resp, err = orchestrator.ProcessMessage(context.Background(), "follow up about my fever", &resp.State)
	if err != nil {
		t.Fatalf("turn 3 error = %v", err)
	}
	if resp.AgentID != domain.AgentScheduling || resp.Metadata["stage"] != "booked" {
		t.Fatalf("expected booking to complete, got %s %+v", resp.AgentID, resp.Metadata)
	}
	if resp.State.ActiveAgent != "" || len(resp.State.Slots) != 0 {
		t.Fatalf("expected flow to finish, got %+v", resp.State)
	}
	if len(resp.State.PendingActions) != 0 {
		t.Fatalf("expected pending action to clear, got %+v", resp.State.PendingActions)
	}
	if len(store.appointments) != 1 {
		t.Fatalf("expected one appointment stored, got %d", len(store.appointments))
	}
	for _, a := range store.appointments {
		want := time.Date(2026, 3, 11, 10, 30, 0, 0, time.UTC)
		if !a.ScheduledAt.Equal(want) {
			t.Fatalf("expected appointment at %s, got %s", want, a.ScheduledAt)
		}
		if a.Reason != "follow up about my fever" {
			t.Fatalf("unexpected reason %q", a.Reason)
		}
	}
}

func TestProcessMessageTriagePriorityAndRecord(t *testing.T) {
	store := newFakeRecordStore()
	orchestrator := newTestOrchestrator(t, store, nil)

	resp, err := orchestrator.ProcessMessage(context.Background(), "I have chest pain and need an appointment", nil)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if resp.AgentID != domain.AgentTriage {
		t.Fatalf("expected triage to win over scheduling, got %s", resp.AgentID)
	}
	if resp.Metadata["urgency"] != string(domain.UrgencyEmergency) {
		t.Fatalf("expected emergency urgency, got %q", resp.Metadata["urgency"])
	}
	record, ok := store.triage[resp.Metadata["triage_id"]]
	if !ok {
		t.Fatalf("expected triage record to be stored")
	}
	if want := orchestratorNow.Add(4 * time.Hour); !record.CheckInAt.Equal(want) {
		t.Fatalf("expected check-in at %s, got %s", want, record.CheckInAt)
	}
}

func TestProcessMessageFallsBackToGeneral(t *testing.T) {
	store := newFakeRecordStore()
	orchestrator := newTestOrchestrator(t, store, nil)

	resp, err := orchestrator.ProcessMessage(context.Background(), "what are your opening hours?", nil)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if resp.AgentID != domain.AgentGeneral || resp.Metadata["route"] != "default" {
		t.Fatalf("expected general default route, got %s %q", resp.AgentID, resp.Metadata["route"])
	}
	if !strings.Contains(resp.Response, "Monday to Friday") {
		t.Fatalf("expected hours in response, got %q", resp.Response)
	}
}

func TestProcessMessageRejectsEmptyMessage(t *testing.T) {
	orchestrator := newTestOrchestrator(t, newFakeRecordStore(), nil)
	_, err := orchestrator.ProcessMessage(context.Background(), "   ", nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestProcessMessageContainsAgentFailures(t *testing.T) {
	general := agent.NewGeneralAgent(agent.GeneralOptions{})
	cases := map[string]*scriptedAgent{
		"panic": {id: "flaky", signals: agent.NewSignals("flaky"), panicMsg: "nil map"},
		"error": {id: "flaky", signals: agent.NewSignals("flaky"), err: errors.New("bad input")},
	}
	for name, failing := range cases {
		t.Run(name, func(t *testing.T) {
			registry, err := agent.NewRegistry(general, failing)
			if err != nil {
				t.Fatalf("NewRegistry() error = %v", err)
			}
			observer := &recordingTurnObserver{}
			orchestrator := NewOrchestrator(registry, newFakeRecordStore(), OrchestratorOptions{
				Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
				Observer: observer,
				Now:      func() time.Time { return orchestratorNow },
			})
			prior := &domain.ConversationState{
				ConversationID: "c-9",
				Slots:          map[string]string{"keep": "me"},
				History:        []domain.Turn{{Role: domain.RoleUser, Content: "hi"}},
			}

			resp, err := orchestrator.ProcessMessage(context.Background(), "this is flaky", prior)
			if err != nil {
				t.Fatalf("ProcessMessage() error = %v", err)
			}
			if resp.AgentID != domain.AgentError {
				t.Fatalf("expected error agent id, got %s", resp.AgentID)
			}
			if resp.Response == "" {
				t.Fatalf("expected a generic apology")
			}
			if !reflect.DeepEqual(resp.State, *prior) {
				t.Fatalf("expected prior state to be returned, got %+v", resp.State)
			}
			if len(observer.outcomes) != 1 || observer.outcomes[0] != "error:fallback" {
				t.Fatalf("unexpected observations %v", observer.outcomes)
			}
		})
	}
}

func TestProcessMessageSurfacesStoreUnavailable(t *testing.T) {
	failing := &scriptedAgent{
		id:      "storage",
		signals: agent.NewSignals("save"),
		err:     fmt.Errorf("create triage record: %w", domain.WrapError(domain.ErrStoreUnavailable, "insert", errors.New("dial tcp"))),
	}
	registry, err := agent.NewRegistry(agent.NewGeneralAgent(agent.GeneralOptions{}), failing)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	orchestrator := NewOrchestrator(registry, newFakeRecordStore(), OrchestratorOptions{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err = orchestrator.ProcessMessage(context.Background(), "please save this", nil)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestProcessMessageDoesNotMutateCallerState(t *testing.T) {
	orchestrator := newTestOrchestrator(t, newFakeRecordStore(), nil)
	state := &domain.ConversationState{ConversationID: "c-1", Slots: map[string]string{}}

	if _, err := orchestrator.ProcessMessage(context.Background(), "book an appointment", state); err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if len(state.Slots) != 0 || len(state.History) != 0 || state.ActiveAgent != "" {
		t.Fatalf("expected caller state untouched, got %+v", state)
	}
}

func TestProcessMessageCapsHistory(t *testing.T) {
	orchestrator := newTestOrchestrator(t, newFakeRecordStore(), nil)
	state := &domain.ConversationState{}
	for i := 0; i < 5; i++ {
		resp, err := orchestrator.ProcessMessage(context.Background(), fmt.Sprintf("hello %d", i), state)
		if err != nil {
			t.Fatalf("turn %d error = %v", i, err)
		}
		state = &resp.State
	}
	if len(state.History) != 6 {
		t.Fatalf("expected history capped at 6, got %d", len(state.History))
	}
	if state.History[len(state.History)-2].Content != "hello 4" {
		t.Fatalf("expected newest turns kept, got %+v", state.History)
	}
}

func TestAbandonCreatesTasksForPendingActions(t *testing.T) {
	store := newFakeRecordStore()
	orchestrator := newTestOrchestrator(t, store, nil)

	resp, err := orchestrator.ProcessMessage(context.Background(), "I want to book a visit", nil)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if !resp.State.HasPendingAction(domain.PendingActionResumeScheduling) {
		t.Fatalf("expected pending scheduling action")
	}

	created, err := orchestrator.Abandon(context.Background(), resp.State)
	if err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
	if created != 1 || len(store.tasks) != 1 {
		t.Fatalf("expected one task, got %d (%d stored)", created, len(store.tasks))
	}
	for _, task := range store.tasks {
		if task.Kind != domain.PendingActionResumeScheduling || task.ConversationID != resp.State.ConversationID {
			t.Fatalf("unexpected task %+v", task)
		}
		if want := orchestratorNow.Add(time.Hour); !task.DueAt.Equal(want) {
			t.Fatalf("expected due at %s, got %s", want, task.DueAt)
		}
	}

	created, err = orchestrator.Abandon(context.Background(), domain.ConversationState{})
	if err != nil || created != 0 {
		t.Fatalf("expected no tasks for empty state, got %d (%v)", created, err)
	}
}

func TestProcessMessageBookingAfterTriageLinksRecords(t *testing.T) {
	store := newFakeRecordStore()
	store.calls["call-1"] = &domain.Call{ID: "call-1", PatientName: "Ada", Status: domain.CallStatusOpen, LastContactAt: orchestratorNow}
	orchestrator := newTestOrchestrator(t, store, nil)

	resp, err := orchestrator.ProcessMessage(context.Background(), "I have had a fever since yesterday", &domain.ConversationState{CallID: "call-1"})
	if err != nil {
		t.Fatalf("triage turn error = %v", err)
	}
	triageID := resp.Metadata["triage_id"]
	if resp.AgentID != domain.AgentTriage || triageID == "" {
		t.Fatalf("expected triage record, got %s %+v", resp.AgentID, resp.Metadata)
	}
	if resp.State.TriageID != triageID {
		t.Fatalf("expected state to carry triage id %q, got %q", triageID, resp.State.TriageID)
	}

	resp, err = orchestrator.ProcessMessage(context.Background(), "book an appointment 2026-03-12 at 2:30pm", &resp.State)
	if err != nil {
		t.Fatalf("booking turn error = %v", err)
	}
	resp, err = orchestrator.ProcessMessage(context.Background(), "fever follow-up", &resp.State)
	if err != nil {
		t.Fatalf("reason turn error = %v", err)
	}
	appointmentID := resp.Metadata["appointment_id"]
	appointment, ok := store.appointments[appointmentID]
	if !ok {
		t.Fatalf("expected appointment to be stored, got %+v", resp.Metadata)
	}
	if appointment.TriageID != triageID || appointment.CallID != "call-1" || appointment.PatientName != "Ada" {
		t.Fatalf("unexpected appointment links %+v", appointment)
	}

	view, err := NewCommandCentreUseCase(store, testIntervals().Recall, func() time.Time { return orchestratorNow }).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := domain.GraphEdge{Kind: domain.EdgeTriageAppointment, From: triageID, To: appointmentID}
	found := false
	for _, edge := range view.Edges {
		if edge == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected edge %+v in %+v", want, view.Edges)
	}
	for _, node := range view.Nodes {
		if node.ID == appointmentID && node.Attributes["patient_name"] != "Ada" {
			t.Fatalf("expected patient name on appointment node, got %+v", node)
		}
	}
}
