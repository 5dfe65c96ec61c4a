package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

func TestCommandCentreBuildLinksRecords(t *testing.T) {
	store := newFakeRecordStore()
	store.calls["call-1"] = &domain.Call{ID: "call-1", PatientName: "Ada", Status: domain.CallStatusOpen, LastContactAt: schedulerNow.Add(-31 * 24 * time.Hour), TriageID: "triage-1"}
	store.calls["call-2"] = &domain.Call{ID: "call-2", PatientName: "Ben", Status: domain.CallStatusResolved, LastContactAt: schedulerNow.Add(-40 * 24 * time.Hour)}
	store.triage["triage-1"] = &domain.TriageRecord{ID: "triage-1", CallID: "call-1", Urgency: domain.UrgencyUrgent, AppointmentID: "appt-1", CheckInAt: timePtr(schedulerNow.Add(-time.Hour))}
	store.appointments["appt-1"] = &domain.Appointment{ID: "appt-1", CallID: "call-1", TriageID: "triage-1", Status: domain.AppointmentScheduled, ScheduledAt: schedulerNow.Add(48 * time.Hour)}

	uc := NewCommandCentreUseCase(store, testIntervals().Recall, func() time.Time { return schedulerNow })
	view, err := uc.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(view.Nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(view.Nodes))
	}
	wantEdges := map[domain.GraphEdge]bool{
		{Kind: domain.EdgeCallTriage, From: "call-1", To: "triage-1"}:        true,
		{Kind: domain.EdgeTriageAppointment, From: "triage-1", To: "appt-1"}: true,
		{Kind: domain.EdgeCallAppointment, From: "call-1", To: "appt-1"}:     true,
	}
	if len(view.Edges) != len(wantEdges) {
		t.Fatalf("expected %d deduplicated edges, got %+v", len(wantEdges), view.Edges)
	}
	for _, edge := range view.Edges {
		if !wantEdges[edge] {
			t.Fatalf("unexpected edge %+v", edge)
		}
	}

	stats := view.Stats
	if stats.Calls != 2 || stats.OpenCalls != 1 || stats.DueRecalls != 1 {
		t.Fatalf("unexpected call stats %+v", stats)
	}
	if stats.DueCheckIns != 1 || stats.UpcomingAppointments != 1 || stats.ByUrgency[domain.UrgencyUrgent] != 1 {
		t.Fatalf("unexpected triage/appointment stats %+v", stats)
	}
	if !view.GeneratedAt.Equal(schedulerNow) {
		t.Fatalf("expected injected clock, got %s", view.GeneratedAt)
	}
}

func TestCommandCentreBuildOmitsDanglingLinks(t *testing.T) {
	store := newFakeRecordStore()
	store.triage["triage-1"] = &domain.TriageRecord{ID: "triage-1", CallID: "call-missing", AppointmentID: "appt-missing", Urgency: domain.UrgencyRoutine}

	view, err := NewCommandCentreUseCase(store, testIntervals().Recall, func() time.Time { return schedulerNow }).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(view.Nodes) != 1 {
		t.Fatalf("expected the triage node to remain, got %+v", view.Nodes)
	}
	if len(view.Edges) != 0 {
		t.Fatalf("expected dangling links to be omitted, got %+v", view.Edges)
	}
}

func TestCommandCentreBuildPropagatesStoreErrors(t *testing.T) {
	store := newFakeRecordStore()
	store.queryErr = domain.WrapError(domain.ErrStoreUnavailable, "list calls", errors.New("timeout"))

	_, err := NewCommandCentreUseCase(store, testIntervals().Recall, nil).Build(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestCommandCentreBuildEmptyStore(t *testing.T) {
	view, err := NewCommandCentreUseCase(newFakeRecordStore(), testIntervals().Recall, nil).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if view.Nodes == nil || view.Edges == nil {
		t.Fatalf("expected empty, non-nil node and edge lists")
	}
}

func TestCallIntakeRecordsAndResolvesCalls(t *testing.T) {
	store := newFakeRecordStore()
	uc := NewCallIntakeUseCase(store, func() time.Time { return schedulerNow })

	if _, err := uc.RecordCall(context.Background(), domain.CallInput{PatientName: "  "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}

	call, err := uc.RecordCall(context.Background(), domain.CallInput{PatientName: " Ada ", PhoneNumber: "555-0100"})
	if err != nil {
		t.Fatalf("RecordCall() error = %v", err)
	}
	if call.PatientName != "Ada" || call.Channel != "phone" || call.Status != domain.CallStatusOpen {
		t.Fatalf("unexpected call %+v", call)
	}
	if !call.LastContactAt.Equal(schedulerNow) {
		t.Fatalf("expected last contact at intake time")
	}

	if err := uc.ResolveCall(context.Background(), call.ID); err != nil {
		t.Fatalf("ResolveCall() error = %v", err)
	}
	if store.calls[call.ID].Status != domain.CallStatusResolved {
		t.Fatalf("expected call to be resolved")
	}
	if err := uc.ResolveCall(context.Background(), "missing"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type recordingProjector struct {
	views []*domain.CommandCentreView
	err   error
}

func (p *recordingProjector) Project(_ context.Context, view *domain.CommandCentreView) error {
	p.views = append(p.views, view)
	return p.err
}

func TestCommandCentreProjectHandsViewToProjector(t *testing.T) {
	store := newFakeRecordStore()
	store.calls["call-1"] = &domain.Call{ID: "call-1", PatientName: "Ada", Status: domain.CallStatusOpen, LastContactAt: schedulerNow}
	uc := NewCommandCentreUseCase(store, testIntervals().Recall, func() time.Time { return schedulerNow })

	projector := &recordingProjector{}
	view, err := uc.Project(context.Background(), projector)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(projector.views) != 1 || projector.views[0] != view || len(view.Nodes) != 1 {
		t.Fatalf("expected the built view to be projected once, got %+v", projector.views)
	}

	failing := &recordingProjector{err: errors.New("neo4j down")}
	if _, err := uc.Project(context.Background(), failing); err == nil {
		t.Fatalf("expected projector error to surface")
	}

	store.queryErr = domain.WrapError(domain.ErrStoreUnavailable, "list calls", errors.New("timeout"))
	skipped := &recordingProjector{}
	if _, err := uc.Project(context.Background(), skipped); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected build error, got %v", err)
	}
	if len(skipped.views) != 0 {
		t.Fatalf("projector must not be called when the build fails")
	}
}
