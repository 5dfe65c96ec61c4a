package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/care-assistant/internal/core/domain"
	"github.com/kirillkom/care-assistant/internal/core/ports"
)

const upcomingAppointmentWindow = 7 * 24 * time.Hour

var _ ports.CommandCentreReader = (*CommandCentreUseCase)(nil)

// CommandCentreStore is the read side of the record store used by the
// command centre.
type CommandCentreStore interface {
	ListCalls(ctx context.Context) ([]domain.Call, error)
	ListTriageRecords(ctx context.Context) ([]domain.TriageRecord, error)
	ListAppointments(ctx context.Context) ([]domain.Appointment, error)
}

// CommandCentreUseCase joins calls, triage records and appointments into a
// graph. It keeps no state between builds.
type CommandCentreUseCase struct {
	store          CommandCentreStore
	recallInterval time.Duration
	now            func() time.Time
}

func NewCommandCentreUseCase(store CommandCentreStore, recallInterval time.Duration, now func() time.Time) *CommandCentreUseCase {
	if now == nil {
		now = time.Now
	}
	return &CommandCentreUseCase{store: store, recallInterval: recallInterval, now: now}
}

func (uc *CommandCentreUseCase) Build(ctx context.Context) (*domain.CommandCentreView, error) {
	var (
		calls        []domain.Call
		triage       []domain.TriageRecord
		appointments []domain.Appointment
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		calls, err = uc.store.ListCalls(groupCtx)
		if err != nil {
			return fmt.Errorf("list calls: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		triage, err = uc.store.ListTriageRecords(groupCtx)
		if err != nil {
			return fmt.Errorf("list triage records: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		appointments, err = uc.store.ListAppointments(groupCtx)
		if err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("build command centre: %w", err)
	}

	now := uc.now().UTC()
	return buildView(now, uc.recallInterval, calls, triage, appointments), nil
}

func buildView(now time.Time, recallInterval time.Duration, calls []domain.Call, triage []domain.TriageRecord, appointments []domain.Appointment) *domain.CommandCentreView {
	view := &domain.CommandCentreView{
		GeneratedAt:  now,
		Nodes:        make([]domain.GraphNode, 0, len(calls)+len(triage)+len(appointments)),
		Edges:        make([]domain.GraphEdge, 0),
		Calls:        calls,
		Triage:       triage,
		Appointments: appointments,
		Stats: domain.CommandCentreStats{
			Calls:         len(calls),
			TriageRecords: len(triage),
			Appointments:  len(appointments),
			ByUrgency:     make(map[domain.Urgency]int),
		},
	}

	callIDs := make(map[string]struct{}, len(calls))
	triageIDs := make(map[string]struct{}, len(triage))
	appointmentIDs := make(map[string]struct{}, len(appointments))
	for _, c := range calls {
		callIDs[c.ID] = struct{}{}
	}
	for _, t := range triage {
		triageIDs[t.ID] = struct{}{}
	}
	for _, a := range appointments {
		appointmentIDs[a.ID] = struct{}{}
	}

	edges := make(map[domain.GraphEdge]struct{})
	link := func(kind domain.EdgeKind, from string, fromSet map[string]struct{}, to string, toSet map[string]struct{}) {
		if from == "" || to == "" {
			return
		}
		if _, ok := fromSet[from]; !ok {
			return
		}
		if _, ok := toSet[to]; !ok {
			return
		}
		edge := domain.GraphEdge{Kind: kind, From: from, To: to}
		if _, dup := edges[edge]; dup {
			return
		}
		edges[edge] = struct{}{}
		view.Edges = append(view.Edges, edge)
	}

	for _, c := range calls {
		recallDue := c.RecallDue(now, recallInterval)
		if c.Status != domain.CallStatusResolved {
			view.Stats.OpenCalls++
		}
		if recallDue {
			view.Stats.DueRecalls++
		}
		view.Nodes = append(view.Nodes, domain.GraphNode{
			ID:    c.ID,
			Kind:  domain.NodeCall,
			Label: c.PatientName,
			Attributes: map[string]string{
				"status":          string(c.Status),
				"last_contact_at": c.LastContactAt.UTC().Format(time.RFC3339),
				"recall_count":    strconv.Itoa(c.RecallCount),
				"recall_due":      strconv.FormatBool(recallDue),
			},
		})
		link(domain.EdgeCallTriage, c.ID, callIDs, c.TriageID, triageIDs)
	}

	for _, t := range triage {
		checkInDue := t.CheckInDue(now)
		if checkInDue {
			view.Stats.DueCheckIns++
		}
		view.Stats.ByUrgency[t.Urgency]++
		attrs := map[string]string{
			"urgency":      string(t.Urgency),
			"disposition":  t.Disposition,
			"check_in_due": strconv.FormatBool(checkInDue),
		}
		if t.CheckInAt != nil {
			attrs["check_in_at"] = t.CheckInAt.UTC().Format(time.RFC3339)
		}
		view.Nodes = append(view.Nodes, domain.GraphNode{
			ID:         t.ID,
			Kind:       domain.NodeTriage,
			Label:      t.Complaint,
			Attributes: attrs,
		})
		link(domain.EdgeCallTriage, t.CallID, callIDs, t.ID, triageIDs)
		link(domain.EdgeTriageAppointment, t.ID, triageIDs, t.AppointmentID, appointmentIDs)
	}

	for _, a := range appointments {
		checkInDue := a.CheckInDue(now)
		if checkInDue {
			view.Stats.DueCheckIns++
		}
		if a.Status == domain.AppointmentScheduled && a.ScheduledAt.After(now) && a.ScheduledAt.Sub(now) <= upcomingAppointmentWindow {
			view.Stats.UpcomingAppointments++
		}
		attrs := map[string]string{
			"status":       string(a.Status),
			"scheduled_at": a.ScheduledAt.UTC().Format(time.RFC3339),
			"check_in_due": strconv.FormatBool(checkInDue),
		}
		if a.PatientName != "" {
			attrs["patient_name"] = a.PatientName
		}
		view.Nodes = append(view.Nodes, domain.GraphNode{
			ID:         a.ID,
			Kind:       domain.NodeAppointment,
			Label:      a.Reason,
			Attributes: attrs,
		})
		link(domain.EdgeTriageAppointment, a.TriageID, triageIDs, a.ID, appointmentIDs)
		link(domain.EdgeCallAppointment, a.CallID, callIDs, a.ID, appointmentIDs)
	}

	return view
}

// Project rebuilds the view and hands it to projector.
func (uc *CommandCentreUseCase) Project(ctx context.Context, projector ports.GraphProjector) (*domain.CommandCentreView, error) {
	view, err := uc.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := projector.Project(ctx, view); err != nil {
		return view, fmt.Errorf("project command centre: %w", err)
	}
	return view, nil
}
