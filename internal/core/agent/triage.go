package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/care-assistant/internal/core/domain"
	"github.com/kirillkom/care-assistant/internal/core/ports"
)

const (
	slotTriageStage     = "triage_stage"
	slotTriageComplaint = "triage_complaint"

	triageStageAwaitingDetail = "awaiting_detail"

	// minComplaintWords is the shortest message treated as a description of
	// symptoms rather than a bare request for triage.
	minComplaintWords = 3
)

type TriageOptions struct {
	Signals   Signals
	Emergency Signals
	Urgent    Signals
	// CheckInDelay returns how long after triage the follow-up is due.
	CheckInDelay func(domain.Urgency) time.Duration
	NewID        func() string
}

// TriageAgent classifies urgency from a complaint and records a triage entry.
type TriageAgent struct {
	store     ports.TriageStore
	signals   Signals
	emergency Signals
	urgent    Signals
	delay     func(domain.Urgency) time.Duration
	newID     func() string
}

func NewTriageAgent(store ports.TriageStore, opts TriageOptions) *TriageAgent {
	if opts.CheckInDelay == nil {
		opts.CheckInDelay = func(domain.Urgency) time.Duration { return 24 * time.Hour }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &TriageAgent{
		store:     store,
		signals:   opts.Signals,
		emergency: opts.Emergency,
		urgent:    opts.Urgent,
		delay:     opts.CheckInDelay,
		newID:     opts.NewID,
	}
}

func (a *TriageAgent) ID() domain.AgentID { return domain.AgentTriage }

func (a *TriageAgent) Signals() Signals { return a.signals }

func (a *TriageAgent) InProgress(state domain.ConversationState) bool {
	return state.Slot(slotTriageStage) == triageStageAwaitingDetail
}

func (a *TriageAgent) HandleTurn(ctx context.Context, input TurnInput) (domain.AgentResult, error) {
	state := input.State
	message := strings.TrimSpace(input.Message)

	complaint := message
	if a.InProgress(state) {
		if prior := state.Slot(slotTriageComplaint); prior != "" {
			complaint = prior + ". " + message
		}
	}

	urgency, matched := a.classify(complaint)
	if !matched && !a.InProgress(state) && len(strings.Fields(normalizeText(message))) < minComplaintWords {
		state.SetSlot(slotTriageStage, triageStageAwaitingDetail)
		state.SetSlot(slotTriageComplaint, message)
		return domain.AgentResult{
			Response: "I'm sorry you're not feeling well. Can you describe your symptoms, when they started and how severe they are?",
			AgentID:  a.ID(),
			Metadata: map[string]string{"stage": triageStageAwaitingDetail},
			State:    state,
		}, nil
	}

	now := input.Now.UTC()
	checkInAt := now.Add(a.delay(urgency))
	record := &domain.TriageRecord{
		ID:             a.newID(),
		CallID:         state.CallID,
		ConversationID: state.ConversationID,
		Complaint:      complaint,
		Urgency:        urgency,
		Disposition:    disposition(urgency),
		CheckInAt:      &checkInAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.store.CreateTriageRecord(ctx, record); err != nil {
		return domain.AgentResult{}, fmt.Errorf("create triage record: %w", err)
	}

	delete(state.Slots, slotTriageStage)
	delete(state.Slots, slotTriageComplaint)
	state.TriageID = record.ID

	return domain.AgentResult{
		Response: triageResponse(urgency),
		AgentID:  a.ID(),
		Metadata: map[string]string{
			"triage_id":   record.ID,
			"urgency":     string(urgency),
			"check_in_at": checkInAt.Format(time.RFC3339),
		},
		State: state,
	}, nil
}

// classify reports the urgency tier; matched is false when neither the
// emergency nor the urgent tier fired.
func (a *TriageAgent) classify(complaint string) (domain.Urgency, bool) {
	if a.emergency.Matches(complaint) {
		return domain.UrgencyEmergency, true
	}
	if a.urgent.Matches(complaint) {
		return domain.UrgencyUrgent, true
	}
	return domain.UrgencyRoutine, false
}

func disposition(urgency domain.Urgency) string {
	switch urgency {
	case domain.UrgencyEmergency:
		return "refer_emergency"
	case domain.UrgencyUrgent:
		return "same_day_callback"
	default:
		return "self_care_follow_up"
	}
}

func triageResponse(urgency domain.Urgency) string {
	switch urgency {
	case domain.UrgencyEmergency:
		return "Based on what you've described, this may be an emergency. Please call 911 or go to the nearest emergency department now. Our care team will follow up with you."
	case domain.UrgencyUrgent:
		return "Thank you for the details. Your symptoms should be looked at today, so a nurse will call you back shortly. We'll also check in with you to see how you're doing."
	default:
		return "Thank you, I've noted your symptoms. This doesn't sound urgent, but if things get worse please contact us right away. We'll check in with you in a little while."
	}
}
