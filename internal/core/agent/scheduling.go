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
	slotDate     = "date"
	slotTime     = "time"
	slotReason   = "reason"
	slotIntent   = "intent"
	slotAwaiting = "awaiting"

	intentReschedule = "reschedule"
)

// CallLookup resolves the call a conversation was opened for.
type CallLookup interface {
	GetCall(ctx context.Context, id string) (*domain.Call, error)
}

type SchedulingOptions struct {
	Signals Signals
	// Reschedule marks messages asking to move an existing appointment.
	Reschedule Signals
	// Abort ends an in-progress booking.
	Abort    Signals
	Location *time.Location
	// FollowUp is the delay after the appointment when the check-in is due.
	FollowUp time.Duration
	// Calls fills the patient name of a booking from the conversation's call.
	Calls CallLookup
	NewID func() string
}

// SchedulingAgent collects date, time and reason over several turns and then
// books an appointment.
type SchedulingAgent struct {
	store      ports.AppointmentStore
	calls      CallLookup
	signals    Signals
	reschedule Signals
	abort      Signals
	loc        *time.Location
	followUp   time.Duration
	newID      func() string
}

func NewSchedulingAgent(store ports.AppointmentStore, opts SchedulingOptions) *SchedulingAgent {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.FollowUp <= 0 {
		opts.FollowUp = 24 * time.Hour
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &SchedulingAgent{
		store:      store,
		calls:      opts.Calls,
		signals:    opts.Signals,
		reschedule: opts.Reschedule,
		abort:      opts.Abort,
		loc:        opts.Location,
		followUp:   opts.FollowUp,
		newID:      opts.NewID,
	}
}

func (a *SchedulingAgent) ID() domain.AgentID { return domain.AgentScheduling }

func (a *SchedulingAgent) Signals() Signals { return a.signals }

func (a *SchedulingAgent) InProgress(state domain.ConversationState) bool {
	return state.Slot(slotAwaiting) != ""
}

func (a *SchedulingAgent) HandleTurn(ctx context.Context, input TurnInput) (domain.AgentResult, error) {
	state := input.State
	message := strings.TrimSpace(input.Message)
	now := input.Now.In(a.loc)
	awaiting := state.Slot(slotAwaiting)

	if awaiting != "" && a.abort.Matches(message) {
		state.Slots = nil
		state.ClearPendingAction(domain.PendingActionResumeScheduling)
		return domain.AgentResult{
			Response: "No problem, I've stopped the booking. Let me know whenever you'd like to pick a time.",
			AgentID:  a.ID(),
			Metadata: map[string]string{"stage": "aborted"},
			State:    state,
		}, nil
	}

	captured := a.capture(&state, message, now, awaiting)

	missing := a.missing(state)
	if len(missing) == 0 {
		scheduledAt, err := a.scheduledAt(state)
		if err != nil {
			return domain.AgentResult{}, err
		}
		if !scheduledAt.After(now) {
			delete(state.Slots, slotDate)
			delete(state.Slots, slotTime)
			return a.ask(state, []string{slotDate, slotTime}, now,
				"That time has already passed. "), nil
		}
		return a.book(ctx, state, scheduledAt, input.Now)
	}

	prefix := ""
	if awaiting != "" && !captured {
		prefix = "Sorry, I didn't catch that. "
	}
	return a.ask(state, missing, now, prefix), nil
}

// capture fills slots from the message and reports whether anything new was learned.
func (a *SchedulingAgent) capture(state *domain.ConversationState, message string, now time.Time, awaiting string) bool {
	captured := false
	if state.Slot(slotIntent) == "" && a.reschedule.Matches(message) {
		state.SetSlot(slotIntent, intentReschedule)
		if state.Slot(slotReason) == "" {
			state.SetSlot(slotReason, "rescheduled appointment")
		}
		captured = true
	}
	if date, ok := parseDate(message, now); ok {
		state.SetSlot(slotDate, date.Format(slotDateLayout))
		captured = true
	}
	if hour, minute, ok := parseClock(message); ok {
		state.SetSlot(slotTime, fmt.Sprintf("%02d:%02d", hour, minute))
		captured = true
	}
	if awaiting == slotReason && state.Slot(slotReason) == "" && message != "" {
		state.SetSlot(slotReason, message)
		captured = true
	}
	return captured
}

func (a *SchedulingAgent) missing(state domain.ConversationState) []string {
	out := make([]string, 0, 3)
	for _, slot := range []string{slotDate, slotTime, slotReason} {
		if state.Slot(slot) == "" {
			out = append(out, slot)
		}
	}
	return out
}

func (a *SchedulingAgent) scheduledAt(state domain.ConversationState) (time.Time, error) {
	value := state.Slot(slotDate) + " " + state.Slot(slotTime)
	t, err := time.ParseInLocation(slotDateLayout+" "+slotTimeLayout, value, a.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse scheduling slots %q: %w", value, err)
	}
	return t, nil
}

func (a *SchedulingAgent) ask(state domain.ConversationState, missing []string, now time.Time, prefix string) domain.AgentResult {
	state.SetSlot(slotAwaiting, missing[0])
	state.SetPendingAction(domain.PendingAction{
		Kind:  domain.PendingActionResumeScheduling,
		Note:  "missing " + strings.Join(missing, ","),
		Since: now.UTC(),
	})

	var question string
	switch {
	case contains(missing, slotDate) && contains(missing, slotTime):
		if state.Slot(slotIntent) == intentReschedule {
			question = "I can help you reschedule. What new date and time would work for you?"
		} else {
			question = "I can help you book an appointment. What date and time would work for you?"
		}
	case contains(missing, slotDate):
		question = fmt.Sprintf("What date would you like to come in at %s?", state.Slot(slotTime))
	case contains(missing, slotTime):
		question = fmt.Sprintf("What time on %s works for you?", a.formatDate(state.Slot(slotDate)))
	default:
		question = "What is the reason for your visit?"
	}

	return domain.AgentResult{
		Response: prefix + question,
		AgentID:  a.ID(),
		Metadata: map[string]string{
			"stage":   "collecting",
			"missing": strings.Join(missing, ","),
		},
		State: state,
	}
}

func (a *SchedulingAgent) book(ctx context.Context, state domain.ConversationState, scheduledAt, now time.Time) (domain.AgentResult, error) {
	patientName, err := a.patientName(ctx, state.CallID)
	if err != nil {
		return domain.AgentResult{}, err
	}
	created := now.UTC()
	checkInAt := scheduledAt.Add(a.followUp).UTC()
	appointment := &domain.Appointment{
		ID:             a.newID(),
		CallID:         state.CallID,
		TriageID:       state.TriageID,
		ConversationID: state.ConversationID,
		PatientName:    patientName,
		Reason:         state.Slot(slotReason),
		ScheduledAt:    scheduledAt.UTC(),
		Status:         domain.AppointmentScheduled,
		CheckInAt:      &checkInAt,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	if err := a.store.CreateAppointment(ctx, appointment); err != nil {
		return domain.AgentResult{}, fmt.Errorf("create appointment: %w", err)
	}

	verb := "booked"
	if state.Slot(slotIntent) == intentReschedule {
		verb = "rescheduled"
	}
	state.Slots = nil
	state.ClearPendingAction(domain.PendingActionResumeScheduling)

	return domain.AgentResult{
		Response: fmt.Sprintf("You're %s for %s (%s). We'll check in with you after the visit.",
			verb, scheduledAt.Format("Monday, Jan 2 at 3:04 PM"), appointment.Reason),
		AgentID: a.ID(),
		Metadata: map[string]string{
			"stage":          "booked",
			"appointment_id": appointment.ID,
			"scheduled_at":   appointment.ScheduledAt.Format(time.RFC3339),
		},
		State: state,
	}, nil
}

// patientName is empty when there is no call or it is unknown to the store.
func (a *SchedulingAgent) patientName(ctx context.Context, callID string) (string, error) {
	if a.calls == nil || callID == "" {
		return "", nil
	}
	call, err := a.calls.GetCall(ctx, callID)
	switch {
	case domain.IsKind(err, domain.ErrRecordNotFound):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("load call for appointment: %w", err)
	}
	return call.PatientName, nil
}

func (a *SchedulingAgent) formatDate(value string) string {
	t, err := time.ParseInLocation(slotDateLayout, value, a.loc)
	if err != nil {
		return value
	}
	return t.Format("Monday, Jan 2")
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
