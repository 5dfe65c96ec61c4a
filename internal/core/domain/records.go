package domain

import "time"

type RecordKind string

const (
	RecordCall        RecordKind = "call"
	RecordTriage      RecordKind = "triage"
	RecordAppointment RecordKind = "appointment"
	RecordTask        RecordKind = "task"
)

func (k RecordKind) Valid() bool {
	switch k {
	case RecordCall, RecordTriage, RecordAppointment, RecordTask:
		return true
	default:
		return false
	}
}

type CallStatus string

const (
	CallStatusOpen     CallStatus = "open"
	CallStatusResolved CallStatus = "resolved"
)

type Call struct {
	ID            string     `json:"id"`
	PatientName   string     `json:"patient_name"`
	PhoneNumber   string     `json:"phone_number,omitempty"`
	Channel       string     `json:"channel,omitempty"`
	Transcript    string     `json:"transcript,omitempty"`
	Status        CallStatus `json:"status"`
	LastContactAt time.Time  `json:"last_contact_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	RecallCount   int        `json:"recall_count"`
	TriageID      string     `json:"triage_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RecallDue reports whether the call has gone without contact for longer
// than interval and has not been resolved since.
func (c Call) RecallDue(now time.Time, interval time.Duration) bool {
	if c.Status == CallStatusResolved || c.ResolvedAt != nil {
		return false
	}
	if interval <= 0 || c.LastContactAt.IsZero() {
		return false
	}
	return now.Sub(c.LastContactAt) > interval
}

type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyRoutine   Urgency = "routine"
)

type TriageRecord struct {
	ID                 string     `json:"id"`
	CallID             string     `json:"call_id,omitempty"`
	ConversationID     string     `json:"conversation_id,omitempty"`
	Complaint          string     `json:"complaint"`
	Urgency            Urgency    `json:"urgency"`
	Disposition        string     `json:"disposition"`
	AppointmentID      string     `json:"appointment_id,omitempty"`
	CheckInAt          *time.Time `json:"check_in_at,omitempty"`
	CheckInCompletedAt *time.Time `json:"check_in_completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (t TriageRecord) CheckInDue(now time.Time) bool {
	return checkInDue(t.CheckInAt, t.CheckInCompletedAt, now)
}

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

type Appointment struct {
	ID                 string            `json:"id"`
	CallID             string            `json:"call_id,omitempty"`
	TriageID           string            `json:"triage_id,omitempty"`
	ConversationID     string            `json:"conversation_id,omitempty"`
	PatientName        string            `json:"patient_name,omitempty"`
	Reason             string            `json:"reason"`
	ScheduledAt        time.Time         `json:"scheduled_at"`
	Status             AppointmentStatus `json:"status"`
	CheckInAt          *time.Time        `json:"check_in_at,omitempty"`
	CheckInCompletedAt *time.Time        `json:"check_in_completed_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (a Appointment) CheckInDue(now time.Time) bool {
	if a.Status == AppointmentCancelled {
		return false
	}
	return checkInDue(a.CheckInAt, a.CheckInCompletedAt, now)
}

type TaskStatus string

const (
	TaskStatusOpen      TaskStatus = "open"
	TaskStatusCompleted TaskStatus = "completed"
)

// Task is a record explicitly awaiting scheduler action, e.g. a multi-turn
// flow the caller abandoned.
type Task struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	ConversationID string     `json:"conversation_id,omitempty"`
	CallID         string     `json:"call_id,omitempty"`
	Details        string     `json:"details,omitempty"`
	Status         TaskStatus `json:"status"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (t Task) Due(now time.Time) bool {
	if t.Status != TaskStatusOpen || t.CompletedAt != nil {
		return false
	}
	return t.DueAt == nil || !now.Before(*t.DueAt)
}

func checkInDue(at, completedAt *time.Time, now time.Time) bool {
	if at == nil || completedAt != nil {
		return false
	}
	return !now.Before(*at)
}

// CheckIn is a due check-in discovered on either a triage record or an appointment.
type CheckIn struct {
	Kind      RecordKind `json:"kind"`
	RecordID  string     `json:"record_id"`
	CheckInAt time.Time  `json:"check_in_at"`
}

type CallInput struct {
	PatientName string `json:"patient_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Channel     string `json:"channel,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
}
