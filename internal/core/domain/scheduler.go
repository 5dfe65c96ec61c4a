package domain

import "time"

type DueKind string

const (
	DueRecall      DueKind = "recall"
	DueCheckIn     DueKind = "check_in"
	DuePendingTask DueKind = "pending_task"
)

type DueItem struct {
	Kind       DueKind    `json:"kind"`
	RecordKind RecordKind `json:"record_kind"`
	RecordID   string     `json:"record_id"`
	DueAt      time.Time  `json:"due_at"`
}

func (i DueItem) Key() string {
	return string(i.Kind) + ":" + string(i.RecordKind) + ":" + i.RecordID
}

type ItemOutcome string

const (
	OutcomeActed   ItemOutcome = "acted"
	OutcomeSkipped ItemOutcome = "skipped"
	OutcomeFailed  ItemOutcome = "failed"
)

type ItemFailure struct {
	Kind     DueKind    `json:"kind"`
	Record   RecordKind `json:"record_kind"`
	RecordID string     `json:"record_id"`
	Reason   string     `json:"reason"`
}

// SchedulerIntervals holds the configured thresholds that due-status is computed from.
type SchedulerIntervals struct {
	Recall               time.Duration
	TriageCheckIn        map[Urgency]time.Duration
	DefaultTriageCheckIn time.Duration
	AppointmentFollowUp  time.Duration
	PendingTaskDelay     time.Duration
}

func (i SchedulerIntervals) TriageCheckInDelay(urgency Urgency) time.Duration {
	if d, ok := i.TriageCheckIn[urgency]; ok && d > 0 {
		return d
	}
	return i.DefaultTriageCheckIn
}

// SchedulerRunResult always satisfies Considered == Acted + Skipped + Failed.
type SchedulerRunResult struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Considered int           `json:"considered"`
	Acted      int           `json:"acted"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Failures   []ItemFailure `json:"failures"`
	Remaining  int           `json:"remaining,omitempty"`
	Aborted    bool          `json:"aborted,omitempty"`
	FatalError string        `json:"fatal_error,omitempty"`
}

func (r *SchedulerRunResult) Record(item DueItem, outcome ItemOutcome, reason string) {
	r.Considered++
	switch outcome {
	case OutcomeActed:
		r.Acted++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
		r.Failures = append(r.Failures, ItemFailure{
			Kind:     item.Kind,
			Record:   item.RecordKind,
			RecordID: item.RecordID,
			Reason:   reason,
		})
	}
}

func (r SchedulerRunResult) Balanced() bool {
	return r.Considered == r.Acted+r.Skipped+r.Failed
}

// ActionEvent is published for every action the scheduler performs so that
// delivery (calls, SMS, staff queues) can happen outside the service.
type ActionEvent struct {
	RunID      string     `json:"run_id"`
	Kind       DueKind    `json:"kind"`
	RecordKind RecordKind `json:"record_kind"`
	RecordID   string     `json:"record_id"`
	Detail     string     `json:"detail,omitempty"`
	At         time.Time  `json:"at"`
}
