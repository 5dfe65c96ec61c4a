package ports

import (
	"context"
	"time"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

// CallStore persists inbound calls.
type CallStore interface {
	CreateCall(ctx context.Context, call *domain.Call) error
	GetCall(ctx context.Context, id string) (*domain.Call, error)
	ListCalls(ctx context.Context) ([]domain.Call, error)
	RecordRecall(ctx context.Context, id string, at time.Time) error
	ResolveCall(ctx context.Context, id string, at time.Time) error
}

// TriageStore persists triage records.
type TriageStore interface {
	CreateTriageRecord(ctx context.Context, record *domain.TriageRecord) error
	GetTriageRecord(ctx context.Context, id string) (*domain.TriageRecord, error)
	ListTriageRecords(ctx context.Context) ([]domain.TriageRecord, error)
}

// AppointmentStore persists appointments.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, appointment *domain.Appointment) error
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	ListAppointments(ctx context.Context) ([]domain.Appointment, error)
}

// TaskStore persists pending tasks awaiting scheduler action.
type TaskStore interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
}

// DueQueries discover items whose due-status is true at now.
type DueQueries interface {
	QueryDueRecalls(ctx context.Context, now time.Time, interval time.Duration) ([]domain.Call, error)
	QueryDueCheckIns(ctx context.Context, now time.Time) ([]domain.CheckIn, error)
	QueryPendingTasks(ctx context.Context, now time.Time) ([]domain.Task, error)
}

// RecordStore is the full record store boundary consumed by the core.
// Every operation may fail with domain.ErrStoreUnavailable.
type RecordStore interface {
	CallStore
	TriageStore
	AppointmentStore
	TaskStore
	DueQueries
	MarkCompleted(ctx context.Context, id string, kind domain.RecordKind, at time.Time) error
}

// ActionNotifier hands scheduler actions to the delivery layer.
type ActionNotifier interface {
	PublishAction(ctx context.Context, event domain.ActionEvent) error
}

// RunLock guards scheduler runs across processes.
type RunLock interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

// GraphProjector mirrors the command-centre graph into an external graph store.
type GraphProjector interface {
	Project(ctx context.Context, view *domain.CommandCentreView) error
}
