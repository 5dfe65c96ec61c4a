package ports

import (
	"context"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

// MessageProcessor is the inbound contract for conversation turns.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, message string, state *domain.ConversationState) (*domain.TurnResponse, error)
	Abandon(ctx context.Context, state domain.ConversationState) (int, error)
}

// SchedulerRunner executes one full scheduler pass.
type SchedulerRunner interface {
	RunFullScheduler(ctx context.Context) (*domain.SchedulerRunResult, error)
}

// CommandCentreReader builds the aggregated dashboard view.
type CommandCentreReader interface {
	Build(ctx context.Context) (*domain.CommandCentreView, error)
}

// CallIntake records inbound calls and their resolution.
type CallIntake interface {
	RecordCall(ctx context.Context, input domain.CallInput) (*domain.Call, error)
	ResolveCall(ctx context.Context, id string) error
}

// SchedulerTrigger asks an out-of-process worker to run the scheduler.
type SchedulerTrigger interface {
	RequestRun(ctx context.Context, requestedBy string) error
}
