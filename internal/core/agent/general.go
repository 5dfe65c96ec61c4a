package agent

import (
	"context"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

const generalHelpResponse = "I can help you describe symptoms so our nurses can triage them, book or reschedule an appointment, or answer general questions about the clinic. How can I help?"

type GeneralOptions struct {
	// Hours answers questions about opening hours when non-empty.
	Hours       string
	HoursSignal Signals
}

// GeneralAgent is the default single-turn agent. It never touches the store.
type GeneralAgent struct {
	hours       string
	hoursSignal Signals
}

func NewGeneralAgent(opts GeneralOptions) *GeneralAgent {
	return &GeneralAgent{hours: opts.Hours, hoursSignal: opts.HoursSignal}
}

func (a *GeneralAgent) ID() domain.AgentID { return domain.AgentGeneral }

func (a *GeneralAgent) Signals() Signals { return Signals{} }

func (a *GeneralAgent) InProgress(domain.ConversationState) bool { return false }

func (a *GeneralAgent) HandleTurn(_ context.Context, input TurnInput) (domain.AgentResult, error) {
	response := generalHelpResponse
	topic := "help"
	if a.hours != "" && a.hoursSignal.Matches(input.Message) {
		response = "Our clinic is open " + a.hours + "."
		topic = "hours"
	}
	return domain.AgentResult{
		Response: response,
		AgentID:  a.ID(),
		Metadata: map[string]string{"topic": topic},
		State:    input.State,
	}, nil
}
