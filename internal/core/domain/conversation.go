package domain

import "time"

type AgentID string

const (
	AgentTriage     AgentID = "triage"
	AgentScheduling AgentID = "scheduling"
	AgentGeneral    AgentID = "general"

	// AgentError attributes fallback responses produced when an agent failed.
	AgentError AgentID = "error"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const PendingActionResumeScheduling = "resume_scheduling"

type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	AgentID AgentID   `json:"agent_id,omitempty"`
	At      time.Time `json:"at"`
}

type PendingAction struct {
	Kind  string    `json:"kind"`
	Note  string    `json:"note,omitempty"`
	Since time.Time `json:"since"`
}

// ConversationState is owned by the caller and passed back on every turn.
// The service never keeps a copy between turns. TriageID holds the latest
// triage record so that a later booking links to it.
type ConversationState struct {
	ConversationID string            `json:"conversation_id,omitempty"`
	CallID         string            `json:"call_id,omitempty"`
	TriageID       string            `json:"triage_id,omitempty"`
	History        []Turn            `json:"history"`
	ActiveAgent    AgentID           `json:"active_agent,omitempty"`
	Slots          map[string]string `json:"slots,omitempty"`
	PendingActions []PendingAction   `json:"pending_actions,omitempty"`
}

func (s ConversationState) Clone() ConversationState {
	out := s
	if s.History != nil {
		out.History = append([]Turn(nil), s.History...)
	}
	if s.Slots != nil {
		out.Slots = make(map[string]string, len(s.Slots))
		for k, v := range s.Slots {
			out.Slots[k] = v
		}
	}
	if s.PendingActions != nil {
		out.PendingActions = append([]PendingAction(nil), s.PendingActions...)
	}
	return out
}

func (s ConversationState) Slot(key string) string {
	if s.Slots == nil {
		return ""
	}
	return s.Slots[key]
}

func (s *ConversationState) SetSlot(key, value string) {
	if s.Slots == nil {
		s.Slots = make(map[string]string)
	}
	s.Slots[key] = value
}

func (s ConversationState) HasPendingAction(kind string) bool {
	for _, action := range s.PendingActions {
		if action.Kind == kind {
			return true
		}
	}
	return false
}

// SetPendingAction replaces any pending action of the same kind.
func (s *ConversationState) SetPendingAction(action PendingAction) {
	s.ClearPendingAction(action.Kind)
	s.PendingActions = append(s.PendingActions, action)
}

func (s *ConversationState) ClearPendingAction(kind string) {
	if len(s.PendingActions) == 0 {
		return
	}
	kept := s.PendingActions[:0]
	for _, action := range s.PendingActions {
		if action.Kind != kind {
			kept = append(kept, action)
		}
	}
	if len(kept) == 0 {
		s.PendingActions = nil
		return
	}
	s.PendingActions = kept
}

type AgentResult struct {
	Response string            `json:"response"`
	AgentID  AgentID           `json:"agent_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
	State    ConversationState `json:"state"`
}

type TurnResponse struct {
	Response string            `json:"response"`
	AgentID  AgentID           `json:"agent_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
	State    ConversationState `json:"state"`
}
