package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/care-assistant/internal/core/domain"
)

// TurnInput is what an agent sees for a single conversation turn. State is a
// private copy; agents return the updated copy in AgentResult.State.
type TurnInput struct {
	Message string
	State   domain.ConversationState
	Now     time.Time
}

// Agent handles conversation turns for one area of care coordination.
type Agent interface {
	ID() domain.AgentID
	Signals() Signals
	// InProgress reports whether the agent is midway through a multi-turn
	// task recorded in the state's slots.
	InProgress(state domain.ConversationState) bool
	HandleTurn(ctx context.Context, input TurnInput) (domain.AgentResult, error)
}

// Signals is an ordered set of normalized trigger phrases matched on word
// boundaries.
type Signals struct {
	phrases []string
}

func NewSignals(phrases ...string) Signals {
	seen := make(map[string]struct{}, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		normalized := strings.TrimSpace(normalizeText(phrase))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return Signals{phrases: out}
}

func (s Signals) Phrases() []string {
	return append([]string(nil), s.phrases...)
}

func (s Signals) Empty() bool {
	return len(s.phrases) == 0
}

// Match returns the first phrase found in message, in declaration order.
func (s Signals) Match(message string) (string, bool) {
	if len(s.phrases) == 0 {
		return "", false
	}
	padded := " " + strings.TrimSpace(normalizeText(message)) + " "
	for _, phrase := range s.phrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return phrase, true
		}
	}
	return "", false
}

func (s Signals) Matches(message string) bool {
	_, ok := s.Match(message)
	return ok
}

// normalizeText lowercases text and collapses everything but letters, digits
// and apostrophes into single spaces.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'', r > 127:
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return b.String()
}

// Registry holds agents in routing priority order plus the default agent.
// The first registered agent whose signals match wins.
type Registry struct {
	ordered  []Agent
	byID     map[domain.AgentID]Agent
	fallback Agent
}

func NewRegistry(fallback Agent, agents ...Agent) (*Registry, error) {
	if fallback == nil {
		return nil, fmt.Errorf("agent registry: fallback agent is required")
	}
	r := &Registry{
		ordered:  make([]Agent, 0, len(agents)),
		byID:     make(map[domain.AgentID]Agent, len(agents)+1),
		fallback: fallback,
	}
	r.byID[fallback.ID()] = fallback
	for _, a := range agents {
		if a == nil {
			continue
		}
		id := a.ID()
		if id == "" || id == domain.AgentError {
			return nil, fmt.Errorf("agent registry: invalid agent id %q", id)
		}
		if _, exists := r.byID[id]; exists {
			return nil, fmt.Errorf("agent registry: duplicate agent id %q", id)
		}
		r.byID[id] = a
		r.ordered = append(r.ordered, a)
	}
	return r, nil
}

func (r *Registry) Lookup(id domain.AgentID) (Agent, bool) {
	a, ok := r.byID[id]
	return a, ok
}

func (r *Registry) Fallback() Agent {
	return r.fallback
}

func (r *Registry) Agents() []Agent {
	return append([]Agent(nil), r.ordered...)
}

// Classify picks the agent for a message without sticky routing. The second
// return value is the matched trigger phrase, empty for the fallback.
func (r *Registry) Classify(message string) (Agent, string) {
	for _, a := range r.ordered {
		if phrase, ok := a.Signals().Match(message); ok {
			return a, phrase
		}
	}
	return r.fallback, ""
}
