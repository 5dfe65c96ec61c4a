package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentSignals configures routing triggers. Agents are routed in the order
// they are listed; the first agent whose signals match a message wins.
type AgentSignals struct {
	Agents  []AgentSignalConfig `yaml:"agents"`
	General GeneralSignalConfig `yaml:"general"`
}

type AgentSignalConfig struct {
	ID         string   `yaml:"id"`
	Signals    []string `yaml:"signals"`
	Emergency  []string `yaml:"emergency,omitempty"`
	Urgent     []string `yaml:"urgent,omitempty"`
	Reschedule []string `yaml:"reschedule,omitempty"`
	Abort      []string `yaml:"abort,omitempty"`
}

type GeneralSignalConfig struct {
	Hours []string `yaml:"hours"`
}

var knownAgents = map[string]struct{}{
	"triage":     {},
	"scheduling": {},
}

// DefaultAgentSignals lists triage before scheduling so that a message
// mentioning both symptoms and an appointment is triaged first.
func DefaultAgentSignals() AgentSignals {
	return AgentSignals{
		Agents: []AgentSignalConfig{
			{
				ID: "triage",
				Signals: []string{
					"symptom", "symptoms", "pain", "hurts", "hurt", "ache", "fever", "cough",
					"sick", "ill", "nausea", "vomiting", "dizzy", "bleeding", "rash", "swelling",
					"injury", "injured", "breathe", "breathing", "headache", "infection",
					"not feeling well", "feel unwell", "triage",
				},
				Emergency: []string{
					"chest pain", "can't breathe", "cannot breathe", "difficulty breathing",
					"unconscious", "passed out", "severe bleeding", "stroke", "seizure",
					"overdose", "suicidal", "heart attack",
				},
				Urgent: []string{
					"fever", "vomiting", "infection", "high temperature", "severe pain",
					"dizzy", "swelling", "rash", "bleeding", "injury", "injured",
				},
			},
			{
				ID: "scheduling",
				Signals: []string{
					"reschedule", "appointment", "appointments", "schedule", "book", "booking",
					"slot", "visit", "see the doctor", "see a doctor",
				},
				Reschedule: []string{
					"reschedule", "move my appointment", "change my appointment", "different time",
				},
				Abort: []string{"never mind", "nevermind", "forget it", "stop", "cancel that"},
			},
		},
		General: GeneralSignalConfig{
			Hours: []string{"hours", "open", "opening", "closing", "close"},
		},
	}
}

// LoadAgentSignals reads the YAML signal file at path, or returns the
// defaults when path is empty.
func LoadAgentSignals(path string) (AgentSignals, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultAgentSignals(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return AgentSignals{}, fmt.Errorf("read agent signals file: %w", err)
	}
	return ParseAgentSignals(raw)
}

func ParseAgentSignals(raw []byte) (AgentSignals, error) {
	var out AgentSignals
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&out); err != nil {
		return AgentSignals{}, fmt.Errorf("decode agent signals: %w", err)
	}
	if err := out.Validate(); err != nil {
		return AgentSignals{}, err
	}
	return out, nil
}

func (s AgentSignals) Validate() error {
	seen := make(map[string]struct{}, len(s.Agents))
	for i, a := range s.Agents {
		id := strings.TrimSpace(a.ID)
		if _, ok := knownAgents[id]; !ok {
			return fmt.Errorf("agent signals: entry %d has unknown agent id %q", i, a.ID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("agent signals: agent %q listed twice", id)
		}
		if len(a.Signals) == 0 {
			return fmt.Errorf("agent signals: agent %q has no signals", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
