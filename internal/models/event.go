package models

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// ErrUnknownKind is returned when an event kind is outside the recognized set.
var ErrUnknownKind = errors.New("unknown event kind")

// ErrUnknownAgentType is returned when a join names an unrecognized agent type.
var ErrUnknownAgentType = errors.New("unknown agent type")

// ErrUnknownRuleType is returned when a rule creation names an unrecognized rule type.
var ErrUnknownRuleType = errors.New("unknown rule type")

// EventKind identifies what happened in the community
type EventKind string

const (
	EventKindFounding     EventKind = "founding"      // Community is created
	EventKindJoin         EventKind = "join"          // An agent joins
	EventKindRuleCreation EventKind = "rule_creation" // A rule is adopted
	EventKindInnovation   EventKind = "innovation"    // Something new is tried
	EventKindAdaptation   EventKind = "adaptation"    // The community self-corrects
)

// EventKinds lists every recognized kind in the order reports display them.
var EventKinds = []EventKind{
	EventKindFounding,
	EventKindJoin,
	EventKindRuleCreation,
	EventKindInnovation,
	EventKindAdaptation,
}

// Valid returns true if the kind is one of the recognized event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventKindFounding, EventKindJoin, EventKindRuleCreation, EventKindInnovation, EventKindAdaptation:
		return true
	}
	return false
}

// ParseEventKind converts a string into an EventKind, rejecting unknown values.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// AgentType describes the temperament of a joining agent
type AgentType string

const (
	AgentTypeInnovator   AgentType = "innovator"
	AgentTypeStabilizer  AgentType = "stabilizer"
	AgentTypeSynthesizer AgentType = "synthesizer"
	AgentTypeExplorer    AgentType = "explorer"
	AgentTypeCoordinator AgentType = "coordinator"
)

// AgentTypes lists the agent types a join may draw from.
var AgentTypes = []AgentType{
	AgentTypeInnovator,
	AgentTypeStabilizer,
	AgentTypeSynthesizer,
	AgentTypeExplorer,
	AgentTypeCoordinator,
}

// Valid returns true if the agent type is recognized.
func (a AgentType) Valid() bool {
	for _, t := range AgentTypes {
		if a == t {
			return true
		}
	}
	return false
}

// RuleType describes the intent of a newly created rule
type RuleType string

const (
	RuleTypeStructural RuleType = "structural"
	RuleTypeInnovative RuleType = "innovative"
	RuleTypeBalancing  RuleType = "balancing"
)

// RuleTypes lists the rule types a rule creation may draw from.
var RuleTypes = []RuleType{
	RuleTypeStructural,
	RuleTypeInnovative,
	RuleTypeBalancing,
}

// Valid returns true if the rule type is recognized.
func (r RuleType) Valid() bool {
	for _, t := range RuleTypes {
		if r == t {
			return true
		}
	}
	return false
}

// Event is a timestamped occurrence that shifts community coherence and diversity.
// Events are values; the simulator never modifies one after it is created.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`

	// AgentID identifies the originating agent, if any
	AgentID string `json:"agent_id,omitempty"`

	Description string `json:"description"`

	// Signed impacts, nominally in [-1, 1]
	CoherenceImpact float64 `json:"coherence_impact"`
	DiversityImpact float64 `json:"diversity_impact"`

	// Metadata is an open bag (agent_type, rule_type, step, ...)
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewEvent builds an Event, rejecting unknown kinds. The metadata map is
// copied so later changes by the caller do not leak into the event.
func NewEvent(ts time.Time, kind EventKind, agentID, description string, coherence, diversity float64, metadata map[string]any) (Event, error) {
	if !kind.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return Event{
		Timestamp:       ts,
		Kind:            kind,
		AgentID:         agentID,
		Description:     description,
		CoherenceImpact: coherence,
		DiversityImpact: diversity,
		Metadata:        maps.Clone(metadata),
	}, nil
}

// Validate checks that the event carries a recognized kind.
func (e Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return nil
}

// MetaString returns a string metadata value, or "" if absent or not a string.
func (e Event) MetaString(key string) string {
	if e.Metadata == nil {
		return ""
	}
	s, _ := e.Metadata[key].(string)
	return s
}
