package community

import (
	"fmt"

	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/models"
)

// impact is a (coherence, diversity) pair.
type impact struct {
	coherence float64
	diversity float64
}

var joinImpacts = map[models.AgentType]impact{
	models.AgentTypeInnovator:   {0.0, 0.3},
	models.AgentTypeStabilizer:  {0.3, 0.0},
	models.AgentTypeSynthesizer: {0.2, 0.2},
	models.AgentTypeExplorer:    {-0.1, 0.4},
	models.AgentTypeCoordinator: {0.4, 0.1},
}

var ruleImpacts = map[models.RuleType]impact{
	models.RuleTypeStructural: {0.3, -0.1},
	models.RuleTypeInnovative: {-0.1, 0.3},
	models.RuleTypeBalancing:  {0.1, 0.1},
}

var foundingImpact = impact{0.4, 0.2}

// Innovation impacts are drawn uniformly from these ranges.
const (
	innovationCoherenceMin = -0.2
	innovationCoherenceMax = 0.1
	innovationDiversityMin = 0.2
	innovationDiversityMax = 0.4
)

var innovationDescriptions = []string{
	"novel collaboration protocol proposed",
	"experimental tool contributed",
	"unconventional approach to an open problem",
	"cross-domain idea introduced",
	"new communication pattern tried",
}

// EventContext pins choices that would otherwise be drawn at random.
// The zero value lets the generator choose everything.
type EventContext struct {
	// AgentID overrides the generated agent identifier on joins.
	AgentID string

	// AgentType pins the temperament of a joining agent.
	AgentType models.AgentType

	// RuleType pins the intent of a created rule.
	RuleType models.RuleType

	// Step is recorded in the event metadata.
	Step int
}

// GenerateEvent builds an event of the given kind using the simulator's
// random source and current state. Adaptation impacts depend on the state at
// generation time.
func (s *Simulator) GenerateEvent(kind models.EventKind, ec EventContext) (models.Event, error) {
	meta := map[string]any{"step": ec.Step}
	var (
		imp         impact
		agentID     string
		description string
	)

	switch kind {
	case models.EventKindFounding:
		imp = foundingImpact
		description = "community founded"

	case models.EventKindJoin:
		at := ec.AgentType
		if at == "" {
			at = models.AgentTypes[s.rng.IntN(len(models.AgentTypes))]
		}
		var ok bool
		if imp, ok = joinImpacts[at]; !ok {
			return models.Event{}, fmt.Errorf("%w: %q", models.ErrUnknownAgentType, at)
		}
		agentID = ec.AgentID
		if agentID == "" {
			s.agentSeq++
			agentID = fmt.Sprintf("agent-%d", s.agentSeq)
		}
		meta["agent_type"] = string(at)
		description = fmt.Sprintf("%s joined as %s", agentID, at)

	case models.EventKindRuleCreation:
		rt := ec.RuleType
		if rt == "" {
			rt = models.RuleTypes[s.rng.IntN(len(models.RuleTypes))]
		}
		var ok bool
		if imp, ok = ruleImpacts[rt]; !ok {
			return models.Event{}, fmt.Errorf("%w: %q", models.ErrUnknownRuleType, rt)
		}
		meta["rule_type"] = string(rt)
		description = fmt.Sprintf("%s rule adopted", rt)

	case models.EventKindInnovation:
		imp = impact{
			coherence: uniform(s.rng, innovationCoherenceMin, innovationCoherenceMax),
			diversity: uniform(s.rng, innovationDiversityMin, innovationDiversityMax),
		}
		description = innovationDescriptions[s.rng.IntN(len(innovationDescriptions))]

	case models.EventKindAdaptation:
		var reason string
		imp, reason = adaptationImpact(s.state.Coherence(), s.state.Diversity())
		meta["reason"] = reason
		description = "community adapted: " + reason

	default:
		return models.Event{}, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}

	return models.NewEvent(s.opts.Clock(), kind, agentID, description, imp.coherence, imp.diversity, meta)
}

// adaptationImpact is the closed-loop policy: restore whichever of
// coherence or diversity is depleted, otherwise nudge both up.
func adaptationImpact(coherence, diversity float64) (impact, string) {
	switch {
	case coherence < constants.LowStateThreshold:
		return impact{0.3, -0.1}, "restore coherence"
	case diversity < constants.LowStateThreshold:
		return impact{-0.1, 0.3}, "restore diversity"
	default:
		return impact{0.1, 0.1}, "reinforce balance"
	}
}

func uniform(rng Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}
