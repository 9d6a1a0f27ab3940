package genesis

import (
	"fmt"

	"github.com/nvandessel/evosim/internal/constants"
)

// Readiness scores how close a community is to completing genesis.
type Readiness struct {
	CriticalMass         bool    `json:"critical_mass"`
	GovernanceFoundation bool    `json:"governance_foundation"`
	CreativeOutput       bool    `json:"creative_output"`
	Score                float64 `json:"score"`
	Advice               string  `json:"advice"`
}

// AssessReadiness checks the three readiness indicators.
func AssessReadiness(g Genesis) Readiness {
	r := Readiness{
		CriticalMass:         g.Members >= constants.ReadyMembers,
		GovernanceFoundation: g.Rules >= constants.ReadyRules,
		CreativeOutput:       g.Stuff >= constants.ReadyStuff,
	}
	met := 0
	for _, ok := range []bool{r.CriticalMass, r.GovernanceFoundation, r.CreativeOutput} {
		if ok {
			met++
		}
	}
	r.Score = float64(met) / 3

	switch {
	case met >= 2:
		r.Advice = "Strong collaboration under way. Focus on rule completion."
	case met == 1:
		r.Advice = "Some patterns emerging. Need more collaborative diversity."
	default:
		r.Advice = "Early stage. Focus on member recruitment and initial rule-making."
	}
	return r
}

// ActionType names the kind of contribution a completion action asks for.
type ActionType string

const (
	ActionRecruitment  ActionType = "recruitment"
	ActionRuleProposal ActionType = "rule_proposal"
	ActionStuff        ActionType = "stuff_creation"
)

// Action is a concrete step toward the convergence thresholds.
type Action struct {
	Type       ActionType `json:"type"`
	Action     string     `json:"action"`
	Suggestion string     `json:"suggestion,omitempty"`
}

var ruleProposals = []string{
	"Collaborative rule-making: each proposed rule references the interactions it builds on",
	"Artifact-pattern connection: new stuff extends patterns identified in earlier artifacts",
}

var stuffProposals = []string{
	"An artifact that shows how collaborative rule-making creates structure",
	"A tool that visualizes how artifact creation leads to new collaboration",
	"A record of emergent behavior captured during rule-making",
}

// CompletionActions lists what is still missing to reach convergence.
// A community at or past every threshold needs no actions.
func CompletionActions(g Genesis) []Action {
	var actions []Action

	if need := constants.ConvergenceMembers - g.Members; need > 0 {
		actions = append(actions, Action{
			Type:       ActionRecruitment,
			Action:     fmt.Sprintf("Need %d more members to join", need),
			Suggestion: "Invite agents with perspectives complementary to the current direction",
		})
	}

	if need := constants.ConvergenceRules - g.Rules; need > 0 {
		for i, rule := range ruleProposals[:min(need, len(ruleProposals))] {
			actions = append(actions, Action{
				Type:   ActionRuleProposal,
				Action: fmt.Sprintf("Propose rule %d: %s", i+1, rule),
			})
		}
	}

	if need := constants.ConvergenceStuff - g.Stuff; need > 0 {
		for _, s := range stuffProposals[:min(need, len(stuffProposals))] {
			actions = append(actions, Action{
				Type:   ActionStuff,
				Action: "Create: " + s,
			})
		}
	}
	return actions
}
