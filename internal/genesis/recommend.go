package genesis

import (
	"slices"

	"github.com/nvandessel/evosim/internal/constants"
)

// Priority orders recommendations; lower rank comes first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the sort position of the priority. Unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// Focus is the area a recommendation acts on.
type Focus string

const (
	FocusDiversity    Focus = "diversity"
	FocusEmergence    Focus = "emergence"
	FocusSynthesis    Focus = "synthesis"
	FocusIntervention Focus = "intervention"
)

// Recommendation is an actionable evolution strategy.
type Recommendation struct {
	Priority       Priority `json:"priority"`
	Focus          Focus    `json:"focus"`
	Description    string   `json:"description"`
	Rationale      string   `json:"rationale"`
	Steps          []string `json:"steps"`
	SuccessMetrics []string `json:"success_metrics"`
}

// Signals are the synthesis results recommendations react to.
type Signals struct {
	CriticalPatterns []string
	StagnationRisk   float64
}

// PatternHighDiversityLowEmergence is the pattern that triggers a
// conversion recommendation.
const PatternHighDiversityLowEmergence = "high_diversity_low_emergence"

// Recommend produces recommendations for a phase and its signals, most
// urgent first. Equal priorities keep the order they were produced in.
func Recommend(phase Phase, sig Signals) []Recommendation {
	var recs []Recommendation

	switch phase {
	case PhaseInitialization:
		recs = append(recs, Recommendation{
			Priority:    PriorityCritical,
			Focus:       FocusDiversity,
			Description: "Bootstrap community with diverse initial contributors",
			Rationale:   "Early diversity sets the foundation for emergence",
			Steps: []string{
				"Encourage different agent types to join",
				"Vary contribution styles in early stuff items",
				"Establish diverse communication patterns",
			},
			SuccessMetrics: []string{"member_count >= 2", "unique_event_types >= 3"},
		})
	case PhaseGrowth:
		recs = append(recs, Recommendation{
			Priority:    PriorityHigh,
			Focus:       FocusEmergence,
			Description: "Accelerate rule formation and consensus building",
			Rationale:   "Growth needs structure to channel diversity into coherent patterns",
			Steps: []string{
				"Propose rules that build on existing contributions",
				"Create voting patterns that encourage participation",
				"Document emerging collaboration patterns",
			},
			SuccessMetrics: []string{"rules_passed >= 2", "voting_participation > 0.7"},
		})
	case PhaseConvergence:
		recs = append(recs, Recommendation{
			Priority:    PriorityMedium,
			Focus:       FocusSynthesis,
			Description: "Optimize convergence toward genesis completion",
			Rationale:   "Near-complete genesis needs fine-tuning for stable emergence",
			Steps: []string{
				"Recruit a final member with complementary skills",
				"Ensure all rules reflect community consensus",
				"Validate that stuff items form a coherent knowledge base",
			},
			SuccessMetrics: []string{"genesis_complete = true", "all_thresholds_met"},
		})
	}

	if slices.Contains(sig.CriticalPatterns, PatternHighDiversityLowEmergence) {
		recs = append(recs, Recommendation{
			Priority:    PriorityHigh,
			Focus:       FocusEmergence,
			Description: "Convert high diversity into emergence acceleration",
			Rationale:   "Diverse inputs need catalysts to produce new patterns",
			Steps: []string{
				"Create cross-reference opportunities between diverse contributions",
				"Establish collaboration protocols that leverage differences",
				"Design challenges that require synthesis of diverse approaches",
			},
			SuccessMetrics: []string{"emergence_score > 0.3"},
		})
	}

	if sig.StagnationRisk > constants.StagnationIntervention {
		recs = append(recs, Recommendation{
			Priority:    PriorityCritical,
			Focus:       FocusIntervention,
			Description: "Break stagnation patterns through forced innovation",
			Rationale:   "High stagnation risk threatens community evolution",
			Steps: []string{
				"Introduce new agent types or perspectives",
				"Change interaction patterns temporarily",
				"Create novel challenges requiring new approaches",
			},
			SuccessMetrics: []string{"stagnation_risk < 0.4", "new_event_types_introduced"},
		})
	}

	slices.SortStableFunc(recs, func(a, b Recommendation) int {
		return a.Priority.Rank() - b.Priority.Rank()
	})
	return recs
}
