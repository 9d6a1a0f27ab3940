package community

import (
	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/models"
)

// Report summarizes a simulation run.
type Report struct {
	Steps  int            `json:"steps"`
	Events []models.Event `json:"events"`

	Coherence []float64 `json:"coherence_history"`
	Diversity []float64 `json:"diversity_history"`
	Balance   []float64 `json:"balance_history"`

	FinalCoherence float64    `json:"final_coherence"`
	FinalDiversity float64    `json:"final_diversity"`
	FinalBalance   float64    `json:"final_balance"`
	MeanBalance    float64    `json:"mean_balance"`
	Trajectory     Trajectory `json:"trajectory"`

	EventCounts map[models.EventKind]int `json:"event_counts"`

	// HealthyPercent is the share of balance samples above the healthy
	// threshold, as a percentage.
	HealthyPercent float64 `json:"healthy_percent"`
}

// report snapshots the simulator into a Report.
func (s *Simulator) report(steps int) *Report {
	return NewReport(steps, s.Events(), &s.state)
}

// NewReport derives a Report from an event log and the state it produced.
func NewReport(steps int, events []models.Event, st *State) *Report {
	balance := st.BalanceHistory()

	counts := make(map[models.EventKind]int, len(models.EventKinds))
	for _, e := range events {
		counts[e.Kind]++
	}

	healthy := 0
	for _, b := range balance {
		if b > constants.HealthyBalanceThreshold {
			healthy++
		}
	}
	var pct float64
	if len(balance) > 0 {
		pct = 100 * float64(healthy) / float64(len(balance))
	}

	return &Report{
		Steps:          steps,
		Events:         events,
		Coherence:      st.CoherenceHistory(),
		Diversity:      st.DiversityHistory(),
		Balance:        balance,
		FinalCoherence: st.Coherence(),
		FinalDiversity: st.Diversity(),
		FinalBalance:   st.Balance(),
		MeanBalance:    mean(balance),
		Trajectory:     ClassifyTrajectory(balance),
		EventCounts:    counts,
		HealthyPercent: pct,
	}
}

// AgentDiversity is the share of distinct agent types among joins. A run
// with no joins counts as perfectly diverse.
func (r *Report) AgentDiversity() float64 {
	seen := make(map[string]bool)
	joins := 0
	for _, e := range r.Events {
		if e.Kind != models.EventKindJoin {
			continue
		}
		joins++
		seen[e.MetaString("agent_type")] = true
	}
	if joins == 0 {
		return 1.0
	}
	return float64(len(seen)) / float64(joins)
}

// KindDiversity is the share of recognized event kinds that occurred at
// least once. An empty run counts as perfectly diverse.
func (r *Report) KindDiversity() float64 {
	if len(r.Events) == 0 {
		return 1.0
	}
	present := 0
	for _, k := range models.EventKinds {
		if r.EventCounts[k] > 0 {
			present++
		}
	}
	return float64(present) / float64(len(models.EventKinds))
}

// StagnationRisk scores repetition among the most recent events: a run
// dominated by one kind scores high. With no events the risk is 0.
func (r *Report) StagnationRisk() float64 {
	recent := r.Events
	if len(recent) > constants.StagnationWindow {
		recent = recent[len(recent)-constants.StagnationWindow:]
	}
	if len(recent) == 0 {
		return 0
	}

	counts := make(map[models.EventKind]int)
	top := 0
	for _, e := range recent {
		counts[e.Kind]++
		top = max(top, counts[e.Kind])
	}
	n := float64(len(recent))
	repetition := float64(top) / n
	distinct := float64(len(counts)) / n
	return repetition*0.7 + (1-distinct)*0.3
}
