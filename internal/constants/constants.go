// Package constants provides named constants used throughout the evosim codebase.
// This centralizes the simulation's tuning values so the simulator, config
// defaults and tests agree on them.
package constants

// Ideal point of the coherence/diversity plane. The balance score measures
// closeness to this point.
const (
	// IdealCoherence is the coherence value a healthy community converges toward.
	IdealCoherence = 0.7

	// IdealDiversity is the diversity value a healthy community converges toward.
	IdealDiversity = 0.6

	// DefaultStateValue is the coherence and diversity reported before any event is applied.
	DefaultStateValue = 0.5
)

// Step probabilities for the fixed-shape simulation loop.
const (
	// JoinProbability is the per-step chance that an agent joins (budget permitting).
	JoinProbability = 0.3

	// RuleProbability is the per-step chance that a rule is created.
	RuleProbability = 0.2

	// InnovationProbability is the per-step chance of an innovation event.
	InnovationProbability = 0.15

	// AdaptationGate is the probability that a community below the balance
	// threshold actually self-corrects on a given step.
	AdaptationGate = 0.4
)

// Adaptation and classification thresholds.
const (
	// AdaptationWindow is the number of trailing balance samples averaged
	// when deciding whether adaptation is needed.
	AdaptationWindow = 3

	// AdaptationBalanceThreshold is the mean balance below which adaptation is considered.
	AdaptationBalanceThreshold = 0.5

	// LowStateThreshold marks coherence or diversity as depleted for the adaptation policy.
	LowStateThreshold = 0.4

	// TrajectoryWindow is the number of samples compared at each end of a run.
	TrajectoryWindow = 3

	// TrajectoryDelta is the minimum change in windowed mean balance that
	// counts as improving or declining.
	TrajectoryDelta = 0.2

	// HealthyBalanceThreshold is the balance above which a sample counts as healthy
	// in run summaries.
	HealthyBalanceThreshold = 0.6
)

// Demo run shape used when the CLI is invoked without arguments.
const (
	// DemoDuration is the number of steps in the demo run.
	DemoDuration = 21

	// DemoJoinBudget caps the number of joins in the demo run.
	DemoJoinBudget = 8

	// MaxDuration bounds the steps of any run. Histories and the event
	// log grow with every step.
	MaxDuration = 10000

	// MaxJoinBudget bounds the join budget. At most one join happens per
	// step, so a larger budget could never be spent.
	MaxJoinBudget = MaxDuration
)

// Genesis thresholds used by phase classification.
const (
	ConvergenceMembers = 3
	ConvergenceRules   = 2
	ConvergenceStuff   = 3
	GrowthMembers      = 2
	GrowthRules        = 1
)

// Readiness thresholds: a community can collaborate, govern itself and
// create once each is met.
const (
	ReadyMembers = 2
	ReadyRules   = 1
	ReadyStuff   = 2
)

// Synthesis thresholds.
const (
	// StagnationWindow is the number of trailing events inspected for repetition.
	StagnationWindow = 20

	// StagnationOpportunity flags a synergy opportunity when exceeded.
	StagnationOpportunity = 0.5

	// StagnationIntervention triggers a critical intervention when exceeded.
	StagnationIntervention = 0.6

	// WeakCorrelation flags a diversity/emergence correlation as weak below it.
	WeakCorrelation = 0.4
)

// EvosimDirName is the per-project and per-user state directory name.
const EvosimDirName = ".evosim"
