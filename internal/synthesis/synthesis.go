// Package synthesis combines diversity and emergence readings into
// community evolution insights and recommendations.
package synthesis

import (
	"context"
	"log/slog"

	"github.com/nvandessel/evosim/internal/community"
	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/genesis"
)

// DiversitySource reports a diversity score in [0, 1].
type DiversitySource interface {
	DiversityScore(ctx context.Context) (float64, error)
}

// EmergenceSource reports an emergence score in [0, 1].
type EmergenceSource interface {
	EmergenceScore(ctx context.Context) (float64, error)
}

// StagnationSource reports how repetitive recent activity has been.
type StagnationSource interface {
	StagnationRisk(ctx context.Context) (float64, error)
}

// Critical patterns.
const (
	PatternHighDiversityHighEmergence = "high_diversity_high_emergence"
	PatternHighDiversityLowEmergence  = genesis.PatternHighDiversityLowEmergence
	PatternLowDiversityHighEmergence  = "low_diversity_high_emergence"
	PatternBalancedModerate           = "balanced_moderate_state"
)

// Insights is the combined reading of all sources.
type Insights struct {
	Diversity      float64 `json:"diversity"`
	Emergence      float64 `json:"emergence"`
	StagnationRisk float64 `json:"stagnation_risk"`

	// Correlation is the mean of diversity and emergence
	Correlation float64 `json:"correlation"`

	CriticalPatterns     []string `json:"critical_patterns"`
	SynergyOpportunities []string `json:"synergy_opportunities,omitempty"`

	// Errors records sources that failed and were scored as 0
	Errors map[string]string `json:"errors,omitempty"`
}

// Synthesis is the full evolution report.
type Synthesis struct {
	Insights        Insights                 `json:"insights"`
	Assessment      genesis.Assessment       `json:"assessment"`
	Recommendations []genesis.Recommendation `json:"recommendations"`
}

// Synthesizer reads its sources and produces a Synthesis.
type Synthesizer struct {
	diversity  DiversitySource
	emergence  EmergenceSource
	stagnation StagnationSource
	state      genesis.Source
	logger     *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithStagnation adds a stagnation reading.
func WithStagnation(src StagnationSource) Option {
	return func(s *Synthesizer) { s.stagnation = src }
}

// WithStateSource sets where the genesis snapshot comes from.
func WithStateSource(src genesis.Source) Option {
	return func(s *Synthesizer) { s.state = src }
}

// WithLogger sets the logger for degraded readings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) { s.logger = logger }
}

// New creates a Synthesizer over the given capabilities. Nil sources
// read as 0.
func New(diversity DiversitySource, emergence EmergenceSource, opts ...Option) *Synthesizer {
	s := &Synthesizer{diversity: diversity, emergence: emergence}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Insights reads every source. A failing source contributes 0 and its
// error is recorded rather than returned.
func (s *Synthesizer) Insights(ctx context.Context) Insights {
	var in Insights
	record := func(name string, err error) {
		if in.Errors == nil {
			in.Errors = make(map[string]string)
		}
		in.Errors[name] = err.Error()
		s.logger.Debug("synthesis source failed", "source", name, "error", err)
	}

	if s.diversity != nil {
		if v, err := s.diversity.DiversityScore(ctx); err != nil {
			record("diversity", err)
		} else {
			in.Diversity = v
		}
	}
	if s.emergence != nil {
		if v, err := s.emergence.EmergenceScore(ctx); err != nil {
			record("emergence", err)
		} else {
			in.Emergence = v
		}
	}
	if s.stagnation != nil {
		if v, err := s.stagnation.StagnationRisk(ctx); err != nil {
			record("stagnation", err)
		} else {
			in.StagnationRisk = v
		}
	}

	in.Correlation = (in.Diversity + in.Emergence) / 2
	in.CriticalPatterns = []string{CriticalPattern(in.Diversity, in.Emergence)}

	if in.StagnationRisk > constants.StagnationOpportunity {
		in.SynergyOpportunities = append(in.SynergyOpportunities,
			"Apply emergence acceleration to break stagnation patterns")
	}
	if in.Correlation < constants.WeakCorrelation {
		in.SynergyOpportunities = append(in.SynergyOpportunities,
			"Increase diversity to amplify emergence potential")
	}
	return in
}

// Synthesize reads all sources, classifies the phase and recommends actions.
func (s *Synthesizer) Synthesize(ctx context.Context) Synthesis {
	in := s.Insights(ctx)
	assessment := genesis.Assess(ctx, s.state, s.logger)
	return Synthesis{
		Insights:   in,
		Assessment: assessment,
		Recommendations: genesis.Recommend(assessment.Phase, genesis.Signals{
			CriticalPatterns: in.CriticalPatterns,
			StagnationRisk:   in.StagnationRisk,
		}),
	}
}

// CriticalPattern names the dominant diversity/emergence pattern.
func CriticalPattern(diversity, emergence float64) string {
	switch {
	case diversity > 0.7 && emergence > 0.3:
		return PatternHighDiversityHighEmergence
	case diversity > 0.7 && emergence < 0.2:
		return PatternHighDiversityLowEmergence
	case diversity < 0.3 && emergence > 0.4:
		return PatternLowDiversityHighEmergence
	default:
		return PatternBalancedModerate
	}
}

// ReportSource exposes a finished simulation run as synthesis inputs:
// final diversity, mean balance as emergence, and stagnation risk.
type ReportSource struct {
	Report *community.Report
}

// DiversityScore returns the run's final diversity.
func (r ReportSource) DiversityScore(ctx context.Context) (float64, error) {
	return r.Report.FinalDiversity, nil
}

// EmergenceScore returns the run's mean balance.
func (r ReportSource) EmergenceScore(ctx context.Context) (float64, error) {
	return r.Report.MeanBalance, nil
}

// StagnationRisk returns repetition among the run's recent events.
func (r ReportSource) StagnationRisk(ctx context.Context) (float64, error) {
	return r.Report.StagnationRisk(), nil
}

// FromReport builds a Synthesizer fed by a simulation run.
func FromReport(r *community.Report, opts ...Option) *Synthesizer {
	src := ReportSource{Report: r}
	return New(src, src, append([]Option{WithStagnation(src)}, opts...)...)
}
