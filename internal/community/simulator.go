package community

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/logging"
	"github.com/nvandessel/evosim/internal/models"
)

// Rand is the source of randomness for event generation and the
// adaptation gate. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// NewRand returns a seeded PCG source, so equal seeds give equal runs.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Options tunes the simulation loop.
type Options struct {
	JoinProbability       float64
	RuleProbability       float64
	InnovationProbability float64

	// AdaptationGate is the chance a below-threshold community adapts on a step.
	AdaptationGate float64

	// AdaptationWindow is the number of trailing balance samples averaged.
	AdaptationWindow int

	// Clock stamps generated events. Defaults to time.Now.
	Clock func() time.Time

	Logger    *slog.Logger
	Decisions *logging.DecisionLogger
}

// DefaultOptions returns the standard loop probabilities.
func DefaultOptions() Options {
	return Options{
		JoinProbability:       constants.JoinProbability,
		RuleProbability:       constants.RuleProbability,
		InnovationProbability: constants.InnovationProbability,
		AdaptationGate:        constants.AdaptationGate,
		AdaptationWindow:      constants.AdaptationWindow,
		Clock:                 time.Now,
	}
}

// Simulator applies events to a community state and drives simulation runs.
type Simulator struct {
	rng      Rand
	opts     Options
	state    State
	events   []models.Event
	agentSeq int
}

// New creates a simulator with empty state.
func New(rng Rand, opts Options) *Simulator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.AdaptationWindow <= 0 {
		opts.AdaptationWindow = constants.AdaptationWindow
	}
	if rng == nil {
		rng = NewRand(uint64(time.Now().UnixNano()))
	}
	return &Simulator{rng: rng, opts: opts}
}

// State returns the simulator's state. Callers must not retain it across Reset.
func (s *Simulator) State() *State {
	return &s.state
}

// Events returns a copy of the event log in application order.
func (s *Simulator) Events() []models.Event {
	return slices.Clone(s.events)
}

// Reset discards all histories and the event log.
func (s *Simulator) Reset() {
	s.state = State{}
	s.events = nil
	s.agentSeq = 0
}

// Apply validates the event and appends one sample to each history.
// Events of unknown kind are rejected without touching state.
func (s *Simulator) Apply(e models.Event) error {
	if err := e.Validate(); err != nil {
		if s.opts.Logger != nil {
			s.opts.Logger.Warn("event rejected", "kind", e.Kind, "error", err)
		}
		s.opts.Decisions.Log(map[string]any{
			"event": "event_rejected",
			"kind":  string(e.Kind),
			"error": err.Error(),
		})
		return err
	}

	c, d, b := s.state.apply(e.CoherenceImpact, e.DiversityImpact)
	s.events = append(s.events, e)

	if s.opts.Logger != nil {
		s.opts.Logger.Log(context.Background(), logging.LevelTrace, "event applied",
			"kind", e.Kind, "agent", e.AgentID,
			"coherence", c, "diversity", d, "balance", b)
	}
	return nil
}

// NeedsAdaptation reports whether the community should self-correct now:
// the mean of the trailing balance window is below threshold and the
// random gate opens. With no samples it is always false.
func (s *Simulator) NeedsAdaptation() bool {
	if s.state.Len() == 0 {
		return false
	}
	recent := mean(tail(s.state.balance, s.opts.AdaptationWindow))
	if recent >= constants.AdaptationBalanceThreshold {
		return false
	}

	open := s.rng.Float64() < s.opts.AdaptationGate
	if s.opts.Logger != nil {
		s.opts.Logger.Debug("adaptation gate", "recent_balance", recent, "open", open)
	}
	s.opts.Decisions.Log(map[string]any{
		"event":          "adaptation_gate",
		"recent_balance": recent,
		"gate":           s.opts.AdaptationGate,
		"open":           open,
	})
	return open
}

// Run resets the simulator and drives duration steps. Step 0 emits only
// the founding event. Every later step may emit, in order, a join (while
// fewer than joinBudget joins have happened), a rule creation, an
// innovation, and an adaptation. Cancellation is checked between steps;
// on cancellation the partial report is returned with the context error.
func (s *Simulator) Run(ctx context.Context, duration, joinBudget int) (*Report, error) {
	if duration < 1 {
		return nil, fmt.Errorf("duration must be at least 1, got %d", duration)
	}
	if joinBudget < 0 {
		return nil, fmt.Errorf("join budget must be non-negative, got %d", joinBudget)
	}
	s.Reset()

	if s.opts.Logger != nil {
		s.opts.Logger.Debug("simulation started", "duration", duration, "join_budget", joinBudget)
	}

	joins := 0
	steps := 0
	for step := 0; step < duration; step++ {
		if err := ctx.Err(); err != nil {
			return s.report(steps), err
		}

		if step == 0 {
			if err := s.emit(models.EventKindFounding, step); err != nil {
				return s.report(steps), err
			}
			steps++
			continue
		}

		if joins < joinBudget && s.rng.Float64() < s.opts.JoinProbability {
			if err := s.emit(models.EventKindJoin, step); err != nil {
				return s.report(steps), err
			}
			joins++
		}
		if s.rng.Float64() < s.opts.RuleProbability {
			if err := s.emit(models.EventKindRuleCreation, step); err != nil {
				return s.report(steps), err
			}
		}
		if s.rng.Float64() < s.opts.InnovationProbability {
			if err := s.emit(models.EventKindInnovation, step); err != nil {
				return s.report(steps), err
			}
		}
		if s.NeedsAdaptation() {
			if err := s.emit(models.EventKindAdaptation, step); err != nil {
				return s.report(steps), err
			}
		}
		steps++
	}

	r := s.report(steps)
	if s.opts.Logger != nil {
		s.opts.Logger.Debug("simulation finished",
			"events", len(r.Events), "trajectory", r.Trajectory, "mean_balance", r.MeanBalance)
	}
	return r, nil
}

func (s *Simulator) emit(kind models.EventKind, step int) error {
	e, err := s.GenerateEvent(kind, EventContext{Step: step})
	if err != nil {
		return fmt.Errorf("generating %s event: %w", kind, err)
	}
	return s.Apply(e)
}
