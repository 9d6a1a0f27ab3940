package community

import (
	"math"
	"slices"

	"github.com/nvandessel/evosim/internal/constants"
)

// State holds the coherence, diversity and balance histories. The three
// slices always have equal length; each Apply appends one sample to each.
type State struct {
	coherence []float64
	diversity []float64
	balance   []float64
}

// Len returns the number of samples in each history.
func (s *State) Len() int {
	return len(s.coherence)
}

// Coherence returns the latest coherence, or the default when empty.
func (s *State) Coherence() float64 {
	if len(s.coherence) == 0 {
		return constants.DefaultStateValue
	}
	return s.coherence[len(s.coherence)-1]
}

// Diversity returns the latest diversity, or the default when empty.
func (s *State) Diversity() float64 {
	if len(s.diversity) == 0 {
		return constants.DefaultStateValue
	}
	return s.diversity[len(s.diversity)-1]
}

// Balance returns the latest balance score, or the score of the default
// state when empty.
func (s *State) Balance() float64 {
	if len(s.balance) == 0 {
		return BalanceScore(constants.DefaultStateValue, constants.DefaultStateValue)
	}
	return s.balance[len(s.balance)-1]
}

// CoherenceHistory returns a copy of the coherence samples.
func (s *State) CoherenceHistory() []float64 { return slices.Clone(s.coherence) }

// DiversityHistory returns a copy of the diversity samples.
func (s *State) DiversityHistory() []float64 { return slices.Clone(s.diversity) }

// BalanceHistory returns a copy of the balance samples.
func (s *State) BalanceHistory() []float64 { return slices.Clone(s.balance) }

// apply adds the impacts to the current values, clamps, and appends one
// sample to every history.
func (s *State) apply(coherenceImpact, diversityImpact float64) (c, d, b float64) {
	c = clamp01(s.Coherence() + finite(coherenceImpact))
	d = clamp01(s.Diversity() + finite(diversityImpact))
	b = BalanceScore(c, d)

	s.coherence = append(s.coherence, c)
	s.diversity = append(s.diversity, d)
	s.balance = append(s.balance, b)
	return c, d, b
}

// BalanceScore measures closeness of (coherence, diversity) to the ideal
// point. The result is in [0, 1]; 1 means exactly ideal.
func BalanceScore(coherence, diversity float64) float64 {
	dist := math.Abs(coherence-constants.IdealCoherence) + math.Abs(diversity-constants.IdealDiversity)
	return clamp01(1 - dist/2)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// finite maps NaN impacts to zero; infinities are left for clamp01.
func finite(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// mean returns the arithmetic mean, or 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// tail returns the last n elements (all of them if shorter).
func tail(xs []float64, n int) []float64 {
	if n >= len(xs) {
		return xs
	}
	return xs[len(xs)-n:]
}
