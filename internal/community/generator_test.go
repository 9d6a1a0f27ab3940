package community

import (
	"errors"
	"testing"

	"github.com/nvandessel/evosim/internal/models"
)

func TestGenerateEvent_FixedPolicies(t *testing.T) {
	tests := []struct {
		name  string
		kind  models.EventKind
		ec    EventContext
		wantC float64
		wantD float64
	}{
		{"founding", models.EventKindFounding, EventContext{}, 0.4, 0.2},
		{"join innovator", models.EventKindJoin, EventContext{AgentType: models.AgentTypeInnovator}, 0.0, 0.3},
		{"join stabilizer", models.EventKindJoin, EventContext{AgentType: models.AgentTypeStabilizer}, 0.3, 0.0},
		{"join synthesizer", models.EventKindJoin, EventContext{AgentType: models.AgentTypeSynthesizer}, 0.2, 0.2},
		{"join explorer", models.EventKindJoin, EventContext{AgentType: models.AgentTypeExplorer}, -0.1, 0.4},
		{"join coordinator", models.EventKindJoin, EventContext{AgentType: models.AgentTypeCoordinator}, 0.4, 0.1},
		{"rule structural", models.EventKindRuleCreation, EventContext{RuleType: models.RuleTypeStructural}, 0.3, -0.1},
		{"rule innovative", models.EventKindRuleCreation, EventContext{RuleType: models.RuleTypeInnovative}, -0.1, 0.3},
		{"rule balancing", models.EventKindRuleCreation, EventContext{RuleType: models.RuleTypeBalancing}, 0.1, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newTestSimulator(&scriptedRand{})
			e, err := sim.GenerateEvent(tt.kind, tt.ec)
			if err != nil {
				t.Fatalf("GenerateEvent() error = %v", err)
			}
			if e.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", e.Kind, tt.kind)
			}
			if e.CoherenceImpact != tt.wantC || e.DiversityImpact != tt.wantD {
				t.Errorf("impact = (%v, %v), want (%v, %v)", e.CoherenceImpact, e.DiversityImpact, tt.wantC, tt.wantD)
			}
			if !e.Timestamp.Equal(fixedTime) {
				t.Errorf("Timestamp = %v, want injected clock", e.Timestamp)
			}
		})
	}
}

func TestGenerateEvent_JoinDrawsAgentType(t *testing.T) {
	// IntN -> 3 selects the fourth agent type (explorer)
	sim := newTestSimulator(&scriptedRand{ints: []int{3}})
	e, err := sim.GenerateEvent(models.EventKindJoin, EventContext{Step: 4})
	if err != nil {
		t.Fatalf("GenerateEvent() error = %v", err)
	}
	if got := e.MetaString("agent_type"); got != string(models.AgentTypeExplorer) {
		t.Errorf("agent_type = %q, want explorer", got)
	}
	if e.AgentID != "agent-1" {
		t.Errorf("AgentID = %q, want agent-1", e.AgentID)
	}
	if e.Metadata["step"] != 4 {
		t.Errorf("step = %v, want 4", e.Metadata["step"])
	}

	e2, _ := sim.GenerateEvent(models.EventKindJoin, EventContext{AgentID: "ada"})
	if e2.AgentID != "ada" {
		t.Errorf("pinned AgentID = %q, want ada", e2.AgentID)
	}
}

func TestGenerateEvent_InnovationRange(t *testing.T) {
	tests := []struct {
		name  string
		draw  float64
		wantC float64
		wantD float64
	}{
		{"low end", 0.0, -0.2, 0.2},
		{"midpoint", 0.5, -0.05, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newTestSimulator(&scriptedRand{floats: []float64{tt.draw}})
			e, err := sim.GenerateEvent(models.EventKindInnovation, EventContext{})
			if err != nil {
				t.Fatalf("GenerateEvent() error = %v", err)
			}
			if !approxEqual(e.CoherenceImpact, tt.wantC) || !approxEqual(e.DiversityImpact, tt.wantD) {
				t.Errorf("impact = (%v, %v), want (%v, %v)", e.CoherenceImpact, e.DiversityImpact, tt.wantC, tt.wantD)
			}
			if e.Description == "" {
				t.Error("innovation has no description")
			}
		})
	}
}

func TestGenerateEvent_InnovationStaysInBounds(t *testing.T) {
	sim := newTestSimulator(NewRand(7))
	for i := 0; i < 500; i++ {
		e, err := sim.GenerateEvent(models.EventKindInnovation, EventContext{})
		if err != nil {
			t.Fatalf("GenerateEvent() error = %v", err)
		}
		if e.CoherenceImpact < -0.2 || e.CoherenceImpact > 0.1 {
			t.Fatalf("coherence impact %v outside [-0.2, 0.1]", e.CoherenceImpact)
		}
		if e.DiversityImpact < 0.2 || e.DiversityImpact > 0.4 {
			t.Fatalf("diversity impact %v outside [0.2, 0.4]", e.DiversityImpact)
		}
	}
}

func TestGenerateEvent_AdaptationPolicy(t *testing.T) {
	tests := []struct {
		name   string
		setup  []float64 // coherence, diversity impact applied first
		wantC  float64
		wantD  float64
		reason string
	}{
		{"low coherence", []float64{-0.2, 0.3}, 0.3, -0.1, "restore coherence"},
		{"low diversity", []float64{0.2, -0.2}, -0.1, 0.3, "restore diversity"},
		{"both healthy", nil, 0.1, 0.1, "reinforce balance"},
		{"both low prefers coherence", []float64{-0.3, -0.3}, 0.3, -0.1, "restore coherence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newTestSimulator(&scriptedRand{})
			if tt.setup != nil {
				if err := sim.Apply(mustEvent(t, models.EventKindInnovation, tt.setup[0], tt.setup[1])); err != nil {
					t.Fatalf("Apply() error = %v", err)
				}
			}
			e, err := sim.GenerateEvent(models.EventKindAdaptation, EventContext{})
			if err != nil {
				t.Fatalf("GenerateEvent() error = %v", err)
			}
			if e.CoherenceImpact != tt.wantC || e.DiversityImpact != tt.wantD {
				t.Errorf("impact = (%v, %v), want (%v, %v)", e.CoherenceImpact, e.DiversityImpact, tt.wantC, tt.wantD)
			}
			if got := e.MetaString("reason"); got != tt.reason {
				t.Errorf("reason = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestGenerateEvent_Rejects(t *testing.T) {
	sim := newTestSimulator(&scriptedRand{})

	if _, err := sim.GenerateEvent(models.EventKind("vote"), EventContext{}); !errors.Is(err, models.ErrUnknownKind) {
		t.Errorf("unknown kind error = %v, want ErrUnknownKind", err)
	}
	if _, err := sim.GenerateEvent(models.EventKindJoin, EventContext{AgentType: "wanderer"}); !errors.Is(err, models.ErrUnknownAgentType) {
		t.Errorf("unknown agent type error = %v, want ErrUnknownAgentType", err)
	}
	if _, err := sim.GenerateEvent(models.EventKindRuleCreation, EventContext{RuleType: "chaotic"}); !errors.Is(err, models.ErrUnknownRuleType) {
		t.Errorf("unknown rule type error = %v, want ErrUnknownRuleType", err)
	}
}
