package genesis

import (
	"strings"
	"testing"
)

func TestAssessReadiness(t *testing.T) {
	tests := []struct {
		name      string
		g         Genesis
		wantScore float64
		adviceHas string
	}{
		{"nothing", Genesis{}, 0, "Early stage"},
		{"members only", Genesis{Members: 2}, 1.0 / 3, "Some patterns"},
		{"two of three", Genesis{Members: 2, Rules: 1}, 2.0 / 3, "rule completion"},
		{"all", Genesis{Members: 5, Rules: 3, Stuff: 2}, 1, "rule completion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := AssessReadiness(tt.g)
			if r.Score != tt.wantScore {
				t.Errorf("Score = %v, want %v", r.Score, tt.wantScore)
			}
			if !strings.Contains(r.Advice, tt.adviceHas) {
				t.Errorf("Advice = %q, want it to mention %q", r.Advice, tt.adviceHas)
			}
		})
	}
}

func TestCompletionActions(t *testing.T) {
	count := func(actions []Action, typ ActionType) int {
		n := 0
		for _, a := range actions {
			if a.Type == typ {
				n++
			}
		}
		return n
	}

	empty := CompletionActions(Genesis{})
	if got := count(empty, ActionRecruitment); got != 1 {
		t.Errorf("recruitment actions = %d, want 1", got)
	}
	if got := count(empty, ActionRuleProposal); got != 2 {
		t.Errorf("rule proposals = %d, want 2", got)
	}
	if got := count(empty, ActionStuff); got != 3 {
		t.Errorf("stuff actions = %d, want 3", got)
	}
	if !strings.Contains(empty[0].Action, "3 more members") {
		t.Errorf("first action = %q, want 3 more members", empty[0].Action)
	}

	partial := CompletionActions(Genesis{Members: 3, Rules: 1, Stuff: 2})
	if count(partial, ActionRecruitment) != 0 || count(partial, ActionRuleProposal) != 1 || count(partial, ActionStuff) != 1 {
		t.Errorf("partial actions = %+v", partial)
	}

	if done := CompletionActions(Genesis{Members: 4, Rules: 4, Stuff: 4}); len(done) != 0 {
		t.Errorf("actions past thresholds = %+v, want none", done)
	}
}
