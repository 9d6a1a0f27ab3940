package ratelimit

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

var testLimits = map[string]Limit{
	"evosim_run":   {PerMinute: 10, Burst: 3},
	"evosim_runs":  {PerMinute: 60, Burst: 10},
	"evosim_phase": {PerMinute: 60, Burst: 1},
}

func TestNewToolLimiters(t *testing.T) {
	limiters := NewToolLimiters(testLimits)

	if len(limiters) != len(testLimits) {
		t.Fatalf("got %d limiters, want %d", len(limiters), len(testLimits))
	}
	for tool, want := range testLimits {
		l, ok := limiters[tool]
		if !ok {
			t.Errorf("missing limiter for %s", tool)
			continue
		}
		if l.Burst() != want.Burst {
			t.Errorf("%s burst = %d, want %d", tool, l.Burst(), want.Burst)
		}
		if got := l.Limit(); got != rate.Limit(want.PerMinute/60.0) {
			t.Errorf("%s limit = %v per second, want %v", tool, got, want.PerMinute/60.0)
		}
	}
}

func TestCheckLimit_BurstExhaustion(t *testing.T) {
	tests := []struct {
		tool  string
		burst int
	}{
		{"evosim_run", 3},
		{"evosim_runs", 10},
		{"evosim_phase", 1},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			limiters := NewToolLimiters(testLimits)
			for i := range tt.burst {
				if err := CheckLimit(limiters, tt.tool); err != nil {
					t.Fatalf("call %d within burst %d: %v", i+1, tt.burst, err)
				}
			}
			if err := CheckLimit(limiters, tt.tool); err == nil {
				t.Errorf("call beyond burst %d was allowed", tt.burst)
			}
		})
	}
}

func TestCheckLimit_ToolsAreIndependent(t *testing.T) {
	limiters := NewToolLimiters(testLimits)

	if err := CheckLimit(limiters, "evosim_phase"); err != nil {
		t.Fatal(err)
	}
	if err := CheckLimit(limiters, "evosim_phase"); err == nil {
		t.Fatal("evosim_phase should be exhausted")
	}

	// An exhausted phase bucket leaves the other tools untouched
	if err := CheckLimit(limiters, "evosim_runs"); err != nil {
		t.Errorf("evosim_runs limited by evosim_phase: %v", err)
	}
	if err := CheckLimit(limiters, "evosim_run"); err != nil {
		t.Errorf("evosim_run limited by evosim_phase: %v", err)
	}
}

func TestCheckLimit_Unlimited(t *testing.T) {
	limiters := NewToolLimiters(testLimits)
	for i := range 100 {
		if err := CheckLimit(limiters, "unknown_tool"); err != nil {
			t.Fatalf("call %d to unlimited tool: %v", i+1, err)
		}
	}
	if err := CheckLimit(nil, "evosim_run"); err != nil {
		t.Errorf("nil limiters should allow everything: %v", err)
	}
}

func TestCheckLimit_Refills(t *testing.T) {
	limiters := NewToolLimiters(map[string]Limit{"evosim_run": {PerMinute: 60, Burst: 1}})
	l := limiters["evosim_run"]

	now := time.Now()
	if !l.AllowN(now, 1) {
		t.Fatal("first call should use the burst")
	}
	if l.AllowN(now, 1) {
		t.Fatal("second call at the same instant should be limited")
	}
	// 60 per minute refills one token per second
	if !l.AllowN(now.Add(time.Second), 1) {
		t.Error("call after one second should be allowed")
	}
}

func TestCheckLimit_Concurrent(t *testing.T) {
	limiters := NewToolLimiters(map[string]Limit{"evosim_runs": {PerMinute: 0, Burst: 50}})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if CheckLimit(limiters, "evosim_runs") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// A zero refill rate leaves exactly the burst
	if allowed != 50 {
		t.Errorf("allowed %d calls, want 50", allowed)
	}
}
