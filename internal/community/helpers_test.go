package community

import (
	"math"
	"testing"
	"time"

	"github.com/nvandessel/evosim/internal/models"
)

// scriptedRand replays fixed values. When a script runs out the last value
// repeats; an empty script yields zero.
type scriptedRand struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[min(r.fi, len(r.floats)-1)]
	r.fi++
	return v
}

func (r *scriptedRand) IntN(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[min(r.ii, len(r.ints)-1)]
	r.ii++
	return v % n
}

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Clock = func() time.Time { return fixedTime }
	return opts
}

func newTestSimulator(rng Rand) *Simulator {
	return New(rng, testOptions())
}

func mustEvent(t *testing.T, kind models.EventKind, c, d float64) models.Event {
	t.Helper()
	e, err := models.NewEvent(fixedTime, kind, "", "test", c, d, nil)
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	return e
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
