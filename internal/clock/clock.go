// Package clock provides the pipeline's time and identifier sources: a UTC
// wall clock for timestamps, a monotonic elapsed-time source for measuring
// stage/run duration, and uuid-based identifier generation for runs and
// review tasks. Centralizing these makes stage modules and the executor
// testable with a fixed Clock implementation instead of calling time.Now
// and uuid.NewString directly.
package clock

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Clock is the time and identifier source the executor and stage modules
// depend on. The production implementation wraps time.Now/time.Since and
// uuid.NewString; tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
	Since(start time.Time) time.Duration
	NewID() string
}

type systemClock struct{}

// New returns the production Clock backed by the system wall clock and
// uuid v4 generation.
func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time                        { return time.Now().UTC() }
func (systemClock) Since(start time.Time) time.Duration    { return time.Since(start) }
func (systemClock) NewID() string                          { return uuid.NewString() }

// Fixed is a deterministic Clock for tests: Now always returns the same
// instant, Since measures against it, and NewID cycles through a supplied
// sequence (or returns a counter-derived id if none is given).
type Fixed struct {
	At  time.Time
	ids []string
	n   int
}

// NewFixed returns a Fixed clock pinned at at, generating ids from the
// optional sequence (cycled if exhausted).
func NewFixed(at time.Time, ids ...string) *Fixed {
	return &Fixed{At: at, ids: ids}
}

func (f *Fixed) Now() time.Time { return f.At }

func (f *Fixed) Since(start time.Time) time.Duration { return f.At.Sub(start) }

func (f *Fixed) NewID() string {
	if len(f.ids) == 0 {
		f.n++
		return "fixed-id-" + strconv.Itoa(f.n)
	}
	id := f.ids[f.n%len(f.ids)]
	f.n++
	return id
}
