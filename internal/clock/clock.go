// Package clock supplies the monotonic time source that drives every tick.
// Components only ever compute deltas between two readings, so the wall-clock
// part of the returned time is irrelevant.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System reads the process clock. time.Now carries a monotonic reading, so
// Sub between two values is unaffected by wall-clock steps.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Fake is a manually advanced clock for tests. Not safe for concurrent use.
type Fake struct {
	now time.Time
}

// NewFake returns a Fake starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time { return f.now }

// Advance moves the clock forward by d and returns the new time.
func (f *Fake) Advance(d time.Duration) time.Time {
	f.now = f.now.Add(d)
	return f.now
}
