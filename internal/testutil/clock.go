package testutil

import (
	"sync"
	"time"
)

// Clock is a deterministic clock that advances by a fixed step on every
// call to Now. It is safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewClock returns a clock starting at 2024-01-01T00:00:00Z with a one
// second step.
func NewClock() *Clock {
	return &Clock{
		current: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		step:    time.Second,
	}
}

// Now advances the clock and returns the new time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(c.step)

	return c.current
}

// Freeze makes Now return the same instant until the step is changed.
func (c *Clock) Freeze() {
	c.SetStep(0)
}

// SetStep changes how far each call to Now advances.
func (c *Clock) SetStep(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.step = step
}
