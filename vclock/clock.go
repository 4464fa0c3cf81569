// Package vclock provides an engageable virtual UTC clock.
//
// During playback of a recording, the clock is engaged and advanced to each
// entry's recorded access time so that time-dependent code observes the same
// passage of time that occurred during recording. While disengaged the clock
// is a plain wrapper around the wall clock.
//
// The clock is an explicit handle: playback proxies and recording switches
// receive a *Clock rather than consulting process-global state, so tests can
// construct their own instances.
package vclock

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadyEngaged is returned by Engage when the clock is already engaged.
// Engaging an engaged clock is a usage error: two playback scopes would race
// over the same virtual instant.
var ErrAlreadyEngaged = errors.New("vclock: clock is already engaged")

// Clock is a mutable "current time" that can be frozen and advanced
// monotonically.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	engaged bool
	instant time.Time

	// wall returns the real current time; replaceable in tests.
	wall func() time.Time
}

// New creates a disengaged clock backed by the system wall clock.
func New() *Clock {
	return &Clock{wall: func() time.Time { return time.Now().UTC() }}
}

// NewAt creates an engaged clock frozen at the given instant.
// Used by tests that need a deterministic starting point.
func NewAt(t time.Time) *Clock {
	c := New()
	c.engaged = true
	c.instant = t.UTC()
	return c
}

// Now returns the virtual instant when engaged, the real UTC time otherwise.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engaged {
		return c.instant
	}
	return c.wall()
}

// Engaged reports whether the clock is currently frozen.
func (c *Clock) Engaged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engaged
}

// Engage freezes the clock at the current wall time.
// Returns ErrAlreadyEngaged if the clock is already engaged.
func (c *Clock) Engage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engaged {
		return ErrAlreadyEngaged
	}
	c.engaged = true
	c.instant = c.wall()
	return nil
}

// Disengage unfreezes the clock. Disengaging a disengaged clock is a no-op.
func (c *Clock) Disengage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engaged = false
	c.instant = time.Time{}
}

// MoveTo advances the engaged clock to the given instant.
//
// When monotonic is true the call is a no-op unless the instant is strictly
// after the current virtual time, so replayed access times never move the
// clock backward. With monotonic false the clock moves unconditionally.
//
// MoveTo on a disengaged clock is a no-op.
func (c *Clock) MoveTo(t time.Time, monotonic bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.engaged {
		return
	}
	t = t.UTC()
	if monotonic && !t.After(c.instant) {
		return
	}
	c.instant = t
}
