package vclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedWall pins the clock's view of the real wall clock for determinism.
func fixedWall(c *Clock, t time.Time) {
	c.wall = func() time.Time { return t.UTC() }
}

func TestClock_DisengagedTracksWall(t *testing.T) {
	c := New()
	wall := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fixedWall(c, wall)

	assert.False(t, c.Engaged())
	assert.Equal(t, wall, c.Now())
}

func TestClock_EngageFreezes(t *testing.T) {
	c := New()
	wall := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fixedWall(c, wall)

	require.NoError(t, c.Engage())
	assert.True(t, c.Engaged())
	assert.Equal(t, wall, c.Now())

	// Wall clock moves on, virtual instant does not.
	fixedWall(c, wall.Add(time.Hour))
	assert.Equal(t, wall, c.Now())
}

func TestClock_EngageTwiceFails(t *testing.T) {
	c := New()
	require.NoError(t, c.Engage())
	assert.ErrorIs(t, c.Engage(), ErrAlreadyEngaged)
}

func TestClock_Disengage(t *testing.T) {
	c := New()
	wall := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fixedWall(c, wall)

	require.NoError(t, c.Engage())
	c.Disengage()
	assert.False(t, c.Engaged())
	assert.Equal(t, wall, c.Now())

	// Disengaging again is a no-op.
	c.Disengage()
	assert.False(t, c.Engaged())
}

func TestClock_MoveTo_MonotonicNeverMovesBackward(t *testing.T) {
	c := New()
	wall := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fixedWall(c, wall)
	require.NoError(t, c.Engage())

	// Not after the current virtual instant: no-op.
	c.MoveTo(wall.Add(-time.Minute), true)
	assert.Equal(t, wall, c.Now())
	c.MoveTo(wall, true)
	assert.Equal(t, wall, c.Now())

	// Strictly later: advances.
	target := wall.Add(time.Minute)
	c.MoveTo(target, true)
	assert.Equal(t, target, c.Now())

	// The comparison baseline is the virtual instant, not the real wall
	// clock: a target between the two does not rewind the clock.
	c.MoveTo(target.Add(-time.Second), true)
	assert.Equal(t, target, c.Now())
}

func TestClock_MoveTo_NonMonotonicAlwaysMoves(t *testing.T) {
	c := New()
	wall := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fixedWall(c, wall)
	require.NoError(t, c.Engage())

	past := wall.Add(-time.Hour)
	c.MoveTo(past, false)
	assert.Equal(t, past, c.Now())
}

func TestClock_MoveTo_DisengagedNoOp(t *testing.T) {
	c := New()
	wall := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fixedWall(c, wall)

	c.MoveTo(wall.Add(time.Hour), false)
	assert.Equal(t, wall, c.Now())
}

func TestNewAt(t *testing.T) {
	instant := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewAt(instant)
	assert.True(t, c.Engaged())
	assert.Equal(t, instant, c.Now())
}
