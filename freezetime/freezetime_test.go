package freezetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zepedaj/jztools/recorder"
	"github.com/zepedaj/jztools/vclock"
)

func TestRecorder_RecordsCallTimes(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := vclock.NewAt(t0)
	rec := NewRecorder(func(n int) int { return n + 1 }, WithClock(clock))

	out, err := rec.Call(1)
	require.NoError(t, err)
	assert.Equal(t, 2, out)

	clock.MoveTo(t0.Add(time.Second), false)
	_, err = rec.Call(2)
	require.NoError(t, err)

	calls := rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, t0, calls[0].Time)
	assert.Equal(t, t0.Add(time.Second), calls[1].Time)
	assert.Nil(t, calls[0].Stack, "stacks are not captured by default")
}

func TestRecorder_LiveErrorNotRecorded(t *testing.T) {
	rec := NewRecorder(func() (int, error) { return 0, assert.AnError })

	_, err := rec.Call()
	require.Error(t, err)
	assert.Empty(t, rec.Calls())
}

func TestPlayback_PinsClockThenCallsLive(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// The wrapped function is time-dependent through the shared clock.
	recClock := vclock.NewAt(t0)
	stamp := func(clock *vclock.Clock) func() time.Time {
		return func() time.Time { return clock.Now() }
	}
	rec := NewRecorder(stamp(recClock), WithClock(recClock))

	recClock.MoveTo(t0.Add(5*time.Second), false)
	recorded, err := rec.Call()
	require.NoError(t, err)

	data, err := rec.MarshalRecording()
	require.NoError(t, err)

	playClock := vclock.NewAt(t0)
	p, err := UnmarshalPlayer(data, stamp(playClock), WithClock(playClock))
	require.NoError(t, err)
	require.Equal(t, 1, p.Remaining())

	// The live function re-executes under the recorded instant.
	replayed, err := p.Call()
	require.NoError(t, err)
	assert.True(t, recorded.(time.Time).Equal(replayed.(time.Time)))
	assert.Equal(t, 0, p.Remaining())
}

func TestPlayback_ExhaustedFails(t *testing.T) {
	rec := NewRecorder(func() int { return 1 })
	_, err := rec.Call()
	require.NoError(t, err)

	data, err := rec.MarshalRecording()
	require.NoError(t, err)
	p, err := UnmarshalPlayer(data, func() int { return 1 })
	require.NoError(t, err)

	_, err = p.Call()
	require.NoError(t, err)
	_, err = p.Call()
	assert.True(t, recorder.IsNoCallRecordsLeft(err))
}

func TestPlayback_StackComparisonMatches(t *testing.T) {
	rec := NewRecorder(func() int { return 1 }, WithStackComparison())

	// Record and replay through the same call site so the stacks coincide.
	var c interface {
		Call(args ...any) (any, error)
	} = rec
	var p *Player
	for i := 0; i < 2; i++ {
		_, err := c.Call()
		require.NoError(t, err)
		if i == 0 {
			data, err := rec.MarshalRecording()
			require.NoError(t, err)
			p, err = UnmarshalPlayer(data, func() int { return 1 }, WithStackComparison())
			require.NoError(t, err)
			c = p
		}
	}
	assert.Equal(t, 0, p.Remaining())
}

func TestPlayback_StackComparisonMismatch(t *testing.T) {
	rec := NewRecorder(func() int { return 1 }, WithStackComparison())
	_, err := rec.Call()
	require.NoError(t, err)

	data, err := rec.MarshalRecording()
	require.NoError(t, err)
	p, err := UnmarshalPlayer(data, func() int { return 1 })
	require.NoError(t, err)

	// A different call site replays through a different stack.
	_, err = callFromElsewhere(p)
	var mismatch *StackMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Contains(t, mismatch.Error(), "do not match")
}

func callFromElsewhere(p *Player) (any, error) {
	return p.Call()
}

func TestStacksEqual_WrapperFramesNeutral(t *testing.T) {
	a := []string{wrapperDir + "freezetime.go:10 internal", "/src/app/main.go:5 main.main"}
	b := []string{wrapperDir + "freezetime.go:99 other", "/src/app/main.go:5 main.main"}
	assert.True(t, stacksEqual(a, b))

	c := []string{wrapperDir + "freezetime.go:10 internal", "/src/app/main.go:7 main.main"}
	assert.False(t, stacksEqual(a, c))
}
