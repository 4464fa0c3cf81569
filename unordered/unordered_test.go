package unordered

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zepedaj/jztools/recorder"
	"github.com/zepedaj/jztools/vclock"
)

func double(n int) int { return n * 2 }

// record captures a few calls and returns the player rebuilt from the
// serialized bytes.
func record(t *testing.T, hasher ArgHasher, argLists ...[]any) *Player {
	t.Helper()
	rec := NewRecorder(double)
	for _, args := range argLists {
		_, err := rec.Call(args...)
		require.NoError(t, err)
	}
	data, err := rec.MarshalRecording()
	require.NoError(t, err)
	p, err := UnmarshalPlayer(data, hasher, nil)
	require.NoError(t, err)
	return p
}

func TestRecorder_ForwardsAndRecords(t *testing.T) {
	rec := NewRecorder(double)

	out, err := rec.Call(21)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []recorder.Value{recorder.Int(21)}, calls[0].Args)
	assert.Equal(t, recorder.Int(42), calls[0].Value)
}

func TestRecorder_LiveErrorNotRecorded(t *testing.T) {
	rec := NewRecorder(func() (int, error) { return 0, assert.AnError })

	_, err := rec.Call()
	require.Error(t, err)
	assert.Empty(t, rec.Calls())
}

func TestPlayback_OrderIndependent(t *testing.T) {
	p := record(t, nil, []any{1}, []any{2}, []any{3})

	// Replay in a different order than recorded.
	for _, n := range []int{3, 1, 2} {
		out, err := p.Call(n)
		require.NoError(t, err)
		assert.Equal(t, int64(n*2), out)
	}
	assert.Equal(t, 0, p.Remaining())
}

func TestPlayback_LIFOWithinBucket(t *testing.T) {
	// Identical arguments, distinct recorded results.
	rec := NewRecorder(func(n int) time.Time { return time.Now().UTC() })
	first, err := rec.Call(1)
	require.NoError(t, err)
	second, err := rec.Call(1)
	require.NoError(t, err)

	data, err := rec.MarshalRecording()
	require.NoError(t, err)
	p, err := UnmarshalPlayer(data, nil, nil)
	require.NoError(t, err)

	// The most recently recorded entry pops first.
	got, err := p.Call(1)
	require.NoError(t, err)
	assert.Equal(t, second.(time.Time).Truncate(time.Nanosecond), got.(time.Time))
	got, err = p.Call(1)
	require.NoError(t, err)
	assert.Equal(t, first.(time.Time).Truncate(time.Nanosecond), got.(time.Time))
}

func TestPlayback_UnknownArgsFails(t *testing.T) {
	p := record(t, nil, []any{1})

	_, err := p.Call(99)
	assert.True(t, recorder.IsNoCallEntryForArgs(err))

	// The recorded entry is still available.
	out, err := p.Call(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out)

	// A drained bucket behaves like an unknown one.
	_, err = p.Call(1)
	assert.True(t, recorder.IsNoCallEntryForArgs(err))
}

func TestPlayback_MethodHasherIgnoresReceiver(t *testing.T) {
	add := func(recv string, n int) int { return n + 1 }
	rec := NewRecorder(add)
	_, err := rec.Call("live-conn", 5)
	require.NoError(t, err)

	data, err := rec.MarshalRecording()
	require.NoError(t, err)
	p, err := UnmarshalPlayer(data, MethodHasher, nil)
	require.NoError(t, err)

	// A different first argument still matches.
	out, err := p.Call("replay-conn", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), out)
}

func TestPlayback_ClockWarp(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recClock := vclock.NewAt(t0.Add(3 * time.Second))
	rec := NewRecorder(double, WithClock(recClock))
	_, err := rec.Call(1)
	require.NoError(t, err)

	data, err := rec.MarshalRecording()
	require.NoError(t, err)
	playClock := vclock.NewAt(t0)
	p, err := UnmarshalPlayer(data, nil, playClock)
	require.NoError(t, err)

	_, err = p.Call(1)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(3*time.Second), playClock.Now())
}

func TestRecorder_ConcurrentCalls(t *testing.T) {
	rec := NewRecorder(double)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := rec.Call(n)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, rec.Calls(), 200)
}
