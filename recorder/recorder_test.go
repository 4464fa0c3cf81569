package recorder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zepedaj/jztools/vclock"
)

// ticker is a minimal live object standing in for an external service.
type ticker struct {
	Symbol string
	price  float64
	calls  int
}

func (tk *ticker) Quote(qty int) float64 {
	tk.calls++
	return tk.price * float64(qty)
}

func (tk *ticker) Fail() (float64, error) {
	return 0, errors.New("exchange unavailable")
}

func newTicker() *ticker {
	return &ticker{Symbol: "ACME", price: 2.5}
}

func TestRecorder_AttrField(t *testing.T) {
	rec := NewRecorder(newTicker())

	got, err := rec.Attr("Symbol")
	require.NoError(t, err)
	assert.Equal(t, "ACME", got)

	log := rec.Log()
	require.Len(t, log, 1)
	attr := log[0].(*RecordedAttribute)
	assert.Equal(t, "Symbol", attr.Name)
	assert.Equal(t, String("ACME"), attr.Value)
	assert.Nil(t, attr.Nested)
}

func TestRecorder_AttrUnknownNotLogged(t *testing.T) {
	rec := NewRecorder(newTicker())

	_, err := rec.Attr("Nope")
	require.Error(t, err)
	assert.Empty(t, rec.Log())
}

func TestRecorder_AttrMethodIsNested(t *testing.T) {
	rec := NewRecorder(newTicker())

	got, err := rec.Attr("Quote")
	require.NoError(t, err)

	// A bound method is not natively serializable: it comes back wrapped.
	nested, ok := got.(*Recorder)
	require.True(t, ok)
	assert.True(t, nested.Capabilities().Has(CanCall))

	log := rec.Log()
	require.Len(t, log, 1)
	assert.Same(t, nested, log[0].(*RecordedAttribute).Nested)
}

func TestRecorder_CallMethod(t *testing.T) {
	tk := newTicker()
	rec := NewRecorder(tk)

	got, err := rec.CallMethod("Quote", 4)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)
	assert.Equal(t, 1, tk.calls, "the live object saw the call")

	log := rec.Log()
	require.Len(t, log, 1)
	nested := log[0].(*RecordedAttribute).Nested
	require.NotNil(t, nested)
	nestedLog := nested.Log()
	require.Len(t, nestedLog, 1)
	call := nestedLog[0].(*RecordedCall)
	assert.Equal(t, CallName, call.Name)
	assert.Equal(t, []Value{Int(4)}, call.Args)
	assert.Equal(t, Float(10), call.Value)
}

func TestRecorder_CallErrorNotLogged(t *testing.T) {
	rec := NewRecorder(newTicker())

	method, err := rec.Attr("Fail")
	require.NoError(t, err)
	nested := method.(*Recorder)

	_, err = nested.Call()
	require.Error(t, err)
	assert.Empty(t, nested.Log(), "failed calls leave no entry")
}

func TestRecorder_CallKV(t *testing.T) {
	rec := NewRecorder(func(n int) int { return n * 2 })

	got, err := rec.CallKV([]any{21}, map[string]any{"mode": "fast"})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	call := rec.Log()[0].(*RecordedCall)
	assert.Equal(t, []Value{Int(21)}, call.Args)
	assert.Equal(t, Map{"mode": String("fast")}, call.Kwargs)
}

func TestRecorder_UnsupportedCapability(t *testing.T) {
	rec := NewRecorder(newTicker())

	_, err := rec.Call()
	assert.True(t, IsUnsupportedCapability(err))
	_, err = rec.Bool()
	assert.True(t, IsUnsupportedCapability(err))
	_, err = rec.Len()
	assert.True(t, IsUnsupportedCapability(err))
	assert.Empty(t, rec.Log())
}

func TestRecorder_SpecialOpsOnSlice(t *testing.T) {
	rec := NewRecorder([]int{10, 20})

	ok, err := rec.Bool()
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := rec.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	item, err := rec.Item(1)
	require.NoError(t, err)
	assert.Equal(t, 20, item)

	first, more, err := rec.Next()
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, 10, first)
	_, more, err = rec.Next()
	require.NoError(t, err)
	require.True(t, more)
	_, more, err = rec.Next()
	require.NoError(t, err)
	assert.False(t, more)

	// Exhaustion logs nothing: four logged operations plus two yields.
	assert.Len(t, rec.Log(), 5)
}

func TestRecorder_StringOpsCountRunes(t *testing.T) {
	rec := NewRecorder("héllo")

	n, err := rec.Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	item, err := rec.Item(1)
	require.NoError(t, err)
	assert.Equal(t, "é", item, "indexing returns whole characters, not bytes")

	_, err = rec.Item(5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestRecorder_MapIterationIsDeterministic(t *testing.T) {
	rec := NewRecorder(map[string]int{"b": 2, "a": 1, "c": 3})

	var keys []string
	for {
		k, more, err := rec.Next()
		require.NoError(t, err)
		if !more {
			break
		}
		keys = append(keys, k.(string))
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestRecorder_ClockStampsEntries(t *testing.T) {
	instant := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := vclock.NewAt(instant)
	rec := NewRecorder(newTicker(), WithClock(clock))

	_, err := rec.Attr("Symbol")
	require.NoError(t, err)
	assert.Equal(t, instant, rec.Log()[0].EntryTime())
}

func TestRecorder_OverloadsBypassLogging(t *testing.T) {
	rec := NewRecorder(newTicker(), WithOverloads(map[string]any{"Symbol": "XYZ"}))

	got, err := rec.Attr("Symbol")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", got)
	assert.Empty(t, rec.Log())
}

func TestRecorder_ConcurrentAppends(t *testing.T) {
	rec := NewRecorder(newTicker())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := rec.Attr("Symbol")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, rec.Log(), 200)
}
