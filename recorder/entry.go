package recorder

import (
	"time"

	"github.com/zepedaj/jztools/vclock"
)

// Entry is one recorded interaction: an attribute read or a call. Only
// *RecordedAttribute and *RecordedCall implement it.
type Entry interface {
	EntryName() string
	EntryTime() time.Time
	entry() // Sealed
}

// RecordedAttribute represents one attribute read on the recorded object.
// Created at the moment the recording proxy intercepts the read; immutable
// thereafter; owned by the recording proxy's append-only log.
//
// Exactly one of Value and Nested is set: Value holds a natively
// serializable result, Nested holds the recording proxy wrapped around a
// non-native result (nested object graphs are lazily proxied on first
// access, not eagerly at construction).
type RecordedAttribute struct {
	Name       string
	Value      Value
	Nested     *Recorder
	AccessTime time.Time
}

func (a *RecordedAttribute) EntryName() string    { return a.Name }
func (a *RecordedAttribute) EntryTime() time.Time { return a.AccessTime }
func (a *RecordedAttribute) entry()               {}

// RecordedCall represents a single invocation of the wrapped object as a
// callable. Its name defaults to the reserved call marker; serialization may
// retag it with a method name when collapsing a method-read-then-call pair.
type RecordedCall struct {
	RecordedAttribute
	Args   []Value
	Kwargs Map
}

// newRecordedAttribute wraps non-native values in a fresh nested Recorder.
func newRecordedAttribute(name string, value any, at time.Time, clock *vclock.Clock) (*RecordedAttribute, any) {
	if v, ok := FromGo(value); ok {
		return &RecordedAttribute{Name: name, Value: v, AccessTime: at}, value
	}
	nested := NewRecorder(value, WithClock(clock))
	return &RecordedAttribute{Name: name, Nested: nested, AccessTime: at}, nested
}

// PlayedEntry is the read-only, deserialized counterpart of an Entry. Only
// *PlayedBackAttribute and *PlayedBackCall implement it.
type PlayedEntry interface {
	EntryName() string
	EntryTime() time.Time
	playedEntry() // Sealed
}

// PlayedBackAttribute is the deserialized counterpart of RecordedAttribute.
type PlayedBackAttribute struct {
	Name       string
	AccessTime time.Time

	value  Value
	nested *Player
}

func (a *PlayedBackAttribute) EntryName() string    { return a.Name }
func (a *PlayedBackAttribute) EntryTime() time.Time { return a.AccessTime }
func (a *PlayedBackAttribute) playedEntry()         {}

// Resolve returns the recorded value (a plain Go value, or a nested *Player
// for non-native results), advancing the clock monotonically to the entry's
// access time as a side effect - modeling the time that passed during the
// recorded interaction. A nil clock skips the time warp.
func (a *PlayedBackAttribute) Resolve(clock *vclock.Clock) any {
	if clock != nil {
		clock.MoveTo(a.AccessTime, true)
	}
	if a.nested != nil {
		return a.nested
	}
	return ToGo(a.value)
}

// PlayedBackCall is the deserialized counterpart of RecordedCall: an
// invokable object whose invocation is argument-checked against the
// recording.
type PlayedBackCall struct {
	PlayedBackAttribute
	Args   []Value
	Kwargs Map

	clock *vclock.Clock
}

// Invoke replays the recorded call. It fails with a NON_MATCHING_CALL_ARGS
// protocol error if args/kv do not equal the recorded arguments; otherwise
// it returns the recorded return value, advancing the clock.
func (c *PlayedBackCall) Invoke(args ...any) (any, error) {
	return c.InvokeKV(args, nil)
}

// Call implements Caller. An attribute read that resolved to a callable
// proxy while recording resolves to this entry at playback; both satisfy
// Caller, so the attr-then-call idiom runs the identical code path on either
// side.
func (c *PlayedBackCall) Call(args ...any) (any, error) {
	return c.InvokeKV(args, nil)
}

// CallKV is Call with explicit keyword arguments.
func (c *PlayedBackCall) CallKV(args []any, kv map[string]any) (any, error) {
	return c.InvokeKV(args, kv)
}

// InvokeKV is Invoke with explicit keyword arguments.
func (c *PlayedBackCall) InvokeKV(args []any, kv map[string]any) (any, error) {
	gotArgs, err := FromGoArgs(args)
	if err != nil {
		return nil, err
	}
	gotKV, err := FromGoKV(kv)
	if err != nil {
		return nil, err
	}
	if !c.matches(gotArgs, gotKV) {
		return nil, NewNonMatchingCallArgs(c.Name)
	}
	return c.Resolve(c.clock), nil
}

func (c *PlayedBackCall) matches(args []Value, kv Map) bool {
	return ValuesEqual(argsValue(args, kv), argsValue(c.Args, c.Kwargs))
}

func argsValue(args []Value, kv Map) Value {
	if kv == nil {
		kv = Map{}
	}
	return Map{"args": List(args), "kwargs": kv}
}
