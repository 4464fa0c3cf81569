// Package factory defines the build strategies that a recording switch uses
// to produce live, recorded, or played-back objects.
//
// A Factory knows how to build its managed object three ways: live (no
// recording involvement), recorded (live object wrapped in logging proxies),
// and played back (proxies reconstructed from serialized component logs).
// The switch stays agnostic of what is being managed; specialized factories
// cover fixed-value replication, unordered call matching, and call-time
// freezing.
package factory

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/zepedaj/jztools/freezetime"
	"github.com/zepedaj/jztools/recorder"
	"github.com/zepedaj/jztools/unordered"
	"github.com/zepedaj/jztools/vclock"
)

// Constructor builds the managed live object. It is only invoked when a live
// object is actually required (force-live, or recording a missing file).
type Constructor func() (any, error)

// Factory is the build strategy for one managed object.
type Factory interface {
	// BuildLive returns the actual object with no recording involvement.
	BuildLive() (any, error)

	// BuildRecorded returns the managed object wrapped for recording, plus
	// every loggable component whose log the switch must serialize.
	BuildRecorded(clock *vclock.Clock) (any, []recorder.Loggable, error)

	// BuildPlayedBack rebuilds the managed object from the serialized
	// component documents produced by BuildRecorded's loggables, in order.
	BuildPlayedBack(docs []json.RawMessage, clock *vclock.Clock) (any, []recorder.Component, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[reflect.Type]func(Constructor) Factory{}
)

// Register installs a factory builder for constructors whose declared result
// type is objType. Resolve consults the registry before falling back to the
// generic Default factory. Later registrations overwrite earlier ones.
func Register(objType reflect.Type, build func(Constructor) Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[objType] = build
}

// Lookup returns the registered builder for objType, if any.
func Lookup(objType reflect.Type) (func(Constructor) Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[objType]
	return b, ok
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Resolve turns a loosely-typed factory spec into a Factory: an existing
// Factory passes through; a nullary constructor function (optionally with a
// trailing error result) is matched against the registry by its declared
// result type and otherwise handled by Default.
func Resolve(spec any) (Factory, error) {
	switch s := spec.(type) {
	case Factory:
		return s, nil
	case Constructor:
		return fromConstructor(s, nil), nil
	case func() (any, error):
		return fromConstructor(s, nil), nil
	case func() any:
		return fromConstructor(func() (any, error) { return s(), nil }, nil), nil
	}

	rv := reflect.ValueOf(spec)
	rt := rv.Type()
	if rt.Kind() != reflect.Func || rt.NumIn() != 0 ||
		rt.NumOut() < 1 || rt.NumOut() > 2 ||
		(rt.NumOut() == 2 && rt.Out(1) != errorType) {
		return nil, fmt.Errorf("cannot build a factory from %T", spec)
	}
	ctor := func() (any, error) {
		outs := rv.Call(nil)
		if len(outs) == 2 {
			if e := outs[1].Interface(); e != nil {
				return nil, e.(error)
			}
		}
		return outs[0].Interface(), nil
	}
	return fromConstructor(ctor, rt.Out(0)), nil
}

func fromConstructor(ctor Constructor, objType reflect.Type) Factory {
	if objType != nil {
		if build, ok := Lookup(objType); ok {
			return build(ctor)
		}
	}
	return &Default{Ctor: ctor}
}

// Default proxies the whole managed object generically: one recording proxy
// around the live object, one playback proxy from its single component log.
type Default struct {
	Ctor Constructor
}

// NewDefault wraps a constructor in the generic proxying strategy.
func NewDefault(ctor Constructor) *Default { return &Default{Ctor: ctor} }

func (f *Default) BuildLive() (any, error) { return f.Ctor() }

func (f *Default) BuildRecorded(clock *vclock.Clock) (any, []recorder.Loggable, error) {
	obj, err := f.Ctor()
	if err != nil {
		return nil, nil, err
	}
	rec := recorder.NewRecorder(obj, recorder.WithClock(clock))
	return rec, []recorder.Loggable{rec}, nil
}

func (f *Default) BuildPlayedBack(docs []json.RawMessage, clock *vclock.Clock) (any, []recorder.Component, error) {
	if len(docs) != 1 {
		return nil, nil, fmt.Errorf("expected 1 component document, got %d", len(docs))
	}
	p, err := recorder.UnmarshalPlayer(docs[0], clock)
	if err != nil {
		return nil, nil, err
	}
	return p, []recorder.Component{p}, nil
}

// valueHolder carries a replicated value behind a method so that the read
// participates in recording like any other access.
type valueHolder struct {
	v any
}

func (h *valueHolder) Get() any { return h.v }

// Replicate stores a fixed value in the recording and returns the stored
// copy at playback. Useful to verify that a computed value has not drifted
// from the one recorded earlier. The value must be natively serializable.
type Replicate struct {
	Value any
}

// NewReplicate builds a value-replication factory.
func NewReplicate(value any) *Replicate { return &Replicate{Value: value} }

func (f *Replicate) BuildLive() (any, error) { return f.Value, nil }

func (f *Replicate) BuildRecorded(clock *vclock.Clock) (any, []recorder.Loggable, error) {
	if _, ok := recorder.FromGo(f.Value); !ok {
		return nil, nil, fmt.Errorf("replicated value (%T) is not natively serializable", f.Value)
	}
	rec := recorder.NewRecorder(&valueHolder{v: f.Value}, recorder.WithClock(clock))
	got, err := rec.CallMethod("Get")
	if err != nil {
		return nil, nil, err
	}
	return got, []recorder.Loggable{rec}, nil
}

func (f *Replicate) BuildPlayedBack(docs []json.RawMessage, clock *vclock.Clock) (any, []recorder.Component, error) {
	if len(docs) != 1 {
		return nil, nil, fmt.Errorf("expected 1 component document, got %d", len(docs))
	}
	p, err := recorder.UnmarshalPlayer(docs[0], clock)
	if err != nil {
		return nil, nil, err
	}
	got, err := p.CallMethod("Get")
	if err != nil {
		return nil, nil, err
	}
	return got, []recorder.Component{p}, nil
}

// UnorderedCalls wraps a single function with argument-keyed call matching
// instead of strict FIFO replay.
type UnorderedCalls struct {
	Fn     any
	Hasher unordered.ArgHasher
}

// NewUnorderedCalls builds an unordered-call factory for fn. A nil hasher
// defaults to unordered.GeneralHasher.
func NewUnorderedCalls(fn any, hasher unordered.ArgHasher) *UnorderedCalls {
	return &UnorderedCalls{Fn: fn, Hasher: hasher}
}

func (f *UnorderedCalls) BuildLive() (any, error) { return f.Fn, nil }

func (f *UnorderedCalls) BuildRecorded(clock *vclock.Clock) (any, []recorder.Loggable, error) {
	rec := unordered.NewRecorder(f.Fn, unordered.WithClock(clock))
	return rec, []recorder.Loggable{rec}, nil
}

func (f *UnorderedCalls) BuildPlayedBack(docs []json.RawMessage, clock *vclock.Clock) (any, []recorder.Component, error) {
	if len(docs) != 1 {
		return nil, nil, fmt.Errorf("expected 1 component document, got %d", len(docs))
	}
	p, err := unordered.UnmarshalPlayer(docs[0], f.Hasher, clock)
	if err != nil {
		return nil, nil, err
	}
	return p, []recorder.Component{p}, nil
}

// FreezeCallTimes wraps a function so that only call times are recorded; at
// playback the clock is pinned to each recorded instant and the still-live
// function is invoked.
type FreezeCallTimes struct {
	Fn            any
	CompareStacks bool
}

// NewFreezeCallTimes builds a call-time-freezing factory for fn.
func NewFreezeCallTimes(fn any, compareStacks bool) *FreezeCallTimes {
	return &FreezeCallTimes{Fn: fn, CompareStacks: compareStacks}
}

func (f *FreezeCallTimes) options(clock *vclock.Clock) []freezetime.Option {
	opts := []freezetime.Option{freezetime.WithClock(clock)}
	if f.CompareStacks {
		opts = append(opts, freezetime.WithStackComparison())
	}
	return opts
}

func (f *FreezeCallTimes) BuildLive() (any, error) { return f.Fn, nil }

func (f *FreezeCallTimes) BuildRecorded(clock *vclock.Clock) (any, []recorder.Loggable, error) {
	rec := freezetime.NewRecorder(f.Fn, f.options(clock)...)
	return rec, []recorder.Loggable{rec}, nil
}

func (f *FreezeCallTimes) BuildPlayedBack(docs []json.RawMessage, clock *vclock.Clock) (any, []recorder.Component, error) {
	if len(docs) != 1 {
		return nil, nil, fmt.Errorf("expected 1 component document, got %d", len(docs))
	}
	p, err := freezetime.UnmarshalPlayer(docs[0], f.Fn, f.options(clock)...)
	if err != nil {
		return nil, nil, err
	}
	return p, []recorder.Component{p}, nil
}

// UnorderedMethods proxies a whole object but routes the named methods
// through unordered-call wrappers, for methods invoked from worker pools
// whose scheduling varies between recording and playback.
type UnorderedMethods struct {
	Ctor    Constructor
	Methods []string
	Hasher  unordered.ArgHasher
}

// NewUnorderedMethods builds the mixed strategy: generic proxying for the
// object, unordered matching for the named methods.
func NewUnorderedMethods(ctor Constructor, methods []string, hasher unordered.ArgHasher) *UnorderedMethods {
	return &UnorderedMethods{Ctor: ctor, Methods: methods, Hasher: hasher}
}

func (f *UnorderedMethods) BuildLive() (any, error) { return f.Ctor() }

func (f *UnorderedMethods) BuildRecorded(clock *vclock.Clock) (any, []recorder.Loggable, error) {
	obj, err := f.Ctor()
	if err != nil {
		return nil, nil, err
	}

	overloads := make(map[string]any, len(f.Methods))
	loggables := make([]recorder.Loggable, 0, len(f.Methods)+1)
	rv := reflect.ValueOf(obj)
	for _, name := range f.Methods {
		m := rv.MethodByName(name)
		if !m.IsValid() {
			return nil, nil, fmt.Errorf("type %T has no method %q", obj, name)
		}
		u := unordered.NewRecorder(m.Interface(), unordered.WithClock(clock))
		overloads[name] = u
		loggables = append(loggables, u)
	}

	rec := recorder.NewRecorder(obj, recorder.WithClock(clock), recorder.WithOverloads(overloads))
	return rec, append([]recorder.Loggable{rec}, loggables...), nil
}

func (f *UnorderedMethods) BuildPlayedBack(docs []json.RawMessage, clock *vclock.Clock) (any, []recorder.Component, error) {
	if len(docs) != len(f.Methods)+1 {
		return nil, nil, fmt.Errorf("expected %d component documents, got %d", len(f.Methods)+1, len(docs))
	}

	overloads := make(map[string]any, len(f.Methods))
	components := make([]recorder.Component, 0, len(f.Methods)+1)
	for i, name := range f.Methods {
		u, err := unordered.UnmarshalPlayer(docs[i+1], f.Hasher, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("method %q: %w", name, err)
		}
		overloads[name] = u
		components = append(components, u)
	}

	p, err := recorder.UnmarshalPlayer(docs[0], clock, recorder.WithPlayerOverloads(overloads))
	if err != nil {
		return nil, nil, err
	}
	return p, append([]recorder.Component{p}, components...), nil
}
