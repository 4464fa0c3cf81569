package recorder

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/zepedaj/jztools/vclock"
)

// Recorder wraps one live object reference. Every attribute read and call is
// forwarded to the wrapped object and appended to an ordered log.
//
// Thread-safety: log appends are serialized through a per-instance mutex.
// Concurrent callers may record simultaneously, but relative ordering across
// goroutines is whatever the scheduler produces. The wrapped call itself
// happens without holding the mutex, so a slow or re-entrant downstream call
// cannot deadlock the recorder.
type Recorder struct {
	mu      sync.Mutex
	wrapped any
	rv      reflect.Value
	caps    Capabilities
	clock   *vclock.Clock
	log     []Entry
	extra   Map

	// overloads are returned instead of a recorded attribute when reading
	// the named attribute; used to patch in unordered-call wrappers.
	overloads map[string]any

	iter iterState
}

type iterState struct {
	started bool
	idx     int
	keys    []reflect.Value
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock sets the time source used to stamp log entries. A nil clock
// falls back to the real UTC wall clock. Nested recorders inherit the clock.
func WithClock(c *vclock.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = c }
}

// WithOverloads installs attribute overloads: reading one of these names
// returns the given value directly, without forwarding or logging.
func WithOverloads(ov map[string]any) RecorderOption {
	return func(r *Recorder) { r.overloads = ov }
}

// WithExtraMeta attaches extra data to the recording's meta document.
func WithExtraMeta(extra Map) RecorderOption {
	return func(r *Recorder) { r.extra = extra }
}

// NewRecorder wraps a live object. The capability set is computed here,
// once, from the wrapped value.
func NewRecorder(obj any, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		wrapped: obj,
		rv:      reflect.ValueOf(obj),
		caps:    DetectCapabilities(obj),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) now() time.Time {
	if r.clock != nil {
		return r.clock.Now()
	}
	return time.Now().UTC()
}

func (r *Recorder) append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, e)
}

// Wrapped returns the live object without logging an access.
func (r *Recorder) Wrapped() any { return r.wrapped }

// Capabilities returns the capability set computed at construction.
func (r *Recorder) Capabilities() Capabilities { return r.caps }

// Log returns a snapshot of the accumulated entries without logging an
// access.
func (r *Recorder) Log() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.log))
	copy(out, r.log)
	return out
}

// Attr reads attribute name on the wrapped object: it captures the current
// instant, resolves the attribute (exported struct field first, then
// method), appends a RecordedAttribute, and returns the value. Non-native
// values - including bound methods - are returned wrapped in a fresh nested
// Recorder.
//
// Resolution errors propagate unchanged and are not logged: the log entry is
// only appended on success.
func (r *Recorder) Attr(name string) (any, error) {
	if ov, ok := r.overloads[name]; ok {
		return ov, nil
	}
	at := r.now()
	value, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	attr, ret := newRecordedAttribute(name, value, at, r.clock)
	r.append(attr)
	return ret, nil
}

func (r *Recorder) lookup(name string) (any, error) {
	if !r.rv.IsValid() {
		return nil, fmt.Errorf("cannot read attribute %q of nil", name)
	}
	elem := reflect.Indirect(r.rv)
	if elem.IsValid() && elem.Kind() == reflect.Struct {
		if f := elem.FieldByName(name); f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	}
	if m := r.rv.MethodByName(name); m.IsValid() {
		return m.Interface(), nil
	}
	return nil, fmt.Errorf("type %T has no attribute %q", r.wrapped, name)
}

// Call invokes the wrapped callable with positional arguments, appends a
// RecordedCall, and returns the actual result. The wrapped call executes
// without holding the proxy mutex. A non-nil error returned by the callable
// propagates unchanged and nothing is appended.
func (r *Recorder) Call(args ...any) (any, error) {
	return r.CallKV(args, nil)
}

// CallKV is Call with explicit keyword arguments carried in the wire model.
func (r *Recorder) CallKV(args []any, kv map[string]any) (any, error) {
	if !r.caps.Has(CanCall) {
		return nil, NewUnsupportedCapability(CallName)
	}
	argsV, err := FromGoArgs(args)
	if err != nil {
		return nil, err
	}
	kvV, err := FromGoKV(kv)
	if err != nil {
		return nil, err
	}

	at := r.now()
	result, err := callFunc(r.rv, args)
	if err != nil {
		return nil, err
	}
	return r.appendCall(CallName, argsV, kvV, result, at), nil
}

// CallMethod reads the named attribute and invokes it: the usual way to
// record a method call. Serialization collapses the resulting
// read-then-call pair into a single call entry tagged with the method name.
func (r *Recorder) CallMethod(name string, args ...any) (any, error) {
	attr, err := r.Attr(name)
	if err != nil {
		return nil, err
	}
	c, ok := attr.(Caller)
	if !ok {
		return nil, fmt.Errorf("attribute %q of %T is not callable", name, r.wrapped)
	}
	return c.Call(args...)
}

// appendCall records a call-style entry and returns the value the caller
// should observe (raw for native values, a nested Recorder otherwise).
func (r *Recorder) appendCall(name string, args []Value, kv Map, value any, at time.Time) any {
	attr, ret := newRecordedAttribute(name, value, at, r.clock)
	r.append(&RecordedCall{RecordedAttribute: *attr, Args: args, Kwargs: kv})
	return ret
}

// Bool reports the wrapped value's truthiness, logging the operation.
func (r *Recorder) Bool() (bool, error) {
	if !r.caps.Has(CanBool) {
		return false, NewUnsupportedCapability(boolName)
	}
	at := r.now()
	v := truthy(r.wrapped)
	r.appendCall(boolName, nil, nil, v, at)
	return v, nil
}

// Len reports the wrapped value's length, logging the operation.
func (r *Recorder) Len() (int, error) {
	if !r.caps.Has(CanLen) {
		return 0, NewUnsupportedCapability(lenName)
	}
	at := r.now()
	n, err := r.length()
	if err != nil {
		return 0, err
	}
	r.appendCall(lenName, nil, nil, int64(n), at)
	return n, nil
}

func (r *Recorder) length() (int, error) {
	if m := r.rv.MethodByName("Len"); m.IsValid() {
		out, err := callFunc(m, nil)
		if err != nil {
			return 0, err
		}
		n, ok := out.(int)
		if !ok {
			return 0, fmt.Errorf("Len method of %T returned %T, want int", r.wrapped, out)
		}
		return n, nil
	}
	elem := reflect.Indirect(r.rv)
	if elem.Kind() == reflect.String {
		return utf8.RuneCountInString(elem.String()), nil
	}
	return elem.Len(), nil
}

// Item reads one element of an indexable wrapped value, logging the
// operation with the key as a call argument.
func (r *Recorder) Item(key any) (any, error) {
	if !r.caps.Has(CanIndex) {
		return nil, NewUnsupportedCapability(itemName)
	}
	keyV, ok := FromGo(key)
	if !ok {
		return nil, fmt.Errorf("item key (%T) is not natively serializable", key)
	}
	at := r.now()
	value, err := r.index(key)
	if err != nil {
		return nil, err
	}
	return r.appendCall(itemName, []Value{keyV}, nil, value, at), nil
}

func (r *Recorder) index(key any) (any, error) {
	elem := reflect.Indirect(r.rv)
	switch elem.Kind() {
	case reflect.Map:
		kv := reflect.ValueOf(key)
		if !kv.Type().AssignableTo(elem.Type().Key()) {
			if !kv.Type().ConvertibleTo(elem.Type().Key()) {
				return nil, fmt.Errorf("key type %T does not index %T", key, r.wrapped)
			}
			kv = kv.Convert(elem.Type().Key())
		}
		v := elem.MapIndex(kv)
		if !v.IsValid() {
			return nil, fmt.Errorf("key %v not present in %T", key, r.wrapped)
		}
		return v.Interface(), nil
	case reflect.String:
		i, err := asInt(key)
		if err != nil {
			return nil, err
		}
		// Strings index by rune so multi-byte characters come back whole.
		runes := []rune(elem.String())
		if i < 0 || i >= len(runes) {
			return nil, fmt.Errorf("index %d out of range (len %d)", i, len(runes))
		}
		return string(runes[i]), nil
	case reflect.Slice, reflect.Array:
		i, err := asInt(key)
		if err != nil {
			return nil, err
		}
		if i < 0 || i >= elem.Len() {
			return nil, fmt.Errorf("index %d out of range (len %d)", i, elem.Len())
		}
		return elem.Index(i).Interface(), nil
	default:
		return nil, fmt.Errorf("type %T does not support item access", r.wrapped)
	}
}

func asInt(key any) (int, error) {
	switch k := key.(type) {
	case int:
		return k, nil
	case int64:
		return int(k), nil
	case Int:
		return int(k), nil
	}
	return 0, fmt.Errorf("index key must be an integer, got %T", key)
}

// Next yields the next element of an iterable wrapped value, logging each
// yielded element. Exhaustion returns ok=false and logs nothing, so a fully
// drained iteration leaves no trailing entry (playback detects the end by
// the absence of further iteration entries).
func (r *Recorder) Next() (value any, ok bool, err error) {
	if !r.caps.Has(CanIterate) {
		return nil, false, NewUnsupportedCapability(nextName)
	}
	at := r.now()
	elem, ok, err := r.advance()
	if err != nil || !ok {
		return nil, false, err
	}
	return r.appendCall(nextName, nil, nil, elem, at), true, nil
}

func (r *Recorder) advance() (any, bool, error) {
	if m := r.rv.MethodByName("Next"); m.IsValid() {
		return callNext(m, r.wrapped)
	}

	elem := reflect.Indirect(r.rv)
	switch elem.Kind() {
	case reflect.Chan:
		// Receive happens outside any lock: it may block on the producer.
		v, ok := elem.Recv()
		if !ok {
			return nil, false, nil
		}
		return v.Interface(), true, nil
	case reflect.Slice, reflect.Array, reflect.String:
		r.mu.Lock()
		i := r.iter.idx
		r.iter.idx++
		r.mu.Unlock()
		if i >= elem.Len() {
			return nil, false, nil
		}
		if elem.Kind() == reflect.String {
			return string(elem.String()[i]), true, nil
		}
		return elem.Index(i).Interface(), true, nil
	case reflect.Map:
		r.mu.Lock()
		if !r.iter.started {
			r.iter.started = true
			r.iter.keys = elem.MapKeys()
			// Deterministic order: map iteration order is randomized.
			sort.Slice(r.iter.keys, func(i, j int) bool {
				return fmt.Sprint(r.iter.keys[i].Interface()) < fmt.Sprint(r.iter.keys[j].Interface())
			})
		}
		i := r.iter.idx
		r.iter.idx++
		keys := r.iter.keys
		r.mu.Unlock()
		if i >= len(keys) {
			return nil, false, nil
		}
		return keys[i].Interface(), true, nil
	default:
		return nil, false, fmt.Errorf("type %T does not support iteration", r.wrapped)
	}
}

func callNext(m reflect.Value, wrapped any) (any, bool, error) {
	outs := m.Call(nil)
	switch len(outs) {
	case 2:
		if outs[1].Kind() != reflect.Bool {
			return nil, false, fmt.Errorf("Next method of %T must return (value, bool)", wrapped)
		}
		if !outs[1].Bool() {
			return nil, false, nil
		}
		return outs[0].Interface(), true, nil
	default:
		return nil, false, fmt.Errorf("Next method of %T must return (value, bool)", wrapped)
	}
}

// Enter forwards scoped-resource entry to the wrapped value's Enter method,
// logging the operation.
func (r *Recorder) Enter() error {
	if !r.caps.Has(CanEnterExit) {
		return NewUnsupportedCapability(enterName)
	}
	at := r.now()
	if m := r.rv.MethodByName("Enter"); m.IsValid() {
		if _, err := callFunc(m, nil); err != nil {
			return err
		}
	}
	r.appendCall(enterName, nil, nil, nil, at)
	return nil
}

// Exit forwards scoped-resource exit to the wrapped value's Exit (or Close)
// method, logging the operation.
func (r *Recorder) Exit() error {
	if !r.caps.Has(CanEnterExit) {
		return NewUnsupportedCapability(exitName)
	}
	at := r.now()
	for _, name := range []string{"Exit", "Close"} {
		if m := r.rv.MethodByName(name); m.IsValid() {
			if _, err := callFunc(m, nil); err != nil {
				return err
			}
			break
		}
	}
	r.appendCall(exitName, nil, nil, nil, at)
	return nil
}

// EnterScope implements Component. The switch's exit stack uses these hooks
// for bookkeeping only; user-visible resource management goes through
// Enter/Exit so it participates in logging.
func (r *Recorder) EnterScope() error { return nil }

// ExitScope implements Component.
func (r *Recorder) ExitScope() error { return nil }

// Invoke calls an arbitrary Go function value with loosely-typed arguments.
// Arguments are converted where assignability or convertibility allows; a
// trailing non-nil error return propagates; multiple non-error results come
// back as []any. Used by the call-wrapping variants that proxy a single
// function rather than a whole object.
func Invoke(fn any, args ...any) (any, error) {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("cannot invoke %T: not a function", fn)
	}
	return callFunc(rv, args)
}

// callFunc invokes fn with loosely-typed arguments, converting where
// assignability allows. A trailing non-nil error return propagates; multiple
// non-error results are returned as []any.
func callFunc(fn reflect.Value, args []any) (any, error) {
	ft := fn.Type()

	fixed := ft.NumIn()
	if ft.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf("call needs at least %d args, got %d", fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, fmt.Errorf("call needs %d args, got %d", fixed, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var want reflect.Type
		if i < fixed {
			want = ft.In(i)
		} else {
			want = ft.In(ft.NumIn() - 1).Elem()
		}
		v, err := coerce(a, want)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		in[i] = v
	}

	outs := fn.Call(in)

	if n := len(outs); n > 0 && ft.Out(n-1) == errType {
		if e := outs[n-1].Interface(); e != nil {
			return nil, e.(error)
		}
		outs = outs[:n-1]
	}
	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0].Interface(), nil
	default:
		res := make([]any, len(outs))
		for i, o := range outs {
			res[i] = o.Interface()
		}
		return res, nil
	}
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

func coerce(a any, want reflect.Type) (reflect.Value, error) {
	if a == nil {
		switch want.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot pass nil as %s", want)
	}
	v := reflect.ValueOf(a)
	if v.Type().AssignableTo(want) {
		return v, nil
	}
	if v.Type().ConvertibleTo(want) {
		return v.Convert(want), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", a, want)
}
