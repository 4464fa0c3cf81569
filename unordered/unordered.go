// Package unordered wraps a single function with record/replay matching
// keyed on argument fingerprints rather than call order.
//
// The ordered proxy in the recorder package replays entries strictly FIFO,
// which breaks down when the code under test issues calls from a worker pool
// whose scheduling differs between recording and playback. The unordered
// variant instead buckets recorded calls by an argument hash: playback pops
// the most recent entry whose arguments hash identically (LIFO within the
// bucket), so any interleaving of the same call multiset replays cleanly.
package unordered

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zepedaj/jztools/recorder"
	"github.com/zepedaj/jztools/vclock"
)

// Wire tag for the unordered-call recording document.
const Tag = "rs:unordered_calls"

// ArgHasher maps a call's arguments to a bucket key. Two calls land in the
// same bucket exactly when their keys are equal.
type ArgHasher func(args []recorder.Value, kwargs recorder.Map) (string, error)

// GeneralHasher buckets on the full argument list and the sorted keyword
// set. The default.
func GeneralHasher(args []recorder.Value, kwargs recorder.Map) (string, error) {
	return recorder.ArgsFingerprint(args, kwargs)
}

// MethodHasher drops the first positional argument before hashing, for
// wrapped methods whose first argument is the receiver (or another value
// that differs between recording and playback, such as a connection handle).
func MethodHasher(args []recorder.Value, kwargs recorder.Map) (string, error) {
	if len(args) > 0 {
		args = args[1:]
	}
	return recorder.ArgsFingerprint(args, kwargs)
}

// Recorder wraps a live function: each call is forwarded and its
// (args, kwargs, result, time) tuple appended to a flat call list. The live
// call happens without holding the lock, so concurrent callers keep their
// parallelism; only the append is serialized.
type Recorder struct {
	mu    sync.Mutex
	fn    any
	clock *vclock.Clock
	calls []*recorder.RecordedCall
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock sets the time source used to stamp recorded calls.
func WithClock(c *vclock.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = c }
}

// NewRecorder wraps fn, which must be a function value whose arguments and
// results are natively serializable.
func NewRecorder(fn any, opts ...RecorderOption) *Recorder {
	r := &Recorder{fn: fn}
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

// Call forwards to the live function and records the call. The result must
// be natively serializable; a non-nil error from the function propagates
// unchanged and nothing is recorded.
func (r *Recorder) Call(args ...any) (any, error) {
	return r.CallKV(args, nil)
}

// CallKV is Call with explicit keyword arguments.
func (r *Recorder) CallKV(args []any, kv map[string]any) (any, error) {
	argsV, err := recorder.FromGoArgs(args)
	if err != nil {
		return nil, err
	}
	kvV, err := recorder.FromGoKV(kv)
	if err != nil {
		return nil, err
	}

	at := r.now()
	out, err := recorder.Invoke(r.fn, args...)
	if err != nil {
		return nil, err
	}
	value, ok := recorder.FromGo(out)
	if !ok {
		return nil, fmt.Errorf("unordered call result (%T) is not natively serializable", out)
	}

	r.mu.Lock()
	r.calls = append(r.calls, &recorder.RecordedCall{
		RecordedAttribute: recorder.RecordedAttribute{
			Name:       recorder.CallName,
			Value:      value,
			AccessTime: at,
		},
		Args:   argsV,
		Kwargs: kvV,
	})
	r.mu.Unlock()
	return out, nil
}

// Calls returns a snapshot of the recorded call list.
func (r *Recorder) Calls() []*recorder.RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*recorder.RecordedCall, len(r.calls))
	copy(out, r.calls)
	return out
}

type unorderedDoc struct {
	Type  string            `json:"__type__"`
	Calls []json.RawMessage `json:"calls"`
}

// MarshalRecording serializes the call list as one rs:unordered_calls
// document. Implements recorder.Loggable.
func (r *Recorder) MarshalRecording() ([]byte, error) {
	calls := r.Calls()
	raw := make([]json.RawMessage, len(calls))
	for i, c := range calls {
		b, err := recorder.MarshalEntry(c)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		raw[i] = b
	}
	if raw == nil {
		raw = []json.RawMessage{}
	}
	return json.Marshal(unorderedDoc{Type: Tag, Calls: raw})
}

// EnterScope implements recorder.Component.
func (r *Recorder) EnterScope() error { return nil }

// ExitScope implements recorder.Component.
func (r *Recorder) ExitScope() error { return nil }

// Player replays recorded calls by argument fingerprint: calls are grouped
// into buckets keyed by the hasher, and each replayed call pops the most
// recently recorded entry of its bucket.
type Player struct {
	mu      sync.Mutex
	hasher  ArgHasher
	clock   *vclock.Clock
	buckets map[string][]*recorder.PlayedBackCall
}

// NewPlayer groups deserialized calls into hash buckets. A nil hasher
// defaults to GeneralHasher.
func NewPlayer(calls []*recorder.PlayedBackCall, hasher ArgHasher, clock *vclock.Clock) (*Player, error) {
	if hasher == nil {
		hasher = GeneralHasher
	}
	p := &Player{
		hasher:  hasher,
		clock:   clock,
		buckets: make(map[string][]*recorder.PlayedBackCall),
	}
	for i, c := range calls {
		key, err := hasher(c.Args, c.Kwargs)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		p.buckets[key] = append(p.buckets[key], c)
	}
	return p, nil
}

// UnmarshalPlayer rebuilds a Player from one rs:unordered_calls document.
func UnmarshalPlayer(data []byte, hasher ArgHasher, clock *vclock.Clock) (*Player, error) {
	var doc unorderedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Type != Tag {
		return nil, fmt.Errorf("recording document has tag %q, want %q", doc.Type, Tag)
	}
	calls := make([]*recorder.PlayedBackCall, len(doc.Calls))
	for i, raw := range doc.Calls {
		e, err := recorder.UnmarshalEntry(raw, clock)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		c, ok := e.(*recorder.PlayedBackCall)
		if !ok {
			return nil, fmt.Errorf("call %d: entry is not a call document", i)
		}
		calls[i] = c
	}
	return NewPlayer(calls, hasher, clock)
}

// Call replays a recorded call whose arguments hash to the same bucket. The
// recorded value is returned without a positional argument re-check: bucket
// membership is the matching criterion, which is what lets MethodHasher
// ignore the receiver argument.
func (p *Player) Call(args ...any) (any, error) {
	return p.CallKV(args, nil)
}

// CallKV is Call with explicit keyword arguments.
func (p *Player) CallKV(args []any, kv map[string]any) (any, error) {
	argsV, err := recorder.FromGoArgs(args)
	if err != nil {
		return nil, err
	}
	kvV, err := recorder.FromGoKV(kv)
	if err != nil {
		return nil, err
	}
	key, err := p.hasher(argsV, kvV)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	bucket, ok := p.buckets[key]
	if !ok || len(bucket) == 0 {
		p.mu.Unlock()
		return nil, recorder.NewNoCallEntryForArgs(fmt.Sprintf("args=%v kwargs=%v", args, kv))
	}
	entry := bucket[len(bucket)-1]
	bucket = bucket[:len(bucket)-1]
	if len(bucket) == 0 {
		delete(p.buckets, key)
	} else {
		p.buckets[key] = bucket
	}
	p.mu.Unlock()

	return entry.Resolve(p.clock), nil
}

// Remaining reports how many recorded calls have not yet been replayed.
func (p *Player) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.buckets {
		n += len(b)
	}
	return n
}

// EnterScope implements recorder.Component.
func (p *Player) EnterScope() error { return nil }

// ExitScope implements recorder.Component.
func (p *Player) ExitScope() error { return nil }
