// Package freezetime wraps a callable so that only the time of each call is
// recorded, not its arguments or result.
//
// At playback the wrapped function is still invoked live, but the virtual
// clock is first pinned to the recorded call time, so a time-dependent
// function re-executes under the instant it originally observed. This suits
// functions that are cheap and deterministic except for their time
// dependency, where recording full argument/result logs would be wasteful.
// No checks are made that recording and playback arguments match; optional
// call-stack comparison is available for that purpose.
package freezetime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zepedaj/jztools/recorder"
	"github.com/zepedaj/jztools/vclock"
)

// Tag is the wire tag of the freeze-call-times recording document.
const Tag = "rs:freeze_call_times_recorder"

const timeLayout = time.RFC3339Nano

// CallTimeRecord is the recorded trace of one call: the instant it happened
// and, optionally, the formatted call stack for strict replay checking.
type CallTimeRecord struct {
	Time  time.Time
	Stack []string
}

type callTimeDoc struct {
	Type  string   `json:"__type__"`
	Time  string   `json:"time"`
	Stack []string `json:"stack,omitempty"`
}

// Option configures a Recorder or Player.
type Option func(*config)

type config struct {
	clock         *vclock.Clock
	compareStacks bool
}

// WithClock sets the time source used to stamp and replay call times.
func WithClock(c *vclock.Clock) Option {
	return func(cfg *config) { cfg.clock = c }
}

// WithStackComparison records the call stack alongside each call time and
// enforces, at playback, that the replayed stack matches. Larger recording
// files, stricter correctness.
func WithStackComparison() Option {
	return func(cfg *config) { cfg.compareStacks = true }
}

// Recorder wraps a live function and records the instant of each call.
type Recorder struct {
	mu    sync.Mutex
	fn    any
	cfg   config
	calls []CallTimeRecord
}

// NewRecorder wraps fn, an arbitrary function value.
func NewRecorder(fn any, opts ...Option) *Recorder {
	r := &Recorder{fn: fn}
	for _, opt := range opts {
		opt(&r.cfg)
	}
	return r
}

func (c *config) now() time.Time {
	if c.clock != nil {
		return c.clock.Now()
	}
	return time.Now().UTC()
}

// Call invokes the live function and records the call time. A non-nil error
// from the function propagates unchanged and nothing is recorded.
func (r *Recorder) Call(args ...any) (any, error) {
	rec := CallTimeRecord{Time: r.cfg.now()}
	if r.cfg.compareStacks {
		rec.Stack = captureStack(1)
	}

	out, err := recorder.Invoke(r.fn, args...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.calls = append(r.calls, rec)
	r.mu.Unlock()
	return out, nil
}

// Calls returns a snapshot of the recorded call times.
func (r *Recorder) Calls() []CallTimeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallTimeRecord, len(r.calls))
	copy(out, r.calls)
	return out
}

// MarshalRecording serializes the recorded call times. Implements
// recorder.Loggable.
func (r *Recorder) MarshalRecording() ([]byte, error) {
	calls := r.Calls()
	docs := make([]callTimeDoc, len(calls))
	for i, c := range calls {
		docs[i] = callTimeDoc{
			Type:  "rs:call_time",
			Time:  c.Time.UTC().Format(timeLayout),
			Stack: c.Stack,
		}
	}
	return json.Marshal(struct {
		Type  string        `json:"__type__"`
		Calls []callTimeDoc `json:"calls"`
	}{Type: Tag, Calls: docs})
}

// EnterScope implements recorder.Component.
func (r *Recorder) EnterScope() error { return nil }

// ExitScope implements recorder.Component.
func (r *Recorder) ExitScope() error { return nil }

// Player replays recorded call times in order: each call pins the clock to
// the next recorded instant and then invokes the still-live function.
type Player struct {
	mu    sync.Mutex
	fn    any
	cfg   config
	calls []CallTimeRecord
}

// NewPlayer wraps fn with a drained-in-order call time list.
func NewPlayer(fn any, calls []CallTimeRecord, opts ...Option) *Player {
	p := &Player{fn: fn, calls: calls}
	for _, opt := range opts {
		opt(&p.cfg)
	}
	return p
}

// UnmarshalPlayer rebuilds a Player from one serialized recording document.
func UnmarshalPlayer(data []byte, fn any, opts ...Option) (*Player, error) {
	var doc struct {
		Type  string        `json:"__type__"`
		Calls []callTimeDoc `json:"calls"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Type != Tag {
		return nil, fmt.Errorf("recording document has tag %q, want %q", doc.Type, Tag)
	}
	calls := make([]CallTimeRecord, len(doc.Calls))
	for i, d := range doc.Calls {
		at, err := time.Parse(timeLayout, d.Time)
		if err != nil {
			return nil, fmt.Errorf("call %d: invalid time %q: %w", i, d.Time, err)
		}
		calls[i] = CallTimeRecord{Time: at.UTC(), Stack: d.Stack}
	}
	return NewPlayer(fn, calls, opts...), nil
}

// Remaining reports how many recorded call times have not been replayed.
func (p *Player) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Call pops the next recorded call time, optionally verifies the call stack,
// pins the clock to the recorded instant, and invokes the live function.
func (p *Player) Call(args ...any) (any, error) {
	p.mu.Lock()
	if len(p.calls) == 0 {
		p.mu.Unlock()
		return nil, recorder.NewNoCallRecordsLeft("freeze-call-times call")
	}
	next := p.calls[0]
	p.calls = p.calls[1:]
	p.mu.Unlock()

	if len(next.Stack) > 0 {
		replayed := captureStack(1)
		if !stacksEqual(next.Stack, replayed) {
			return nil, &StackMismatchError{Recorded: next.Stack, PlayedBack: replayed}
		}
	}

	if p.cfg.clock != nil {
		p.cfg.clock.MoveTo(next.Time, true)
	}
	return recorder.Invoke(p.fn, args...)
}

// EnterScope implements recorder.Component.
func (p *Player) EnterScope() error { return nil }

// ExitScope implements recorder.Component.
func (p *Player) ExitScope() error { return nil }
