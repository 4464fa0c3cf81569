package recorder

import (
	"fmt"
	"sync"

	"github.com/zepedaj/jztools/vclock"
)

// Player replays a recorded interaction log. It exposes the same access
// surface as Recorder, but answers every request from the log instead of a
// live object: entries are consumed strictly in recorded order (FIFO), and
// any divergence from the recorded sequence fails with a ProtocolError.
//
// An entry popped for a call whose arguments turn out not to match is pushed
// back to the front of the log, so a recovering caller observes the same
// pending entry on its next request.
type Player struct {
	mu      sync.Mutex
	entries []PlayedEntry
	caps    Capabilities
	clock   *vclock.Clock
	extra   Map

	overloads map[string]any
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithPlayerOverloads installs attribute overloads: reading one of these
// names returns the given value directly, without consuming a log entry.
func WithPlayerOverloads(ov map[string]any) PlayerOption {
	return func(p *Player) { p.overloads = ov }
}

// NewPlayer builds a playback proxy over a deserialized entry sequence. The
// capability set comes from the recording's meta, never from introspection,
// so playback answers capability checks exactly as recording did.
func NewPlayer(entries []PlayedEntry, caps Capabilities, clock *vclock.Clock, opts ...PlayerOption) *Player {
	p := &Player{entries: entries, caps: caps, clock: clock}
	for _, e := range entries {
		if c, ok := e.(*PlayedBackCall); ok && c.clock == nil {
			c.clock = clock
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Capabilities returns the recorded capability set.
func (p *Player) Capabilities() Capabilities { return p.caps }

// Remaining reports how many entries are left to replay. A test asserting
// full consumption checks Remaining() == 0 after the replayed scenario.
func (p *Player) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Player) pop(name string) (PlayedEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return nil, NewNoCallRecordsLeft(name)
	}
	e := p.entries[0]
	if e.EntryName() != name {
		return nil, NewNonMatchingRequest(name, e.EntryName())
	}
	p.entries = p.entries[1:]
	return e, nil
}

func (p *Player) pushFront(e PlayedEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append([]PlayedEntry{e}, p.entries...)
}

// Attr replays an attribute read. Call-style entries are returned as
// *PlayedBackCall without being resolved, so the caller can invoke them with
// argument checking; plain entries resolve to the recorded value (or a
// nested *Player), advancing the clock to the recorded access time.
func (p *Player) Attr(name string) (any, error) {
	if ov, ok := p.overloads[name]; ok {
		return ov, nil
	}
	e, err := p.pop(name)
	if err != nil {
		return nil, err
	}
	if c, ok := e.(*PlayedBackCall); ok {
		return c, nil
	}
	return e.(*PlayedBackAttribute).Resolve(p.clock), nil
}

// Call replays an invocation of the wrapped object as a callable.
func (p *Player) Call(args ...any) (any, error) {
	return p.CallKV(args, nil)
}

// CallKV is Call with explicit keyword arguments.
func (p *Player) CallKV(args []any, kv map[string]any) (any, error) {
	if !p.caps.Has(CanCall) {
		return nil, NewUnsupportedCapability(CallName)
	}
	return p.invokeNamed(CallName, args, kv)
}

// CallMethod replays a method call recorded via the recording proxy's
// CallMethod. Collapsed call entries are invoked directly; non-collapsed
// recordings (the method was read and then called more than once, or mixed
// with other accesses) resolve to a nested Player that is then called.
func (p *Player) CallMethod(name string, args ...any) (any, error) {
	if ov, ok := p.overloads[name]; ok {
		if c, isCaller := ov.(Caller); isCaller {
			return c.Call(args...)
		}
		return nil, fmt.Errorf("overload %q is not callable", name)
	}
	e, err := p.pop(name)
	if err != nil {
		return nil, err
	}
	if c, ok := e.(*PlayedBackCall); ok {
		out, err := c.InvokeKV(args, nil)
		if err != nil {
			if IsNonMatchingCallArgs(err) {
				p.pushFront(e)
			}
			return nil, err
		}
		return out, nil
	}
	res := e.(*PlayedBackAttribute).Resolve(p.clock)
	nested, ok := res.(*Player)
	if !ok {
		return nil, fmt.Errorf("recorded attribute %q is not callable", name)
	}
	return nested.Call(args...)
}

func (p *Player) invokeNamed(name string, args []any, kv map[string]any) (any, error) {
	e, err := p.pop(name)
	if err != nil {
		return nil, err
	}
	c, ok := e.(*PlayedBackCall)
	if !ok {
		p.pushFront(e)
		return nil, fmt.Errorf("recorded entry %q is not a call entry", name)
	}
	out, err := c.InvokeKV(args, kv)
	if err != nil {
		if IsNonMatchingCallArgs(err) {
			p.pushFront(e)
		}
		return nil, err
	}
	return out, nil
}

// Bool replays a truthiness check.
func (p *Player) Bool() (bool, error) {
	if !p.caps.Has(CanBool) {
		return false, NewUnsupportedCapability(boolName)
	}
	out, err := p.invokeNamed(boolName, nil, nil)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("recorded truthiness has type %T, want bool", out)
	}
	return b, nil
}

// Len replays a length query.
func (p *Player) Len() (int, error) {
	if !p.caps.Has(CanLen) {
		return 0, NewUnsupportedCapability(lenName)
	}
	out, err := p.invokeNamed(lenName, nil, nil)
	if err != nil {
		return 0, err
	}
	n, ok := out.(int64)
	if !ok {
		return 0, fmt.Errorf("recorded length has type %T, want int64", out)
	}
	return int(n), nil
}

// Item replays an item access. The key is checked against the recorded key.
func (p *Player) Item(key any) (any, error) {
	if !p.caps.Has(CanIndex) {
		return nil, NewUnsupportedCapability(itemName)
	}
	return p.invokeNamed(itemName, []any{key}, nil)
}

// Next replays one iteration step. Exhaustion of the recorded iteration
// (the next entry is not an iteration entry, or the log is empty) yields
// ok=false without error, mirroring the recorder's behavior of logging no
// trailing entry for an exhausted iterator.
func (p *Player) Next() (value any, ok bool, err error) {
	if !p.caps.Has(CanIterate) {
		return nil, false, NewUnsupportedCapability(nextName)
	}
	out, err := p.invokeNamed(nextName, nil, nil)
	if err != nil {
		if IsNoCallRecordsLeft(err) || IsNonMatchingRequest(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return out, true, nil
}

// Enter replays scoped-resource entry.
func (p *Player) Enter() error {
	if !p.caps.Has(CanEnterExit) {
		return NewUnsupportedCapability(enterName)
	}
	_, err := p.invokeNamed(enterName, nil, nil)
	return err
}

// Exit replays scoped-resource exit.
func (p *Player) Exit() error {
	if !p.caps.Has(CanEnterExit) {
		return NewUnsupportedCapability(exitName)
	}
	_, err := p.invokeNamed(exitName, nil, nil)
	return err
}

// EnterScope implements Component.
func (p *Player) EnterScope() error { return nil }

// ExitScope implements Component.
func (p *Player) ExitScope() error { return nil }
