package recorder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zepedaj/jztools/vclock"
)

// Wire tags for the polymorphic recording documents.
const (
	TagAttr = "rs:attr"
	TagCall = "rs:call"
	TagObj  = "rs:obj"
)

const accessTimeLayout = time.RFC3339Nano

// specialAttribsKey holds the capability name list inside the meta document.
const specialAttribsKey = "special_attribs"

type entryDoc struct {
	Type       string                     `json:"__type__"`
	Name       string                     `json:"name,omitempty"`
	Value      json.RawMessage            `json:"value"`
	AccessTime string                     `json:"access_time"`
	Args       []json.RawMessage          `json:"args,omitempty"`
	Kwargs     map[string]json.RawMessage `json:"kwargs,omitempty"`
}

type objDoc struct {
	Type       string                     `json:"__type__"`
	Recordings []json.RawMessage          `json:"recordings"`
	Meta       map[string]json.RawMessage `json:"meta"`
}

// Meta returns the extra data attached to the recording's meta document.
func (r *Recorder) Meta() Map { return r.extra }

// Meta returns the extra data carried by the recording's meta document.
func (p *Player) Meta() Map { return p.extra }

// MarshalRecording serializes the recorder's log and meta as one rs:obj
// document. Implements Loggable.
func (r *Recorder) MarshalRecording() ([]byte, error) {
	entries := r.Log()
	recs := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		raw, err := marshalEntry(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		recs[i] = raw
	}

	meta := make(map[string]json.RawMessage, len(r.extra)+1)
	names, err := json.Marshal(r.caps.Names())
	if err != nil {
		return nil, err
	}
	meta[specialAttribsKey] = names
	for _, k := range r.extra.SortedKeys() {
		raw, err := MarshalValue(r.extra[k])
		if err != nil {
			return nil, fmt.Errorf("meta[%q]: %w", k, err)
		}
		meta[k] = raw
	}

	if recs == nil {
		recs = []json.RawMessage{}
	}
	return json.Marshal(objDoc{Type: TagObj, Recordings: recs, Meta: meta})
}

// MarshalEntry serializes one log entry as a tagged document. The
// call-wrapping variants use it to embed plain call entries in their own
// document types.
func MarshalEntry(e Entry) ([]byte, error) {
	return marshalEntry(e)
}

// UnmarshalEntry decodes one tagged entry document.
func UnmarshalEntry(data []byte, clock *vclock.Clock) (PlayedEntry, error) {
	return unmarshalEntry(data, clock)
}

// nestedCall detects the collapsible pattern: an attribute holding a nested
// recording whose log is exactly one anonymous call. The common case of
// "method read then immediately called" produces this triple-nested
// structure, which serializes as a single call entry tagged with the method
// name to keep files compact.
func nestedCall(attr *RecordedAttribute) *RecordedCall {
	if attr.Nested == nil {
		return nil
	}
	log := attr.Nested.Log()
	if len(log) != 1 {
		return nil
	}
	call, ok := log[0].(*RecordedCall)
	if !ok || call.Name != CallName {
		return nil
	}
	return call
}

func marshalEntry(e Entry) (json.RawMessage, error) {
	switch x := e.(type) {
	case *RecordedAttribute:
		if call := nestedCall(x); call != nil {
			return marshalCall(call, x.Name)
		}
		value, err := marshalEntryValue(x.Value, x.Nested)
		if err != nil {
			return nil, err
		}
		return json.Marshal(entryDoc{
			Type:       TagAttr,
			Name:       x.Name,
			Value:      value,
			AccessTime: x.AccessTime.UTC().Format(accessTimeLayout),
		})
	case *RecordedCall:
		return marshalCall(x, x.Name)
	default:
		return nil, fmt.Errorf("unknown entry type: %T", e)
	}
}

func marshalCall(c *RecordedCall, name string) (json.RawMessage, error) {
	value, err := marshalEntryValue(c.Value, c.Nested)
	if err != nil {
		return nil, err
	}
	doc := entryDoc{
		Type:       TagCall,
		Value:      value,
		AccessTime: c.AccessTime.UTC().Format(accessTimeLayout),
	}
	if name != CallName {
		doc.Name = name
	}
	if len(c.Args) > 0 {
		doc.Args = make([]json.RawMessage, len(c.Args))
		for i, a := range c.Args {
			raw, err := MarshalValue(a)
			if err != nil {
				return nil, fmt.Errorf("args[%d]: %w", i, err)
			}
			doc.Args[i] = raw
		}
	}
	if len(c.Kwargs) > 0 {
		doc.Kwargs = make(map[string]json.RawMessage, len(c.Kwargs))
		for _, k := range c.Kwargs.SortedKeys() {
			raw, err := MarshalValue(c.Kwargs[k])
			if err != nil {
				return nil, fmt.Errorf("kwargs[%q]: %w", k, err)
			}
			doc.Kwargs[k] = raw
		}
	}
	return json.Marshal(doc)
}

func marshalEntryValue(v Value, nested *Recorder) (json.RawMessage, error) {
	if nested != nil {
		return nested.MarshalRecording()
	}
	if v == nil {
		v = Null{}
	}
	return MarshalValue(v)
}

// UnmarshalPlayer rebuilds a playback proxy from one rs:obj document. The
// clock is threaded into every played-back entry and nested player so value
// resolution warps time consistently across the whole object graph.
func UnmarshalPlayer(data []byte, clock *vclock.Clock, opts ...PlayerOption) (*Player, error) {
	var doc objDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Type != TagObj {
		return nil, fmt.Errorf("recording document has tag %q, want %q", doc.Type, TagObj)
	}

	entries := make([]PlayedEntry, len(doc.Recordings))
	for i, raw := range doc.Recordings {
		e, err := unmarshalEntry(raw, clock)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries[i] = e
	}

	var caps Capabilities
	extra := Map{}
	for k, raw := range doc.Meta {
		if k == specialAttribsKey {
			var names []string
			if err := json.Unmarshal(raw, &names); err != nil {
				return nil, fmt.Errorf("meta[%q]: %w", k, err)
			}
			caps = CapabilitiesFromNames(names)
			continue
		}
		v, err := UnmarshalValue(raw)
		if err != nil {
			return nil, fmt.Errorf("meta[%q]: %w", k, err)
		}
		extra[k] = v
	}

	p := NewPlayer(entries, caps, clock, opts...)
	if len(extra) > 0 {
		p.extra = extra
	}
	return p, nil
}

func unmarshalEntry(raw json.RawMessage, clock *vclock.Clock) (PlayedEntry, error) {
	var doc entryDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	at, err := time.Parse(accessTimeLayout, doc.AccessTime)
	if err != nil {
		return nil, fmt.Errorf("invalid access_time %q: %w", doc.AccessTime, err)
	}
	at = at.UTC()

	value, nested, err := unmarshalEntryValue(doc.Value, clock)
	if err != nil {
		return nil, err
	}

	switch doc.Type {
	case TagAttr:
		return &PlayedBackAttribute{
			Name:       doc.Name,
			AccessTime: at,
			value:      value,
			nested:     nested,
		}, nil
	case TagCall:
		name := doc.Name
		if name == "" {
			name = CallName
		}
		call := &PlayedBackCall{
			PlayedBackAttribute: PlayedBackAttribute{
				Name:       name,
				AccessTime: at,
				value:      value,
				nested:     nested,
			},
			clock: clock,
		}
		if len(doc.Args) > 0 {
			call.Args = make([]Value, len(doc.Args))
			for i, a := range doc.Args {
				v, err := UnmarshalValue(a)
				if err != nil {
					return nil, fmt.Errorf("args[%d]: %w", i, err)
				}
				call.Args[i] = v
			}
		}
		if len(doc.Kwargs) > 0 {
			call.Kwargs = make(Map, len(doc.Kwargs))
			for k, a := range doc.Kwargs {
				v, err := UnmarshalValue(a)
				if err != nil {
					return nil, fmt.Errorf("kwargs[%q]: %w", k, err)
				}
				call.Kwargs[k] = v
			}
		}
		return call, nil
	default:
		return nil, fmt.Errorf("unknown entry tag %q", doc.Type)
	}
}

// unmarshalEntryValue distinguishes a nested rs:obj document from a native
// value by peeking at the __type__ tag.
func unmarshalEntryValue(raw json.RawMessage, clock *vclock.Clock) (Value, *Player, error) {
	if len(raw) > 0 && raw[0] == '{' {
		var probe struct {
			Type string `json:"__type__"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil && probe.Type == TagObj {
			nested, err := UnmarshalPlayer(raw, clock)
			if err != nil {
				return nil, nil, err
			}
			return nil, nested, nil
		}
	}
	v, err := UnmarshalValue(raw)
	if err != nil {
		return nil, nil, err
	}
	return v, nil, nil
}
