package recorder

import (
	"reflect"
	"sort"
	"strings"
)

// Capability identifies one special operation a proxy may support.
type Capability uint8

const (
	// CanCall: the wrapped value is invokable (Call / CallKV).
	CanCall Capability = 1 << iota
	// CanBool: the wrapped value has a defined truthiness (Bool).
	CanBool
	// CanLen: the wrapped value has a length (Len).
	CanLen
	// CanIndex: the wrapped value supports item access (Item).
	CanIndex
	// CanIterate: the wrapped value supports iteration (Next).
	CanIterate
	// CanEnterExit: the wrapped value participates in scoped resource
	// management (Enter / Exit).
	CanEnterExit
)

// Capabilities is the enumerable set of special operations supported by a
// proxy. It is computed once at construction from the wrapped type - never
// decided per call - and stored in the proxy meta so playback proxies answer
// capability checks identically.
type Capabilities uint8

// Has reports whether the set contains the given capability.
func (c Capabilities) Has(cap Capability) bool {
	return c&Capabilities(cap) != 0
}

// Reserved operation names. These match the names under which special
// operations appear in the log, so a special operation participates in
// recording identically to an ordinary attribute.
const (
	CallName  = "__call__"
	boolName  = "__bool__"
	lenName   = "__len__"
	itemName  = "__getitem__"
	nextName  = "__next__"
	enterName = "__enter__"
	exitName  = "__exit__"
)

var capabilityNames = map[Capability]string{
	CanCall:      CallName,
	CanBool:      boolName,
	CanLen:       lenName,
	CanIndex:     itemName,
	CanIterate:   nextName,
	CanEnterExit: enterName,
}

// Names returns the sorted operation names in the set, as stored in meta.
func (c Capabilities) Names() []string {
	out := []string{}
	for cap, name := range capabilityNames {
		if c.Has(cap) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// String renders the set for diagnostics.
func (c Capabilities) String() string {
	names := c.Names()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// CapabilitiesFromNames rebuilds a set from its serialized name list.
// Unknown names are ignored for forward compatibility.
func CapabilitiesFromNames(names []string) Capabilities {
	byName := make(map[string]Capability, len(capabilityNames))
	for cap, name := range capabilityNames {
		byName[name] = cap
	}
	var out Capabilities
	for _, n := range names {
		if cap, ok := byName[n]; ok {
			out |= Capabilities(cap)
		}
	}
	return out
}

// DetectCapabilities introspects a wrapped value and returns its capability
// set. Performed once at proxy construction.
func DetectCapabilities(v any) Capabilities {
	if v == nil {
		return Capabilities(CanBool)
	}
	var caps Capabilities
	rv := reflect.ValueOf(v)
	rt := rv.Type()
	elem := reflect.Indirect(rv)

	kind := elem.Kind()
	if !elem.IsValid() {
		kind = reflect.Invalid
	}

	if rt.Kind() == reflect.Func {
		caps |= Capabilities(CanCall)
	}

	switch kind {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		caps |= Capabilities(CanLen | CanIterate)
	}
	switch kind {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		caps |= Capabilities(CanIndex)
	}

	// Truthiness is defined for everything except plain structs, mirroring
	// the convention that scalars, containers and references are truthy when
	// non-zero/non-empty/non-nil.
	if kind != reflect.Struct {
		caps |= Capabilities(CanBool)
	}

	if m := rt.NumMethod(); m > 0 {
		if _, ok := rt.MethodByName("Len"); ok {
			caps |= Capabilities(CanLen)
		}
		if _, ok := rt.MethodByName("Next"); ok {
			caps |= Capabilities(CanIterate)
		}
		if _, ok := rt.MethodByName("Enter"); ok {
			caps |= Capabilities(CanEnterExit)
		}
		if _, ok := rt.MethodByName("Exit"); ok {
			caps |= Capabilities(CanEnterExit)
		}
		if _, ok := rt.MethodByName("Close"); ok {
			caps |= Capabilities(CanEnterExit)
		}
	}

	return caps
}

// truthy computes the recorded value of the Bool special operation.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len() != 0
	case reflect.Ptr, reflect.Interface, reflect.Func:
		return !rv.IsNil()
	default:
		return true
	}
}
