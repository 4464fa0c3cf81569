package recorder

// Caller is any proxy-like object invokable with positional arguments.
// Implemented by *Recorder, *Player, *PlayedBackCall, and the unordered and
// time-freezing recorder/player pairs, so attribute reads and overloads are
// uniformly callable on both sides of a recording.
type Caller interface {
	Call(args ...any) (any, error)
}

// Component is a managed piece of a recording switch scope. The switch
// enters every built component's scope on entry and exits it (in reverse
// order) on exit, so partially-built nested objects are always released even
// when an exception interrupts construction.
type Component interface {
	// EnterScope is invoked when the enclosing switch scope is entered.
	EnterScope() error
	// ExitScope is invoked when the enclosing switch scope exits.
	ExitScope() error
}

// Loggable is a recorded component whose accumulated log can be serialized
// when the enclosing switch commits.
type Loggable interface {
	Component
	// MarshalRecording serializes the component's log as one recording
	// document.
	MarshalRecording() ([]byte, error)
}
