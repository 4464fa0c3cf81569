// Package recswitch provides the recording switch: a scoped gate that hands
// the code under test live, recorded, or played-back objects depending on
// the recording mode.
//
// A test asks the switch for its collaborators, supplying factories. In
// recording modes the factories build live objects wrapped in logging
// proxies and the switch serializes the accumulated logs to a recording
// file on exit. In playback mode the switch loads the file, rebuilds
// playback proxies from it, and pins the virtual clock to the recorded
// start time so the replayed run observes the same passage of time.
// Recording files are plain JSON committed next to the tests that own them.
package recswitch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zepedaj/jztools/recorder"
	"github.com/zepedaj/jztools/recorder/factory"
	"github.com/zepedaj/jztools/rentemp"
	"github.com/zepedaj/jztools/vclock"
)

const startTimeLayout = time.RFC3339Nano

// RecordingFileNotFoundError reports a playback attempt with no recording
// file, including how to create one.
type RecordingFileNotFoundError struct {
	Path   string
	EnvVar string
}

func (e *RecordingFileNotFoundError) Error() string {
	return fmt.Sprintf("no recording file %q; create one by running with %s=RECORD", e.Path, e.EnvVar)
}

func (e *RecordingFileNotFoundError) Unwrap() error { return os.ErrNotExist }

// Serializer encodes and decodes the recording file document. The component
// logs inside it are always JSON (the components serialize themselves); the
// serializer covers the enclosing document.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type fileDoc struct {
	Version   int                 `json:"version"`
	StartTime string              `json:"start_time"`
	Data      [][]json.RawMessage `json:"data"`
}

// Switch is the per-scope recording gate. Not safe for concurrent use; one
// switch belongs to one test scope.
type Switch struct {
	factories []factory.Factory

	mode    Mode
	modeSet bool
	envVar  string
	path    string
	root    string
	suffix  string
	skip    int

	clock    *vclock.Clock
	warpTime bool
	confirm  Confirmer
	ser      Serializer

	entered   bool
	effective Mode
	startTime time.Time
	recorded  [][]recorder.Loggable
	loaded    [][]json.RawMessage
	exitStack []recorder.Component
	engaged   bool
}

// Option configures a Switch.
type Option func(*Switch)

// WithMode fixes the recording mode, bypassing the environment variable.
func WithMode(m Mode) Option {
	return func(s *Switch) { s.mode = m; s.modeSet = true }
}

// WithEnvVar names the environment variable consulted for the mode.
func WithEnvVar(name string) Option {
	return func(s *Switch) { s.envVar = name }
}

// WithPath fixes the recording file path, bypassing the caller-derived
// convention.
func WithPath(path string) Option {
	return func(s *Switch) { s.path = path }
}

// WithRoot overrides the directory holding conventionally-named recordings.
func WithRoot(dir string) Option {
	return func(s *Switch) { s.root = dir }
}

// WithSuffix appends a suffix to the conventional file name, for functions
// holding more than one switch.
func WithSuffix(suffix string) Option {
	return func(s *Switch) { s.suffix = suffix }
}

// WithClock injects the virtual clock shared with the code under test.
func WithClock(c *vclock.Clock) Option {
	return func(s *Switch) { s.clock = c }
}

// WithoutTimeWarp disables pinning the clock to the recorded start time
// during playback.
func WithoutTimeWarp() Option {
	return func(s *Switch) { s.warpTime = false }
}

// WithConfirmer injects the OVERWRITE confirmation prompt.
func WithConfirmer(c Confirmer) Option {
	return func(s *Switch) { s.confirm = c }
}

// WithSerializer replaces the recording file codec.
func WithSerializer(ser Serializer) Option {
	return func(s *Switch) { s.ser = ser }
}

// WithCallerSkip derives the conventional path from a frame higher up the
// stack, for helpers that wrap New.
func WithCallerSkip(n int) Option {
	return func(s *Switch) { s.skip = n }
}

// New builds a switch over the given factory specs (see factory.Resolve for
// accepted forms). Unless overridden, the mode comes from the REC_MODE
// environment variable and the file path from the calling source location.
func New(specs []any, opts ...Option) (*Switch, error) {
	s := &Switch{
		envVar:   DefaultEnvVar,
		warpTime: true,
		ser:      jsonSerializer{},
		clock:    vclock.New(),
		skip:     1,
	}
	for _, opt := range opts {
		opt(s)
	}

	for i, spec := range specs {
		f, err := factory.Resolve(spec)
		if err != nil {
			return nil, fmt.Errorf("factory %d: %w", i, err)
		}
		s.factories = append(s.factories, f)
	}

	if !s.modeSet {
		mode, err := ModeFromEnv(s.envVar, s.confirm)
		if err != nil {
			return nil, err
		}
		s.mode = mode
	}
	if s.path == "" {
		path, err := defaultPath(s.skip, s.root, s.suffix)
		if err != nil {
			return nil, err
		}
		s.path = path
	}
	return s, nil
}

// Mode returns the user-selected recording mode.
func (s *Switch) Mode() Mode { return s.mode }

// Path returns the recording file path.
func (s *Switch) Path() string { return s.path }

// Clock returns the switch's virtual clock.
func (s *Switch) Clock() *vclock.Clock { return s.clock }

// EffectiveMode maps the user-selected mode to the three behaviors a scope
// actually has: RECORD records only when the file is missing and replays
// otherwise; LIVE replays (its liveness only affects test skipping).
func (s *Switch) EffectiveMode() Mode {
	switch s.mode {
	case Record:
		if _, err := os.Stat(s.path); err == nil {
			return Playback
		}
		return Overwrite
	case Live:
		return Playback
	default:
		return s.mode
	}
}

// Enter opens the scope and builds one object per factory, in order. In
// playback mode it additionally engages the clock and rewinds it to the
// recorded start time (unless time warping is disabled). On error the scope
// is already unwound; Exit must not be called.
func (s *Switch) Enter() ([]any, error) {
	if s.entered {
		return nil, errors.New("recording switch scope is already entered")
	}
	s.entered = true
	s.effective = s.EffectiveMode()

	if s.effective == Overwrite {
		s.startTime = s.now()
	}

	objs, err := s.enterFactories(s.factories, 0)
	if err == nil && s.effective == Playback && s.warpTime && s.clock != nil {
		if err = s.clock.Engage(); err == nil {
			s.engaged = true
			s.clock.MoveTo(s.startTime, false)
		}
	}
	if err != nil {
		s.unwind()
		return nil, err
	}
	return objs, nil
}

// Enter1 is Enter for switches managing exactly one factory.
func (s *Switch) Enter1() (any, error) {
	if len(s.factories) != 1 {
		return nil, fmt.Errorf("Enter1 requires exactly 1 factory, have %d", len(s.factories))
	}
	objs, err := s.Enter()
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

// ExtendEnter appends factories to an already-entered scope and builds their
// objects. At playback the recording file must contain component groups for
// them, which requires the recording run to have extended identically.
func (s *Switch) ExtendEnter(specs ...any) ([]any, error) {
	if !s.entered {
		return nil, errors.New("the scope must be entered before calling ExtendEnter")
	}
	var added []factory.Factory
	for i, spec := range specs {
		f, err := factory.Resolve(spec)
		if err != nil {
			return nil, fmt.Errorf("factory %d: %w", i, err)
		}
		added = append(added, f)
	}
	start := len(s.factories)
	s.factories = append(s.factories, added...)
	return s.enterFactories(added, start)
}

// ExtendEnter1 is ExtendEnter for a single factory spec.
func (s *Switch) ExtendEnter1(spec any) (any, error) {
	objs, err := s.ExtendEnter(spec)
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

func (s *Switch) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}

func (s *Switch) enterFactories(fs []factory.Factory, loadStart int) ([]any, error) {
	switch s.effective {
	case ForceLive:
		objs := make([]any, len(fs))
		for i, f := range fs {
			obj, err := f.BuildLive()
			if err != nil {
				return nil, fmt.Errorf("factory %d: %w", loadStart+i, err)
			}
			objs[i] = obj
		}
		return objs, nil

	case Overwrite:
		objs := make([]any, len(fs))
		for i, f := range fs {
			obj, loggables, err := f.BuildRecorded(s.clock)
			if err != nil {
				return nil, fmt.Errorf("factory %d: %w", loadStart+i, err)
			}
			s.recorded = append(s.recorded, loggables)
			for _, l := range loggables {
				if err := s.pushScope(l); err != nil {
					return nil, err
				}
			}
			objs[i] = obj
		}
		return objs, nil

	case Playback:
		if err := s.load(); err != nil {
			return nil, err
		}
		if len(s.loaded) < loadStart+len(fs) {
			return nil, fmt.Errorf("recording file %q holds %d component groups, need %d",
				s.path, len(s.loaded), loadStart+len(fs))
		}
		objs := make([]any, len(fs))
		for i, f := range fs {
			obj, comps, err := f.BuildPlayedBack(s.loaded[loadStart+i], s.clock)
			if err != nil {
				return nil, fmt.Errorf("factory %d: %w", loadStart+i, err)
			}
			for _, c := range comps {
				if err := s.pushScope(c); err != nil {
					return nil, err
				}
			}
			objs[i] = obj
		}
		return objs, nil

	default:
		return nil, fmt.Errorf("unexpected effective mode %s", s.effective)
	}
}

func (s *Switch) pushScope(c recorder.Component) error {
	if err := c.EnterScope(); err != nil {
		return err
	}
	s.exitStack = append(s.exitStack, c)
	return nil
}

// Exit closes the scope. With a nil cause and an effective recording mode,
// the accumulated component logs are committed to the recording file via an
// atomic write-then-rename; a partial file is never left at the canonical
// path. With a non-nil cause (or in other modes) nothing is written. The
// exit stack always unwinds and the clock always disengages.
func (s *Switch) Exit(cause error) error {
	if !s.entered {
		return errors.New("recording switch scope is not entered")
	}

	var saveErr error
	if cause == nil && s.effective == Overwrite {
		saveErr = s.save()
	}
	unwindErr := s.unwind()
	return errors.Join(saveErr, unwindErr)
}

func (s *Switch) unwind() error {
	var errs []error
	for i := len(s.exitStack) - 1; i >= 0; i-- {
		if err := s.exitStack[i].ExitScope(); err != nil {
			errs = append(errs, err)
		}
	}
	s.exitStack = nil

	if s.engaged {
		s.clock.Disengage()
		s.engaged = false
	}
	s.entered = false
	s.recorded = nil
	s.loaded = nil
	return errors.Join(errs...)
}

func (s *Switch) save() error {
	data := make([][]json.RawMessage, len(s.recorded))
	for i, group := range s.recorded {
		docs := make([]json.RawMessage, len(group))
		for j, l := range group {
			b, err := l.MarshalRecording()
			if err != nil {
				return fmt.Errorf("component %d/%d: %w", i, j, err)
			}
			docs[j] = b
		}
		data[i] = docs
	}

	b, err := s.ser.Marshal(fileDoc{
		Version:   0,
		StartTime: s.startTime.UTC().Format(startTimeLayout),
		Data:      data,
	})
	if err != nil {
		return err
	}
	return rentemp.WriteFile(s.path, b, 0o644)
}

func (s *Switch) load() error {
	if s.loaded != nil {
		return nil
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RecordingFileNotFoundError{Path: s.path, EnvVar: s.envVar}
		}
		return err
	}
	var doc fileDoc
	if err := s.ser.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("recording file %q: %w", s.path, err)
	}
	if doc.Version != 0 {
		return fmt.Errorf("recording file %q has unsupported version %d", s.path, doc.Version)
	}
	start, err := time.Parse(startTimeLayout, doc.StartTime)
	if err != nil {
		return fmt.Errorf("recording file %q: invalid start_time %q: %w", s.path, doc.StartTime, err)
	}
	s.startTime = start.UTC()
	s.loaded = doc.Data
	if s.loaded == nil {
		s.loaded = [][]json.RawMessage{}
	}
	return nil
}
