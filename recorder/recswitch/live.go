package recswitch

import (
	"testing"

	"github.com/zepedaj/jztools/recorder/factory"
)

// SkipUnlessLive skips the test unless the recording mode allows live
// objects (LIVE or FORCE_LIVE). Tests that genuinely require a live
// connection call it first, so default playback runs skip them instead of
// failing on a missing recording.
func SkipUnlessLive(t testing.TB) {
	t.Helper()
	SkipUnlessLiveEnv(t, DefaultEnvVar)
}

// SkipUnlessLiveEnv is SkipUnlessLive with a custom environment variable.
func SkipUnlessLiveEnv(t testing.TB, envVar string) {
	t.Helper()
	mode, err := ModeFromEnv(envVar, nil)
	if err != nil {
		t.Fatalf("reading recording mode: %v", err)
	}
	if mode != Live && mode != ForceLive {
		t.Skipf("requires a live object (set %s=LIVE|FORCE_LIVE, currently %s)", envVar, mode)
	}
}

// NewBuilder returns a constructor routed through the switch: each
// invocation extends the entered scope with a new managed object that is
// live, recorded, or played back per the effective mode. This is the
// explicit replacement for intercepting construction of the managed type;
// code under test receives the builder instead of calling the constructor
// directly.
func NewBuilder[T any](s *Switch, ctor func() (T, error)) func() (any, error) {
	return func() (any, error) {
		return s.ExtendEnter1(factory.Constructor(func() (any, error) {
			return ctor()
		}))
	}
}
