package freezetime

import (
	"fmt"
	"runtime"
	"strings"
)

// wrapperDir is this package's source directory. Frames originating in the
// package's own (non-test) files belong to the wrapping machinery and
// compare equal regardless of line, so internal refactors never invalidate
// recorded stacks.
var wrapperDir = func() string {
	_, file, _, _ := runtime.Caller(0)
	return strings.TrimSuffix(file, "stack.go")
}()

// captureStack renders the current goroutine's call stack, innermost frame
// first, one "file:line function" line per frame. skip discards that many
// frames beyond captureStack itself.
func captureStack(skip int) []string {
	pc := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pc)
	frames := runtime.CallersFrames(pc[:n])
	var out []string
	for {
		f, more := frames.Next()
		out = append(out, fmt.Sprintf("%s:%d %s", f.File, f.Line, f.Function))
		if !more {
			break
		}
	}
	return out
}

func isWrapperFrame(line string) bool {
	return strings.HasPrefix(line, wrapperDir+"freezetime.go:") ||
		strings.HasPrefix(line, wrapperDir+"stack.go:")
}

// stacksEqual compares two formatted stacks frame by frame over their common
// depth. Frames match when their rendered lines are identical or when both
// belong to the wrapping machinery.
func stacksEqual(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] && !(isWrapperFrame(a[i]) && isWrapperFrame(b[i])) {
			return false
		}
	}
	return true
}

// StackMismatchError reports that a replayed call arrived through a
// different call stack than the recorded one.
type StackMismatchError struct {
	Recorded   []string
	PlayedBack []string
}

func (e *StackMismatchError) Error() string {
	var b strings.Builder
	b.WriteString("recorded and played-back call stacks do not match:\n")
	n := len(e.Recorded)
	if len(e.PlayedBack) > n {
		n = len(e.PlayedBack)
	}
	for i := 0; i < n; i++ {
		var rec, pb string
		if i < len(e.Recorded) {
			rec = e.Recorded[i]
		}
		if i < len(e.PlayedBack) {
			pb = e.PlayedBack[i]
		}
		if rec == pb || (isWrapperFrame(rec) && isWrapperFrame(pb)) {
			fmt.Fprintf(&b, "  = %s\n", rec)
		} else {
			fmt.Fprintf(&b, "  - %s\n  + %s\n", rec, pb)
		}
	}
	return b.String()
}
