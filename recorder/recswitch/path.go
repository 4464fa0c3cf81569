package recswitch

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SubDir is the directory, next to the calling source file, where
// automatically-named recordings are stored. Recording files are plain JSON
// meant to be committed alongside the tests that use them.
const SubDir = "_recordings"

// defaultPath derives the conventional recording path for the caller skip
// frames up the stack: <caller dir>/_recordings/<pkg>.<Func><suffix>.json.
// The file name is NFC-normalized so checkouts on different filesystems
// agree on it.
func defaultPath(skip int, root, suffix string) (string, error) {
	pc, file, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return "", fmt.Errorf("cannot determine the calling function for the recording path")
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "", fmt.Errorf("cannot resolve the calling function for the recording path")
	}

	name := callerBaseName(fn.Name())
	if root == "" {
		root = filepath.Join(filepath.Dir(file), SubDir)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(root, norm.NFC.String(name+suffix+".json")), nil
}

// callerBaseName reduces a fully-qualified function name to
// "<pkg>.<Func>", dropping the module path prefix and method-receiver
// punctuation: "example.com/m/pkg.(*Suite).TestX" becomes
// "pkg.Suite.TestX".
func callerBaseName(qualified string) string {
	base := qualified
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.NewReplacer("(", "", ")", "", "*", "").Replace(base)
	// Function literals append ".funcN" suffixes; keep them, they
	// disambiguate multiple switches in one test.
	return base
}
