package recswitch

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Mode selects how a recording switch behaves.
type Mode int

const (
	// Playback replays the recording file; missing file is an error.
	Playback Mode = iota
	// Live replays like Playback but unskips live-only tests.
	Live
	// ForceLive bypasses recording entirely and returns live objects.
	ForceLive
	// Record records when the file does not exist, replays otherwise.
	Record
	// Overwrite records unconditionally, replacing any existing file.
	Overwrite
)

var modeNames = map[Mode]string{
	Playback:  "PLAYBACK",
	Live:      "LIVE",
	ForceLive: "FORCE_LIVE",
	Record:    "RECORD",
	Overwrite: "OVERWRITE",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses a mode name as found in the environment variable. The
// empty string selects the default Playback mode.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return Playback, nil
	}
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("invalid recording mode %q (valid: %s)", s, strings.Join(modeNameList(), "|"))
}

func modeNameList() []string {
	return []string{"PLAYBACK", "LIVE", "FORCE_LIVE", "RECORD", "OVERWRITE"}
}

// DefaultEnvVar names the environment variable consulted for the recording
// mode when none is set explicitly.
const DefaultEnvVar = "REC_MODE"

// Confirmer asks the user a yes/no question, returning true on approval.
// Injected so tests and non-interactive environments can decide without a
// terminal.
type Confirmer func(prompt string) bool

// stdinConfirmer prompts on stderr and reads one line from stdin.
func stdinConfirmer(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

var (
	approvalsMu        sync.Mutex
	approvedOverwrites = map[string]bool{}
)

// ModeFromEnv reads the recording mode from the named environment variable.
// Selecting OVERWRITE requires interactive confirmation, asked once per
// environment variable name per process; later calls reuse the cached
// approval. A nil confirm falls back to a stdin prompt.
func ModeFromEnv(envVar string, confirm Confirmer) (Mode, error) {
	mode, err := ParseMode(os.Getenv(envVar))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", envVar, err)
	}
	if mode != Overwrite {
		return mode, nil
	}

	approvalsMu.Lock()
	defer approvalsMu.Unlock()
	if approvedOverwrites[envVar] {
		return Overwrite, nil
	}
	if confirm == nil {
		confirm = stdinConfirmer
	}
	if !confirm(fmt.Sprintf("%s=OVERWRITE will replace existing recording files. Continue?", envVar)) {
		return 0, fmt.Errorf("%s=OVERWRITE was not confirmed", envVar)
	}
	approvedOverwrites[envVar] = true
	return Overwrite, nil
}
