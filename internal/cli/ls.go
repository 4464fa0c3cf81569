package cli

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// LsEntry is one row of ls output.
type LsEntry struct {
	Path       string `json:"path" yaml:"path"`
	StartTime  string `json:"start_time" yaml:"start_time"`
	Components int    `json:"components" yaml:"components"`
}

// NewLsCommand creates the ls command.
func NewLsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List recording files under a directory",
		Long: `List recording files under a directory (default: the current directory).

Walks the tree for .json files that parse as recording documents; files
that do not are skipped (with a note in verbose mode).`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runLs(rootOpts, dir, cmd)
		},
	}
	return cmd
}

func runLs(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("not a directory: %s", dir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("not a directory: %s", dir))
	}

	entries, err := collectRecordings(dir, formatter)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scanning "+dir, err)
	}

	if formatter.Format != "text" {
		return formatter.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "no recording files found")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "%s\tstart=%s\tcomponents=%d\n", e.Path, e.StartTime, e.Components)
	}
	return nil
}

// collectRecordings walks dir for parseable recording files, sorted by path
// (filepath.WalkDir visits lexically).
func collectRecordings(dir string, formatter *OutputFormatter) ([]LsEntry, error) {
	entries := []LsEntry{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var doc recFile
		if json.Unmarshal(raw, &doc) != nil || doc.StartTime == "" {
			formatter.VerboseLog("skipping %s: not a recording document", path)
			return nil
		}
		entries = append(entries, LsEntry{
			Path:       path,
			StartTime:  doc.StartTime,
			Components: len(doc.Data),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
