package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "Pretty-print a recording file",
		Long: `Pretty-print a recording file.

Text format renders a per-component summary of the recorded entries;
json and yaml render the full document.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runShow(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	doc, raw, err := loadRecFile(path)
	if err != nil {
		code := ErrCodeNotFound
		if GetExitCode(err) == ExitFailure {
			code = ErrCodeParse
		}
		_ = formatter.Error(code, err.Error(), nil)
		return err
	}

	switch formatter.Format {
	case "json":
		enc := json.NewEncoder(formatter.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(json.RawMessage(raw))
	case "yaml":
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return WrapExitError(ExitFailure, "decoding "+path, err)
		}
		return yaml.NewEncoder(formatter.Writer).Encode(v)
	default:
		return showText(formatter, path, doc)
	}
}

// showEntry is the superset of the per-entry document fields across the
// component document variants.
type showEntry struct {
	Type       string            `json:"__type__"`
	Name       string            `json:"name"`
	AccessTime string            `json:"access_time"`
	Time       string            `json:"time"` // call-time documents
	Args       []json.RawMessage `json:"args"`
	Kwargs     map[string]any    `json:"kwargs"`
}

func showText(formatter *OutputFormatter, path string, doc *recFile) error {
	w := formatter.Writer
	fmt.Fprintf(w, "recording %s\n", path)
	fmt.Fprintf(w, "version %d  start %s\n", doc.Version, doc.StartTime)

	for i, group := range doc.Data {
		fmt.Fprintf(w, "\ngroup %d\n", i)
		for j, raw := range group {
			var comp componentDoc
			if err := json.Unmarshal(raw, &comp); err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("component %d/%d", i, j), err)
			}
			entries := comp.Recordings
			if comp.Recordings == nil {
				entries = comp.Calls
			}
			fmt.Fprintf(w, "  component %d: %s (%d entries)\n", j, comp.Type, len(entries))
			for _, re := range entries {
				var e showEntry
				if err := json.Unmarshal(re, &e); err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("component %d/%d", i, j), err)
				}
				fmt.Fprintf(w, "    %s\n", formatEntry(e))
			}
		}
	}
	return nil
}

// formatEntry renders one entry line: the tag, the attribute or call name,
// the argument arity for calls and the access time.
func formatEntry(e showEntry) string {
	name := e.Name
	if name == "" {
		name = "__call__"
	}
	at := e.AccessTime
	if at == "" {
		at = e.Time
	}
	switch e.Type {
	case "rs:call":
		return fmt.Sprintf("rs:call %s(%d args, %d kwargs) @%s", name, len(e.Args), len(e.Kwargs), at)
	case "rs:attr":
		return fmt.Sprintf("rs:attr %s @%s", name, at)
	case "rs:call_time":
		return fmt.Sprintf("rs:call_time @%s", at)
	default:
		return fmt.Sprintf("%s @%s", e.Type, at)
	}
}
