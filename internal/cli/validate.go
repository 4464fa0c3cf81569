package cli

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	"github.com/spf13/cobra"
)

//go:embed schema.cue
var schemaCUE string

// ValidationError describes one schema violation in a recording file.
type ValidationError struct {
	Path    string `json:"path,omitempty" yaml:"path,omitempty"` // CUE path inside the document
	Message string `json:"message" yaml:"message"`
}

// FileValidation holds the validation result for one file.
type FileValidation struct {
	File   string            `json:"file" yaml:"file"`
	Valid  bool              `json:"valid" yaml:"valid"`
	Errors []ValidationError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate recording files against the file schema",
		Long: `Validate recording files against the recording file schema.

Checks the document structure: the version, the start time, the component
document tags and the per-entry fields. Exit code 1 signals schema
violations, 2 signals unreadable inputs.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	schema, err := compileSchema()
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "compiling schema", err)
	}

	results := make([]FileValidation, 0, len(paths))
	failed := 0
	for _, path := range paths {
		formatter.VerboseLog("validating %s", path)
		res, err := validateFile(schema, path)
		if err != nil {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "reading "+path, err)
		}
		if !res.Valid {
			failed++
		}
		results = append(results, res)
	}

	if formatter.Format != "text" {
		if err := formatter.Success(results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			if res.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s\n", res.File)
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s\n", res.File)
			for _, e := range res.Errors {
				if e.Path != "" {
					fmt.Fprintf(formatter.Writer, "  %s: %s\n", e.Path, e.Message)
				} else {
					fmt.Fprintf(formatter.Writer, "  %s\n", e.Message)
				}
			}
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d of %d file(s)", failed, len(results)))
	}
	return nil
}

// compileSchema compiles the embedded schema and returns the #File
// definition.
func compileSchema() (cue.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, err
	}
	sch := v.LookupPath(cue.ParsePath("#File"))
	if err := sch.Err(); err != nil {
		return cue.Value{}, err
	}
	return sch, nil
}

// validateFile checks one recording file against the schema. The returned
// error covers unreadable input only; schema violations land in the result.
func validateFile(schema cue.Value, path string) (FileValidation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileValidation{}, err
	}

	res := FileValidation{File: path}
	expr, err := cuejson.Extract(path, raw)
	if err != nil {
		res.Errors = append(res.Errors, ValidationError{Message: err.Error()})
		return res, nil
	}

	val := schema.Context().BuildExpr(expr)
	if err := val.Err(); err != nil {
		res.Errors = append(res.Errors, ValidationError{Message: err.Error()})
		return res, nil
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		for _, e := range cueerrors.Errors(err) {
			res.Errors = append(res.Errors, ValidationError{
				Path:    strings.Join(e.Path(), "."),
				Message: e.Error(),
			})
		}
		return res, nil
	}

	res.Valid = true
	return res, nil
}
