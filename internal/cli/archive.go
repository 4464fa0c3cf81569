package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zepedaj/jztools/archive"
)

// NewArchiveCommand creates the archive command group.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Manage the SQLite recording catalog",
		Long: `Manage the SQLite recording catalog.

The catalog keeps recording files outside the repositories that produced
them: retired recordings from deleted tests, recordings shared across
projects, or an audit trail of when a recording was last refreshed.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the catalog database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newArchivePutCommand(rootOpts, &dbPath))
	cmd.AddCommand(newArchiveLsCommand(rootOpts, &dbPath))
	cmd.AddCommand(newArchiveGetCommand(rootOpts, &dbPath))
	cmd.AddCommand(newArchiveRmCommand(rootOpts, &dbPath))

	return cmd
}

// openArchive opens the catalog, mapping failures to command errors.
func openArchive(formatter *OutputFormatter, dbPath string) (*archive.Archive, error) {
	a, err := archive.Open(dbPath)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "opening catalog "+dbPath, err)
	}
	return a, nil
}

func newFormatter(rootOpts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}
}

// archiveEntryView is the structured-output shape of a catalog entry.
type archiveEntryView struct {
	Name       string `json:"name" yaml:"name"`
	SHA256     string `json:"sha256" yaml:"sha256"`
	StartTime  string `json:"start_time" yaml:"start_time"`
	Components int    `json:"components" yaml:"components"`
	ImportedAt string `json:"imported_at" yaml:"imported_at"`
}

func viewOf(e archive.Entry) archiveEntryView {
	return archiveEntryView{
		Name:       e.Name,
		SHA256:     e.SHA256,
		StartTime:  e.StartTime.Format("2006-01-02T15:04:05Z07:00"),
		Components: e.Components,
		ImportedAt: e.ImportedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func newArchivePutCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "put <file>...",
		Short: "Import recording files into the catalog",
		Long: `Import recording files into the catalog.

Each file is stored under its base name; importing an existing name
replaces the stored document. With --name (single file only) the catalog
name is overridden.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			if name != "" && len(args) > 1 {
				return NewExitError(ExitCommandError, "--name requires exactly one file")
			}

			a, err := openArchive(formatter, *dbPath)
			if err != nil {
				return err
			}
			defer a.Close()

			views := make([]archiveEntryView, 0, len(args))
			for _, path := range args {
				doc, err := os.ReadFile(path)
				if err != nil {
					_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
					return WrapExitError(ExitCommandError, "reading "+path, err)
				}
				entryName := filepath.Base(path)
				if name != "" {
					entryName = name
				}
				e, err := a.Put(cmd.Context(), entryName, doc)
				if err != nil {
					_ = formatter.Error(ErrCodeParse, err.Error(), nil)
					return WrapExitError(ExitFailure, "importing "+path, err)
				}
				formatter.VerboseLog("imported %s as %q (%s)", path, e.Name, e.SHA256[:12])
				views = append(views, viewOf(e))
			}

			if formatter.Format != "text" {
				return formatter.Success(views)
			}
			for _, v := range views {
				fmt.Fprintf(formatter.Writer, "imported %s\tsha256=%s\n", v.Name, v.SHA256[:12])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "catalog name override (single file only)")
	return cmd
}

func newArchiveLsCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "ls",
		Short:         "List catalog entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			a, err := openArchive(formatter, *dbPath)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.List(cmd.Context())
			if err != nil {
				_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
				return WrapExitError(ExitCommandError, "listing catalog", err)
			}

			views := make([]archiveEntryView, len(entries))
			for i, e := range entries {
				views[i] = viewOf(e)
			}
			if formatter.Format != "text" {
				return formatter.Success(views)
			}
			if len(views) == 0 {
				fmt.Fprintln(formatter.Writer, "catalog is empty")
				return nil
			}
			for _, v := range views {
				fmt.Fprintf(formatter.Writer, "%s\tstart=%s\tcomponents=%d\timported=%s\n",
					v.Name, v.StartTime, v.Components, v.ImportedAt)
			}
			return nil
		},
	}
}

func newArchiveGetCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:           "get <name>",
		Short:         "Write a stored recording document to stdout or a file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			a, err := openArchive(formatter, *dbPath)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, _, err := a.Get(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no catalog entry %q", args[0]), nil)
					return NewExitError(ExitCommandError, fmt.Sprintf("no catalog entry %q", args[0]))
				}
				_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
				return WrapExitError(ExitCommandError, "reading catalog", err)
			}

			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(doc)
				return err
			}
			return os.WriteFile(outPath, doc, 0o644)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the document to a file instead of stdout")
	return cmd
}

func newArchiveRmCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "rm <name>",
		Short:         "Remove a catalog entry",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			a, err := openArchive(formatter, *dbPath)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.Remove(cmd.Context(), args[0])
			if err != nil {
				_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
				return WrapExitError(ExitCommandError, "removing "+args[0], err)
			}
			if !removed {
				_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no catalog entry %q", args[0]), nil)
				return NewExitError(ExitCommandError, fmt.Sprintf("no catalog entry %q", args[0]))
			}
			if formatter.Format != "text" {
				return formatter.Success(map[string]string{"removed": args[0]})
			}
			fmt.Fprintf(formatter.Writer, "removed %s\n", args[0])
			return nil
		},
	}
}
