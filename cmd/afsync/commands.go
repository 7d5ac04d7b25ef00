package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rpattn/afsync/internal/db"
	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/ingestion"
	"github.com/rpattn/afsync/internal/problems"
	"github.com/rpattn/afsync/internal/report"

	"github.com/spf13/cobra"
)

type importOptions struct {
	dir             string
	kind            string
	date            string
	continueOnError bool
}

// resolveOverrides validates the --kind and --date flags.
func resolveOverrides(kind, date string) (domain.Kind, *time.Time, error) {
	var k domain.Kind
	if kind != "" {
		parsed, err := domain.ParseKind(kind)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %q", ingestion.ErrUnknownKind, kind)
		}
		k = parsed
	}
	if date == "" {
		return k, nil, nil
	}
	for _, layout := range []string{time.DateOnly, "20060102"} {
		if d, err := time.Parse(layout, date); err == nil {
			return k, &d, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %q", ingestion.ErrUnknownDate, date)
}

// listExports returns the export files of dir in import order.
func listExports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "export") {
			continue
		}
		if strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".csv.error") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return ingestion.OrderFiles(paths), nil
}

func newImportCmd(root *rootOptions) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import export files in the given order",
		Long: `Import export files. Files are processed in the order given; with --dir every
export file of the directory is imported, ordered by date then kind dependency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, date, err := resolveOverrides(opts.kind, opts.date)
			if err != nil {
				return err
			}

			paths := args
			if opts.dir != "" {
				listed, err := listExports(opts.dir)
				if err != nil {
					return err
				}
				paths = append(paths, listed...)
			}
			if len(paths) == 0 {
				return errors.New("no file to import: pass files or --dir")
			}

			a, err := openApp(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			summary, importErr := a.service.ImportFiles(cmd.Context(), ingestion.ImportRequest{
				Paths:           paths,
				Kind:            kind,
				Date:            date,
				ContinueOnError: opts.continueOnError,
			})
			printImportSummary(cmd.OutOrStdout(), summary)
			return importErr
		},
	}

	cmd.Flags().StringVar(&opts.dir, "dir", "", "Import every export file of this directory")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "Kind of the files, when their name does not say it")
	cmd.Flags().StringVar(&opts.date, "date", "", "Date of the files (YYYY-MM-DD), when their name does not say it")
	cmd.Flags().BoolVar(&opts.continueOnError, "continue-on-error", false, "Keep importing after a file failed")

	return cmd
}

func printImportSummary(w io.Writer, summary ingestion.ImportSummary) {
	for _, f := range summary.Files {
		if f.Err != nil {
			fmt.Fprintf(w, "%s: failed: %v\n", f.Name, f.Err)
			continue
		}
		fmt.Fprintf(w, "Loaded %d values from %s '%s'\n", f.Applied, f.Kind, f.Name)
	}
	if summary.Report.Subject != "" {
		fmt.Fprintln(w, summary.Report.Subject)
	}
	if summary.ReportPath != "" {
		fmt.Fprintf(w, "Report: %s\n", summary.ReportPath)
	}
}

func newCheckCmd() *cobra.Command {
	var kind, date string

	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Parse a file and print its problem lines without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, d, err := resolveOverrides(kind, date)
			if err != nil {
				return err
			}
			result, err := ingestion.CheckFile(args[0], k, d)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s): %d lines, %d with problems\n",
				result.Info.Name(), result.Info.Kind, result.Lines, len(result.Failures))
			for _, failure := range result.Failures {
				fmt.Fprintf(out, "\n%s", failure.Describe())
			}
			if len(result.Failures) > 0 {
				return fmt.Errorf("%d problem lines", len(result.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Kind of the file, when its name does not say it")
	cmd.Flags().StringVar(&date, "date", "", "Date of the file (YYYY-MM-DD), when its name does not say it")
	return cmd
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last import of every kind",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			last, err := a.service.LastImports(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), last)
			return nil
		},
	}
}

func printStatus(w io.Writer, last map[domain.Kind]domain.ImportLedgerEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tDATE\tOUTCOME\tAPPLIED\tMESSAGE")
	for _, kind := range domain.KnownKinds() {
		entry, ok := last[kind]
		if !ok {
			fmt.Fprintf(tw, "%s\t-\tnever imported\t-\t\n", kind)
			continue
		}
		applied := "-"
		if entry.NumApplied != nil {
			applied = fmt.Sprint(*entry.NumApplied)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			kind, entry.Date.Format(time.DateOnly), entry.Outcome, applied, entry.Message)
	}
	_ = tw.Flush()
}

func newProblemsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "problems",
		Short: "Inspect entities with unresolved problems",
	}

	var kind string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List open problems with entity labels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds, err := kindFilter(kind)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			open, err := a.service.OpenProblems(cmd.Context(), kinds...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, k := range sortedKinds(open) {
				for _, m := range open[k] {
					fmt.Fprintf(out, "%s\t%d\t%s\n", k, m.EntityID, m.Label)
				}
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&kind, "kind", "", "Only list this kind")

	var output string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write open problems to a spreadsheet, one sheet per kind",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			open, err := a.service.OpenProblems(cmd.Context())
			if err != nil {
				return err
			}
			if err := report.WriteOpenProblems(output, open); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	exportCmd.Flags().StringVar(&output, "out", "problems.xlsx", "Spreadsheet to write")

	cmd.AddCommand(listCmd, exportCmd)
	return cmd
}

func kindFilter(kind string) ([]domain.Kind, error) {
	if kind == "" {
		return nil, nil
	}
	k, err := domain.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return []domain.Kind{k}, nil
}

func sortedKinds(open map[domain.Kind][]problems.OpenMarker) []domain.Kind {
	kinds := make([]domain.Kind, 0, len(open))
	for k := range open {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Order() < kinds[j].Order() })
	return kinds
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(root)
			if err != nil {
				return err
			}
			if down {
				return db.DropSchema(cfg.Database, logger)
			}
			return db.RunMigrations(cfg.Database, logger)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Revert every migration")
	return cmd
}
