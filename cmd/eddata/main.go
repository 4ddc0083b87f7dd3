// Package main provides the eddata binary entry point.
// eddata imports Bulgarian national exam results (NVO and DZI) into a
// relational store and reconciles them with the administrative hierarchy.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/data-for-good-bg/semantic-schools/config"
	"github.com/data-for-good-bg/semantic-schools/export"
	"github.com/data-for-good-bg/semantic-schools/reconcile"
	"github.com/data-for-good-bg/semantic-schools/wikidata"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "eddata"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath  string
	logLevel    string
	metricsFile string
	verbose     bool
	dryRun      bool
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Bulgarian exam results importer",
		Long: `eddata normalizes the published NVO and DZI exam result files and
reconciles them into a relational store keyed by the school administrative id.

It provides:
- Exam file import (single file, glob batches, watched directory)
- Administrative hierarchy and school sync from Wikidata
- Institution registry import and open data downloads
- RDF export of the reconciled graph`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.metricsFile, "metrics-file", "", "Write prometheus metrics to this textfile when done")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Log every processed row")
	pf.BoolVarP(&g.dryRun, "dry-run", "n", false, "Do not write to the database")

	cmd.AddCommand(
		importNVOCmd(g),
		importDZICmd(g),
		importBatchCmd(g),
		watchCmd(g),
		initDBCmd(g),
		initConfigCmd(g),
		listExaminationsCmd(g),
		deleteExaminationCmd(g),
		extractWikidataCmd(g),
		downloadCmd(g),
		importRegistryCmd(g),
		exportRDFCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

func newLogger(w io.Writer, logLevel string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// dbMode tells setup how to prepare the database.
type dbMode int

const (
	dbNone dbMode = iota
	dbOpen
	dbChecked
)

// withApp builds the App for a command, runs fn and closes it.
func withApp(cmd *cobra.Command, g *globalFlags, mode dbMode, fn func(ctx context.Context, app *App) error) error {
	logger := newLogger(cmd.ErrOrStderr(), g.logLevel, g.verbose)
	slog.SetDefault(logger)

	loader := config.NewLoader(logger)
	if g.configPath != "" {
		loader = loader.WithFile(g.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := config.NewRunOptions(g.dryRun, g.verbose)
	logger.Debug("Run options", "dry_run", opts.DryRun, "edit_stamp", opts.EditStamp)

	app := NewApp(cfg, opts, logger, cmd.OutOrStdout())
	app.metricsFile = g.metricsFile

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if mode != dbNone {
		if err := app.Open(ctx, mode == dbChecked); err != nil {
			return err
		}
	}

	runErr := fn(ctx, app)
	if err := app.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func importExamCmd(g *globalFlags, examType, short string, fixedGrade int) *cobra.Command {
	var (
		csvPath string
		year    int
		grade   int
	)
	cmd := &cobra.Command{
		Use:   "import-" + examType,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exam := reconcile.Exam{Type: examType, Grade: grade, Year: year}
			if fixedGrade != 0 {
				exam.Grade = fixedGrade
			}
			return withApp(cmd, g, dbChecked, func(ctx context.Context, app *App) error {
				if err := app.ImportExam(ctx, csvPath, exam); err != nil {
					return err
				}
				return app.PrintSummary()
			})
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "Exam result file (.csv or .xlsx)")
	cmd.Flags().IntVar(&year, "year", 0, "Exam year")
	_ = cmd.MarkFlagRequired("csv")
	_ = cmd.MarkFlagRequired("year")
	if fixedGrade == 0 {
		cmd.Flags().IntVar(&grade, "grade", 0, "Grade level (4, 7 or 10)")
		_ = cmd.MarkFlagRequired("grade")
	}
	return cmd
}

func importNVOCmd(g *globalFlags) *cobra.Command {
	return importExamCmd(g, reconcile.ExamNVO, "Import NVO results", 0)
}

func importDZICmd(g *globalFlags) *cobra.Command {
	return importExamCmd(g, reconcile.ExamDZI, "Import DZI (matura) results", 12)
}

func importBatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import-batch <glob>...",
		Short: "Import every exam file matched by the globs",
		Long: `Import every .csv or .xlsx file matched by the globs (** is supported).
The exam is read from the file name: {nvo|dzi}-{grade}-{year}[-anything].`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, dbChecked, func(ctx context.Context, app *App) error {
				err := app.ImportBatch(ctx, args)
				if perr := app.PrintSummary(); perr != nil && err == nil {
					err = perr
				}
				return err
			})
		},
	}
}

func watchCmd(g *globalFlags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Import exam files dropped into a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, dbChecked, func(ctx context.Context, app *App) error {
				if dir != "" {
					app.cfg.Watch.Dir = dir
				}
				if err := app.Watch(ctx); err != nil {
					return err
				}
				return app.PrintSummary()
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory to watch (default from config)")
	return cmd
}

func initDBCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create or migrate the schema and seed the subject catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, dbOpen, func(ctx context.Context, app *App) error {
				if err := app.InitDB(ctx); err != nil {
					return err
				}
				return app.PrintSummary()
			})
		},
	}
}

func initConfigCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write the default user config unless one exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), g.logLevel, g.verbose)
			path, created, err := config.NewLoader(logger).EnsureUserConfig()
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
			}
			return nil
		},
	}
}

func listExaminationsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-examinations",
		Short: "Print the stored examinations as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, dbChecked, func(ctx context.Context, app *App) error {
				return app.ListExaminations(ctx)
			})
		},
	}
}

func deleteExaminationCmd(g *globalFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete-examination",
		Short: "Delete an examination and its scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, dbChecked, func(ctx context.Context, app *App) error {
				return app.DeleteExamination(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Examination id, e.g. nvo-7-2023")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func extractWikidataCmd(g *globalFlags) *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:   "extract-wikidata",
		Short: "Sync regions, municipalities, places and schools from Wikidata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := only
			if len(kinds) == 0 {
				kinds = wikidata.SupportedKinds
			}
			return withApp(cmd, g, dbChecked, func(ctx context.Context, app *App) error {
				if err := app.ExtractWikidata(ctx, kinds); err != nil {
					return err
				}
				return app.PrintSummary()
			})
		},
	}
	cmd.Flags().StringSliceVar(&only, "only", nil,
		"Comma separated subset of "+strings.Join(wikidata.SupportedKinds, ","))
	return cmd
}

func downloadCmd(g *globalFlags) *cobra.Command {
	var (
		listPath string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download published exam CSV resources",
		Long: `Download the resources named in a list file. Each line is name,resource_id;
blank lines and lines starting with # are ignored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, dbNone, func(ctx context.Context, app *App) error {
				return app.Download(ctx, listPath, force)
			})
		},
	}
	cmd.Flags().StringVar(&listPath, "list", "", "Resource list file")
	cmd.Flags().BoolVar(&force, "force", false, "Download files that already exist")
	_ = cmd.MarkFlagRequired("list")
	return cmd
}

func importRegistryCmd(g *globalFlags) *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "import-registry",
		Short: "Import school types and funding sources from the institution registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, dbChecked, func(ctx context.Context, app *App) error {
				if err := app.ImportRegistry(ctx, csvPath); err != nil {
					return err
				}
				return app.PrintSummary()
			})
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "Registry export (.csv)")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func exportRDFCmd(g *globalFlags) *cobra.Command {
	var (
		formatName string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "export-rdf",
		Short: "Export the reconciled graph as RDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}
			return withApp(cmd, g, dbChecked, func(ctx context.Context, app *App) error {
				if output == "" || output == "-" {
					return app.ExportRDF(ctx, format, cmd.OutOrStdout())
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				if err := app.ExportRDF(ctx, format, f); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVar(&formatName, "format", string(export.FormatTurtle), "turtle, ntriples or jsonld")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}
