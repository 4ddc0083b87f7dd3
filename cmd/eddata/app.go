package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/data-for-good-bg/semantic-schools/config"
	"github.com/data-for-good-bg/semantic-schools/csvload"
	"github.com/data-for-good-bg/semantic-schools/download"
	"github.com/data-for-good-bg/semantic-schools/export"
	"github.com/data-for-good-bg/semantic-schools/fetch"
	"github.com/data-for-good-bg/semantic-schools/inbox"
	"github.com/data-for-good-bg/semantic-schools/metrics"
	"github.com/data-for-good-bg/semantic-schools/pipeline"
	"github.com/data-for-good-bg/semantic-schools/reconcile"
	"github.com/data-for-good-bg/semantic-schools/registry"
	"github.com/data-for-good-bg/semantic-schools/storage"
	"github.com/data-for-good-bg/semantic-schools/subject"
	"github.com/data-for-good-bg/semantic-schools/wikidata"
)

// App wires configuration, storage and the import components for one command.
type App struct {
	cfg    *config.Config
	opts   config.RunOptions
	logger *slog.Logger
	out    io.Writer

	recorder *metrics.Recorder
	summary  *reconcile.Summary

	// metricsFile overrides cfg.Metrics.TextfilePath
	metricsFile string

	store *storage.Store
}

// NewApp creates an application. Command output goes to out, logs to logger.
func NewApp(cfg *config.Config, opts config.RunOptions, logger *slog.Logger, out io.Writer) *App {
	recorder := metrics.NewRecorder()
	return &App{
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
		out:      out,
		recorder: recorder,
		summary:  reconcile.NewSummary().WithObserver(recorder),
	}
}

// Open connects to the database. With checkSchema, an outdated schema is an error.
func (a *App) Open(ctx context.Context, checkSchema bool) error {
	store, err := storage.Open(ctx, a.cfg.Database.URL, a.logger)
	if err != nil {
		return err
	}
	if checkSchema {
		if err := store.CheckSchema(ctx); err != nil {
			store.Close()
			return err
		}
	}
	a.store = store
	return nil
}

// Close releases the database and writes the metrics textfile when configured.
func (a *App) Close() error {
	var errs []error
	if err := a.writeMetrics(); err != nil {
		errs = append(errs, err)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		a.store = nil
	}
	return errors.Join(errs...)
}

func (a *App) writeMetrics() error {
	path := a.metricsFile
	if path == "" {
		path = a.cfg.Metrics.TextfilePath
	}
	if path == "" {
		return nil
	}
	if err := a.recorder.WriteTextfile(path); err != nil {
		return err
	}
	a.logger.Debug("Metrics written", "path", path)
	return nil
}

func (a *App) opener() reconcile.Opener {
	return reconcile.StoreOpener(a.store)
}

func (a *App) upserter() *reconcile.Upserter {
	return reconcile.NewUpserter(a.opener(), a.opts, a.summary, a.logger)
}

// PrintSummary writes the per-table counts of this run.
func (a *App) PrintSummary() error {
	if a.opts.DryRun {
		fmt.Fprintln(a.out, "Dry run, nothing was written.")
	}
	a.summary.Log(a.logger)
	return a.summary.Write(a.out)
}

// InitDB applies migrations and seeds the subject catalogue.
func (a *App) InitDB(ctx context.Context) error {
	if a.opts.DryRun {
		if err := a.store.CheckSchema(ctx); err != nil {
			a.logger.Info("Dry run, migrations not applied", "error", err)
			return nil
		}
	} else {
		applied, err := a.store.Migrate(ctx)
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Fprintf(a.out, "Applied %s\n", name)
		}
		if err := a.store.CheckSchema(ctx); err != nil {
			return err
		}
	}
	return reconcile.SeedSubjects(ctx, a.upserter(), subject.Default())
}

func (a *App) subjects(ctx context.Context) (subject.Map, error) {
	m, err := reconcile.LoadSubjects(ctx, a.opener())
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		a.logger.Warn("No subjects stored, using the built-in catalogue; run init-db")
		return subject.NewMap(subject.Default())
	}
	return m, nil
}

// importer builds the per-command import chain: stored subjects for the
// refiner and a matcher loaded with the stored hierarchy.
func (a *App) importer(ctx context.Context) (*pipeline.Pipeline, *reconcile.Importer, error) {
	subjects, err := a.subjects(ctx)
	if err != nil {
		return nil, nil, err
	}
	matcher := reconcile.NewMatcher(a.cfg.Reconcile.Variants, a.logger)
	if err := matcher.Load(ctx, a.opener()); err != nil {
		return nil, nil, err
	}
	return pipeline.New(subjects, a.logger), reconcile.NewImporter(a.upserter(), matcher, a.logger), nil
}

// ImportExam imports one exam file.
func (a *App) ImportExam(ctx context.Context, path string, exam reconcile.Exam) error {
	if err := exam.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("exam file: %w", err)
	}
	p, im, err := a.importer(ctx)
	if err != nil {
		return err
	}
	return a.importFile(ctx, p, im, path, exam)
}

func (a *App) importFile(ctx context.Context, p *pipeline.Pipeline, im *reconcile.Importer, path string, exam reconcile.Exam) error {
	result, err := p.Run(path)
	if err != nil {
		a.recorder.FileProcessed(metrics.FileFailed)
		return err
	}
	a.recorder.FactsExtracted(len(result.Facts))
	if err := im.Import(ctx, exam, result); err != nil {
		a.recorder.FileProcessed(metrics.FileFailed)
		return fmt.Errorf("import %s: %w", path, err)
	}
	a.recorder.FileProcessed(metrics.FileImported)
	return nil
}

// ImportBatch imports every file matched by patterns, taking the exam from
// the file name. A failing file does not stop the batch.
func (a *App) ImportBatch(ctx context.Context, patterns []string) error {
	files, err := inbox.ResolveFiles(patterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no exam files match %v", patterns)
	}
	p, im, err := a.importer(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		exam, err := inbox.ParseExamFileName(path)
		if err != nil {
			a.recorder.FileProcessed(metrics.FileSkipped)
			a.logger.Warn("Skipping file", "path", path, "error", err)
			continue
		}
		if err := a.importFile(ctx, p, im, path, exam); err != nil {
			failed++
			a.logger.Error("Import failed", "path", path, "exam", exam.ID(), "error", err)
			continue
		}
		a.logger.Info("Imported exam file", "path", path, "exam", exam.ID())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// Watch imports exam files dropped into the watch directory until ctx ends.
func (a *App) Watch(ctx context.Context) error {
	w, err := inbox.NewWatcher(a.cfg.Watch.Dir, a.cfg.Watch.Debounce, a.logger)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Stop()
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	for path := range w.Events() {
		exam, err := inbox.ParseExamFileName(path)
		if err != nil {
			a.recorder.FileProcessed(metrics.FileSkipped)
			a.logger.Warn("Skipping file", "path", path, "error", err)
			continue
		}
		// The hierarchy may have changed between files.
		p, im, err := a.importer(ctx)
		if err != nil {
			return err
		}
		if err := a.importFile(ctx, p, im, path, exam); err != nil {
			a.logger.Error("Import failed", "path", path, "exam", exam.ID(), "error", err)
		} else {
			a.logger.Info("Imported exam file", "path", path, "exam", exam.ID())
		}
		if err := a.writeMetrics(); err != nil {
			a.logger.Warn("Write metrics", "error", err)
		}
	}
	return nil
}

// ListExaminations prints the stored examinations as CSV.
func (a *App) ListExaminations(ctx context.Context) error {
	infos, err := reconcile.ListExaminations(ctx, a.opener())
	if err != nil {
		return err
	}
	return reconcile.WriteExaminations(a.out, infos)
}

// DeleteExamination removes an examination and its scores.
func (a *App) DeleteExamination(ctx context.Context, id string) error {
	report, err := reconcile.DeleteExamination(ctx, a.opener(), id, a.opts, a.logger)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("examination %q not found", id)
		}
		return err
	}
	verb := "Deleted"
	if report.DryRun {
		verb = "Would delete"
	}
	fmt.Fprintf(a.out, "%s examination %s with %d scores\n", verb, report.ExaminationID, report.Scores)
	return nil
}

func (a *App) fetchClient() *fetch.Client {
	retry := fetch.DefaultRetryConfig()
	if a.cfg.Wikidata.MaxAttempts > 0 {
		retry.MaxAttempts = a.cfg.Wikidata.MaxAttempts
	}
	return fetch.NewClient(fetch.Options{
		UserAgent:         a.cfg.Wikidata.UserAgent,
		Timeout:           a.cfg.Wikidata.Timeout,
		RequestsPerSecond: a.cfg.Wikidata.RequestsPerSecond,
		Retry:             retry,
	}, a.logger)
}

// wikidataCache picks redis when configured, else the file cache. The
// returned func releases it.
func (a *App) wikidataCache(ctx context.Context) (wikidata.Cache, func(), error) {
	wc := a.cfg.Wikidata
	if wc.RedisURL != "" {
		c, err := wikidata.NewRedisCache(ctx, wc.RedisURL, wc.CacheTTL)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Debug("Using redis query cache")
		return c, func() { c.Close() }, nil
	}
	c, err := wikidata.NewFileCache(wc.CacheDir, wc.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug("Using file query cache", "dir", wc.CacheDir)
	return c, func() {}, nil
}

// ExtractWikidata syncs the administrative hierarchy and schools.
func (a *App) ExtractWikidata(ctx context.Context, kinds []string) error {
	cache, release, err := a.wikidataCache(ctx)
	if err != nil {
		return err
	}
	defer release()
	client := wikidata.NewClient(a.cfg.Wikidata.Endpoint, a.fetchClient(), cache, a.logger)
	return wikidata.NewSyncer(client, a.upserter(), a.logger).Sync(ctx, kinds)
}

// Download fetches the resources listed in listPath.
func (a *App) Download(ctx context.Context, listPath string, force bool) error {
	f, err := os.Open(listPath)
	if err != nil {
		return fmt.Errorf("open resource list: %w", err)
	}
	defer f.Close()
	resources, err := download.ParseList(f)
	if err != nil {
		return err
	}

	d := download.NewDownloader(a.fetchClient(), a.cfg.Download.BaseURL, a.cfg.Download.Dir, force, a.logger)
	results, err := d.Download(ctx, resources)
	for _, r := range results {
		status := "skipped"
		if r.Downloaded {
			status = "downloaded"
		}
		fmt.Fprintf(a.out, "%s %s\n", status, r.Path)
	}
	return err
}

// ImportRegistry imports school types and funding sources from the institution registry.
func (a *App) ImportRegistry(ctx context.Context, path string) error {
	text, err := csvload.NewLoader(a.logger).Load(path)
	if err != nil {
		return err
	}
	institutions, err := registry.Parse(text, a.logger)
	if err != nil {
		return err
	}
	return registry.NewImporter(a.upserter(), a.logger).Import(ctx, institutions)
}

// ExportRDF writes the stored graph to w.
func (a *App) ExportRDF(ctx context.Context, format export.Format, w io.Writer) error {
	exporter, err := export.NewGraphBuilder(a.opener(), a.logger).Build(ctx)
	if err != nil {
		return err
	}
	text, err := exporter.Export(format)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}
