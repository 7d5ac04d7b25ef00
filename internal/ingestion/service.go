// Package ingestion drives the import of export files: it resolves each
// file, applies its records, reconciles problem markers and reports.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpattn/afsync/internal/codec"
	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/metrics"
	"github.com/rpattn/afsync/internal/notify"
	"github.com/rpattn/afsync/internal/parser"
	"github.com/rpattn/afsync/internal/problems"
	"github.com/rpattn/afsync/internal/report"
	"github.com/rpattn/afsync/internal/repository"
)

// Service imports export files into the record store.
type Service struct {
	store       repository.Store
	reconciler  *problems.Reconciler
	applier     *Applier
	reports     *report.Writer
	notifier    notify.Notifier
	metrics     *metrics.Recorder
	metricsPath string
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger of the service and its applier.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier sets the channel used for worth-notifying reports.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithReportWriter persists every report with w.
func WithReportWriter(w *report.Writer) Option {
	return func(s *Service) {
		s.reports = w
	}
}

// WithMetrics records run metrics and writes them to path when it is set.
func WithMetrics(r *metrics.Recorder, path string) Option {
	return func(s *Service) {
		s.metrics = r
		s.metricsPath = path
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new ingestion service.
func NewService(store repository.Store, reconciler *problems.Reconciler, opts ...Option) *Service {
	s := &Service{
		store:      store,
		reconciler: reconciler,
		notifier:   notify.Noop{},
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.applier = NewApplier(s.logger)
	return s
}

// ImportRequest lists the files of one invocation. Kind and Date override
// what the file names say and must agree with them.
type ImportRequest struct {
	Paths           []string
	Kind            domain.Kind
	Date            *time.Time
	ContinueOnError bool
}

// ImportSummary is the outcome of an invocation.
type ImportSummary struct {
	Files      []report.FileRun
	Report     report.Report
	ReportPath string
	Notified   bool
}

// ImportFiles processes the files in the given order. A fatal file error
// stops the run unless ContinueOnError is set; the report is composed in
// every case.
func (s *Service) ImportFiles(ctx context.Context, req ImportRequest) (ImportSummary, error) {
	startedAt := s.now()
	summary := ImportSummary{}
	if len(req.Paths) == 0 {
		return summary, errors.New("no file to import")
	}

	var errs []error
	for _, path := range req.Paths {
		run, err := s.importFile(ctx, path, req)
		summary.Files = append(summary.Files, run)
		if err != nil {
			s.logger.Error("import failed", "file", run.Name, "error", err)
			errs = append(errs, err)
			if !req.ContinueOnError {
				break
			}
		}
	}

	if err := s.finish(ctx, startedAt, req, &summary); err != nil {
		errs = append(errs, err)
	}
	return summary, errors.Join(errs...)
}

func (s *Service) importFile(ctx context.Context, path string, req ImportRequest) (report.FileRun, error) {
	info, err := ResolveFile(path, req.Kind, req.Date)
	run := report.FileRun{Name: info.Name(), Kind: info.Kind, Date: info.Date}
	if err != nil {
		run.Err = err
		return run, err
	}

	if info.SourceError {
		entry := domain.NewImportLedgerEntry(info.Kind, info.Date, domain.OutcomeSourceError,
			fmt.Sprintf("error file found: '%s'", info.Name()))
		if err := s.store.Ledger().Record(ctx, entry); err != nil {
			run.Err = err
			return run, &FileError{Path: path, Err: err}
		}
		run.Entry = &entry
		s.logger.Warn("source reported a failed export", "kind", info.Kind, "file", info.Name())
		return run, nil
	}

	fields, err := codec.ForKind(info.Kind)
	if err != nil {
		run.Err = err
		return run, &FileError{Path: path, Err: fmt.Errorf("%w: %v", ErrUnknownKind, err)}
	}
	file, err := parser.ParseFile(info.Kind, path, fields)
	if err != nil {
		run.Err = err
		return run, &FileError{Path: path, Err: err}
	}
	s.warnUnmappedColumns(info, file, fields)

	snapshot, err := s.reconciler.Snapshot(ctx, info.Kind)
	if err != nil {
		run.Err = err
		return run, &FileError{Path: path, Err: err}
	}

	var result ApplyResult
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		var applyErr error
		result, applyErr = s.applier.Apply(ctx, tx, info, file.Outcomes())
		if applyErr != nil {
			return applyErr
		}
		entry := ledgerEntry(info, result)
		if err := tx.Ledger().Record(ctx, entry); err != nil {
			return err
		}
		run.Entry = &entry
		return nil
	})
	if err != nil {
		run.Entry = nil
		run.Err = err
		return run, &FileError{Path: path, Err: fmt.Errorf("failed to apply records: %w", err)}
	}

	run.Lines = result.Lines
	run.Applied = result.Applied
	run.ParseFailures = result.ParseFailures
	run.LocalProblems = len(result.LocalProblems)

	reconciled, err := s.reconciler.Reconcile(ctx, snapshot, path, result.Entities, result.Unidentified)
	run.Result = reconciled
	if err != nil {
		run.Err = err
		return run, &FileError{Path: path, Err: err}
	}

	if s.metrics != nil {
		s.metrics.FileApplied(info.Kind, result.Applied, result.ParseFailures, len(result.LocalProblems))
		for _, c := range problems.Transitions() {
			s.metrics.Transitions(info.Kind, c.String(), reconciled.Count(c))
		}
	}

	s.logger.Info("loaded values",
		"kind", info.Kind,
		"file", info.Name(),
		"count", result.Applied,
		"lines", result.Lines,
		"parse_problems", result.ParseFailures,
		"skipped", len(result.LocalProblems),
	)
	return run, nil
}

func (s *Service) warnUnmappedColumns(info FileInfo, file *parser.File, fields codec.FieldMap) {
	for _, column := range file.RawHeader {
		if _, known := fields.Lookup(column); !known {
			s.logger.Warn("ignoring unmapped column", "kind", info.Kind, "file", info.Name(), "column", column)
		}
	}
}

func ledgerEntry(info FileInfo, result ApplyResult) domain.ImportLedgerEntry {
	outcome := domain.OutcomeSuccess
	if result.ParseFailures > 0 || len(result.LocalProblems) > 0 {
		outcome = domain.OutcomeLocalError
	}
	message := fmt.Sprintf("applied %d of %d lines from '%s'", result.Applied, result.Lines, info.Name())
	if result.ParseFailures > 0 {
		message += fmt.Sprintf("; %d lines with parse problems", result.ParseFailures)
	}
	if n := len(result.LocalProblems); n > 0 {
		message += fmt.Sprintf("; %d lines skipped", n)
	}
	return domain.NewImportLedgerEntry(info.Kind, info.Date, outcome, message).WithApplied(result.Applied)
}

// finish scans the open markers, composes and persists the report and
// notifies when it is worth it.
func (s *Service) finish(ctx context.Context, startedAt time.Time, req ImportRequest, summary *ImportSummary) error {
	input := report.Input{
		StartedAt: startedAt,
		Files:     summary.Files,
		Open:      map[domain.Kind][]problems.OpenMarker{},
	}

	var errs []error
	for _, kind := range input.Kinds() {
		open, err := s.reconciler.Open(ctx, kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		input.Open[kind] = open
		if s.metrics != nil {
			s.metrics.OpenProblems(kind, len(open))
		}
	}

	summary.Report = report.Compose(input)

	if s.reports != nil {
		forFile := ""
		if len(req.Paths) == 1 {
			forFile = req.Paths[0]
		}
		path, err := s.reports.Save(summary.Report, startedAt, forFile)
		if err != nil {
			errs = append(errs, err)
		} else {
			summary.ReportPath = path
			s.logger.Info("report written", "path", path)
		}
	}

	if summary.Report.WorthNotifying {
		if err := s.notifier.Send(ctx, summary.Report.Subject, summary.Report.Body); err != nil {
			errs = append(errs, err)
		} else {
			summary.Notified = true
		}
	}

	if s.metrics != nil {
		s.metrics.Finished(s.now())
		if s.metricsPath != "" {
			if err := s.metrics.WriteTextfile(s.metricsPath); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// LastImports returns the latest ledger entry of each kind.
func (s *Service) LastImports(ctx context.Context) (map[domain.Kind]domain.ImportLedgerEntry, error) {
	return s.store.Ledger().LastByKind(ctx)
}

// OpenProblems lists the open markers of the given kinds, or of every kind.
func (s *Service) OpenProblems(ctx context.Context, kinds ...domain.Kind) (map[domain.Kind][]problems.OpenMarker, error) {
	if len(kinds) == 0 {
		kinds = domain.KnownKinds()
	}
	open := make(map[domain.Kind][]problems.OpenMarker, len(kinds))
	for _, kind := range kinds {
		markers, err := s.reconciler.Open(ctx, kind)
		if err != nil {
			return nil, err
		}
		open[kind] = markers
	}
	return open, nil
}
