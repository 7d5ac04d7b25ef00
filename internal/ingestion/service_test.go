package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/metrics"
	"github.com/rpattn/afsync/internal/problems"
	"github.com/rpattn/afsync/internal/report"
	"github.com/rpattn/afsync/internal/repository"
)

const (
	usersHeader   = "Identifiant AF\tPrénom\tNom d'état civil\tType d'utilisateur\n"
	jobsHeader    = "Identifiant AF\tIntitulé du poste\tEntreprise\n"
	membersHeader = "Identifiant AF utilisateur\tIdentifiant AF groupe\tRôle\n"
)

type memStore struct {
	accounts    map[int64]domain.Record
	groups      map[int64]domain.Record
	memberships map[[2]int64]domain.MembershipRole
	degrees     map[int64][]domain.Record
	jobs        map[int64][]domain.Record
	ledger      []domain.ImportLedgerEntry
	// reject makes account upserts of these ids fail like a constraint
	// violation.
	reject     map[int64]bool
	txCount    int
	savepoints int
	depth      int
}

func newMemStore() *memStore {
	return &memStore{
		accounts:    map[int64]domain.Record{},
		groups:      map[int64]domain.Record{},
		memberships: map[[2]int64]domain.MembershipRole{},
		degrees:     map[int64][]domain.Record{},
		jobs:        map[int64][]domain.Record{},
		reject:      map[int64]bool{},
	}
}

func (s *memStore) Accounts() repository.AccountRepository {
	return memOwners[domain.Account]{records: s.accounts, reject: s.reject}
}

func (s *memStore) Groups() repository.GroupRepository {
	return memOwners[domain.Group]{records: s.groups}
}

func (s *memStore) Memberships() repository.MembershipRepository { return memMemberships{s} }
func (s *memStore) Degrees() repository.DependentRepository      { return memDependents{s.degrees} }
func (s *memStore) Jobs() repository.DependentRepository         { return memDependents{s.jobs} }
func (s *memStore) Ledger() repository.ImportLedgerRepository    { return memLedger{s} }

func (s *memStore) WithTx(_ context.Context, fn func(repository.Store) error) error {
	if s.depth == 0 {
		s.txCount++
	} else {
		s.savepoints++
	}
	s.depth++
	defer func() { s.depth-- }()
	return fn(s)
}

type memOwners[T domain.Account | domain.Group] struct {
	records map[int64]domain.Record
	reject  map[int64]bool
}

func (m memOwners[T]) Upsert(_ context.Context, record domain.Record, lastUpdate time.Time) error {
	id, ok := record.Int64("af_id")
	if !ok {
		return fmt.Errorf("%w: record has no integer af_id", repository.ErrRejected)
	}
	if m.reject[id] {
		return fmt.Errorf("%w: upsert account: value violates a constraint", repository.ErrRejected)
	}
	stored := record.Clone()
	stored["last_update"] = lastUpdate
	m.records[id] = stored
	return nil
}

func (m memOwners[T]) GetByID(_ context.Context, id int64) (T, error) {
	var zero T
	if _, ok := m.records[id]; !ok {
		return zero, repository.ErrNotFound
	}
	return zero, nil
}

func (m memOwners[T]) GetByIDs(context.Context, []int64) ([]T, error) { return nil, nil }

func (m memOwners[T]) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := m.records[id]
	return ok, nil
}

type memMemberships struct{ s *memStore }

func (m memMemberships) Upsert(_ context.Context, groupID, accountID int64, role domain.MembershipRole) error {
	m.s.memberships[[2]int64{groupID, accountID}] = role
	return nil
}

type memDependents struct{ records map[int64][]domain.Record }

func (m memDependents) DeleteByOwner(_ context.Context, accountID int64) (int64, error) {
	n := int64(len(m.records[accountID]))
	delete(m.records, accountID)
	return n, nil
}

func (m memDependents) Insert(_ context.Context, record domain.Record) error {
	id, _ := record.Int64("account_id")
	m.records[id] = append(m.records[id], record)
	return nil
}

type memLedger struct{ s *memStore }

func (m memLedger) Record(_ context.Context, entry domain.ImportLedgerEntry) error {
	m.s.ledger = append(m.s.ledger, entry)
	return nil
}

func (m memLedger) LastByKind(context.Context) (map[domain.Kind]domain.ImportLedgerEntry, error) {
	last := map[domain.Kind]domain.ImportLedgerEntry{}
	for _, e := range m.s.ledger {
		last[e.Kind] = e
	}
	return last, nil
}

func (m memLedger) List(context.Context, domain.Kind, int, int) ([]domain.ImportLedgerEntry, error) {
	return m.s.ledger, nil
}

type recordingNotifier struct {
	subjects []string
}

func (n *recordingNotifier) Send(_ context.Context, subject, _ string) error {
	n.subjects = append(n.subjects, subject)
	return nil
}

type fixture struct {
	dir      string
	store    *memStore
	markers  *problems.FileStore
	notifier *recordingNotifier
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		store:    newMemStore(),
		markers:  problems.NewFileStore(filepath.Join(dir, "data")),
		notifier: &recordingNotifier{},
	}
	f.service = NewService(f.store, problems.NewReconciler(f.markers, nil, nil),
		WithNotifier(f.notifier),
		WithReportWriter(report.NewWriter(filepath.Join(dir, "data"))),
		WithClock(func() time.Time { return time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC) }),
	)
	return f
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func (f *fixture) marked(t *testing.T, kind domain.Kind) []int64 {
	t.Helper()
	ids, err := f.markers.ListMarked(context.Background(), kind)
	if err != nil {
		t.Fatalf("ListMarked returned error: %v", err)
	}
	return ids
}

func TestImportFilesNewThenResolved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.write(t, "exportusers-src-X-20200101.csv", usersHeader+"1\tAnn\tLee\t1\n2\tJohn\tDoe\tx\n")
	summary, err := f.service.ImportFiles(ctx, ImportRequest{Paths: []string{first}})
	if err != nil {
		t.Fatalf("ImportFiles returned error: %v", err)
	}

	if len(f.store.accounts) != 1 {
		t.Fatalf("expected 1 stored account, got %d", len(f.store.accounts))
	}
	if f.store.txCount != 1 {
		t.Fatalf("expected one transaction per file, got %d", f.store.txCount)
	}
	entry := f.store.ledger[0]
	if entry.Outcome != domain.OutcomeLocalError || *entry.NumApplied != 1 || !entry.IsIncremental {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
	if ids := f.marked(t, domain.KindUsers); len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("expected marker for 2, got %v", ids)
	}
	if !summary.Notified || !strings.Contains(f.notifier.subjects[0], "1 new") {
		t.Fatalf("expected notification for new problem, got %v", f.notifier.subjects)
	}
	if !strings.HasSuffix(summary.ReportPath, "_for_file_exportusers-src-X-20200101.csv.report.txt") {
		t.Fatalf("unexpected report path %s", summary.ReportPath)
	}
	if _, err := os.Stat(summary.ReportPath); err != nil {
		t.Fatalf("report not written: %v", err)
	}

	second := f.write(t, "exportusers-src-X-20200102.csv", usersHeader+"2\tJohn\tDoe\t1\n")
	summary, err = f.service.ImportFiles(ctx, ImportRequest{Paths: []string{second}})
	if err != nil {
		t.Fatalf("ImportFiles returned error: %v", err)
	}
	if got := summary.Files[0].Result.Count(problems.CaseResolved); got != 1 {
		t.Fatalf("expected one resolved entity, got %d", got)
	}
	if ids := f.marked(t, domain.KindUsers); len(ids) != 0 {
		t.Fatalf("expected marker to be deleted, got %v", ids)
	}
	if f.store.ledger[1].Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s", f.store.ledger[1].Outcome)
	}
	if got := f.store.accounts[2]["last_update"]; got != time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("expected last_update from file date, got %v", got)
	}
}

func TestImportFilesWithDestinationHeader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.write(t, "exportusers-src-X-20200101.csv", "af_id\tname\n1\tAlice\n2\t\n")
	summary, err := f.service.ImportFiles(ctx, ImportRequest{Paths: []string{first}})
	if err != nil {
		t.Fatalf("ImportFiles returned error: %v", err)
	}
	if got := f.store.accounts[1]["af_id"]; got != int64(1) {
		t.Fatalf("expected account 1 stored with an integer id, got %#v", got)
	}
	if got := f.store.accounts[1]["last_name"]; got != "Alice" {
		t.Fatalf("expected name column mapped to last_name, got %#v", got)
	}
	if _, stored := f.store.accounts[2]; stored {
		t.Fatalf("account 2 must not be stored")
	}

	run := summary.Files[0]
	if run.Applied != 1 || run.ParseFailures != 1 {
		t.Fatalf("expected 1 applied and 1 parse problem, got %+v", run)
	}
	if got := run.Result.Count(problems.CaseNew); got != 1 || run.Result.Transitions[0].EntityID != 2 {
		t.Fatalf("expected entity 2 as a new problem, got %+v", run.Result.Transitions)
	}
	if lines := run.Result.Transitions[0].Lines; !strings.Contains(lines[0].Problems[0], "missing required field") {
		t.Fatalf("unexpected problems %v", lines[0].Problems)
	}
	if ids := f.marked(t, domain.KindUsers); len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("expected marker for 2, got %v", ids)
	}
	entry := f.store.ledger[0]
	if entry.Outcome != domain.OutcomeLocalError || *entry.NumApplied != 1 {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}

	second := f.write(t, "exportusers-src-X-20200102.csv", "af_id\tname\n2\tBob\n")
	summary, err = f.service.ImportFiles(ctx, ImportRequest{Paths: []string{second}})
	if err != nil {
		t.Fatalf("ImportFiles returned error: %v", err)
	}
	if got := summary.Files[0].Result.Count(problems.CaseResolved); got != 1 {
		t.Fatalf("expected entity 2 resolved, got %+v", summary.Files[0].Result)
	}
	if ids := f.marked(t, domain.KindUsers); len(ids) != 0 {
		t.Fatalf("expected marker to be deleted, got %v", ids)
	}
	archived, err := os.ReadDir(filepath.Join(f.dir, "data", "problem_archive", "users"))
	if err != nil {
		t.Fatalf("failed to read archive: %v", err)
	}
	var resolved int
	for _, e := range archived {
		if strings.Contains(e.Name(), "__resolved__") {
			resolved++
		}
	}
	if resolved != 1 {
		t.Fatalf("expected one resolved archive entry, got %d", resolved)
	}
}

func TestRejectedRecordDoesNotAbortFile(t *testing.T) {
	f := newFixture(t)
	f.store.reject[2] = true

	path := f.write(t, "exportusers-src-X-20200101.csv", usersHeader+"1\tAnn\tLee\t1\n2\tJohn\tDoe\t1\n3\tEve\tRoe\t1\n")
	summary, err := f.service.ImportFiles(context.Background(), ImportRequest{Paths: []string{path}})
	if err != nil {
		t.Fatalf("ImportFiles returned error: %v", err)
	}

	run := summary.Files[0]
	if run.Applied != 2 || run.LocalProblems != 1 {
		t.Fatalf("expected 2 applied and 1 skipped, got %+v", run)
	}
	if _, ok := f.store.accounts[3]; !ok {
		t.Fatalf("lines after the rejected one must still be applied")
	}
	if f.store.txCount != 1 || f.store.savepoints != 3 {
		t.Fatalf("expected one transaction with a savepoint per record, got %d and %d", f.store.txCount, f.store.savepoints)
	}
	entry := f.store.ledger[0]
	if entry.Outcome != domain.OutcomeLocalError || !strings.Contains(entry.Message, "1 lines skipped") {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
}

func TestCleanRerunIsQuiet(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "exportusers-src-X-20200101.csv", usersHeader+"1\tAnn\tLee\t1\n")

	for range 2 {
		summary, err := f.service.ImportFiles(context.Background(), ImportRequest{Paths: []string{path}})
		if err != nil {
			t.Fatalf("ImportFiles returned error: %v", err)
		}
		if summary.Report.WorthNotifying {
			t.Fatalf("clean run must not notify: %s", summary.Report.Subject)
		}
		if summary.Files[0].Result.Clean != 1 {
			t.Fatalf("expected clean entity, got %+v", summary.Files[0].Result)
		}
	}
	if len(f.notifier.subjects) != 0 {
		t.Fatalf("unexpected notifications %v", f.notifier.subjects)
	}
}

func TestDependentsReplacePreviousRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	users := f.write(t, "exportusers-src-X-20200101.csv", usersHeader+"1\tAnn\tLee\t1\n")
	jobs := f.write(t, "exportuserjobs-src-X-20200101.csv", jobsHeader+"1\tEngineer\tACME\n1\tAdvisor\tInitech\n99\tGhost\tNobody\n")
	if _, err := f.service.ImportFiles(ctx, ImportRequest{Paths: []string{users, jobs}}); err != nil {
		t.Fatalf("ImportFiles returned error: %v", err)
	}
	if got := len(f.store.jobs[1]); got != 2 {
		t.Fatalf("expected 2 jobs, got %d", got)
	}
	if _, ok := f.store.jobs[99]; ok {
		t.Fatalf("job of a missing account must be skipped")
	}
	entry := f.store.ledger[1]
	if entry.Outcome != domain.OutcomeLocalError || !strings.Contains(entry.Message, "1 lines skipped") {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
	if ids := f.marked(t, domain.KindUserJobs); len(ids) != 0 {
		t.Fatalf("local problems must not create markers, got %v", ids)
	}

	again := f.write(t, "exportuserjobs-src-X-20200102.csv", jobsHeader+"1\tDirector\tACME\n")
	if _, err := f.service.ImportFiles(ctx, ImportRequest{Paths: []string{again}}); err != nil {
		t.Fatalf("ImportFiles returned error: %v", err)
	}
	if got := f.store.jobs[1]; len(got) != 1 || got[0]["title"] != "Director" {
		t.Fatalf("expected jobs to be replaced, got %v", got)
	}
}

func TestGroupMembersTranslateRoles(t *testing.T) {
	f := newFixture(t)
	f.store.accounts[1] = domain.Record{"af_id": int64(1)}
	f.store.groups[5] = domain.Record{"af_id": int64(5)}

	path := f.write(t, "exportgroupmembers-src-X-20200101.csv", membersHeader+"1\t5\tMembre\n1\t5\tchef\n1\t6\tmembre\n")
	summary, err := f.service.ImportFiles(context.Background(), ImportRequest{Paths: []string{path}})
	if err != nil {
		t.Fatalf("ImportFiles returned error: %v", err)
	}
	if role := f.store.memberships[[2]int64{5, 1}]; role != domain.RoleMember {
		t.Fatalf("expected member role, got %q", role)
	}
	if got := summary.Files[0].LocalProblems; got != 2 {
		t.Fatalf("expected 2 local problems, got %d", got)
	}
}

func TestImportStopsOnFatalError(t *testing.T) {
	f := newFixture(t)
	bad := f.write(t, "exportgroups-src-X-20200101.csv", "Identifiant AF\tname\tNom\n1\ta\tb\n")
	good := f.write(t, "exportusers-src-X-20200101.csv", usersHeader+"1\tAnn\tLee\t1\n")

	summary, err := f.service.ImportFiles(context.Background(), ImportRequest{Paths: []string{bad, good}})
	if !errors.Is(err, ErrDuplicateColumn) {
		t.Fatalf("expected ErrDuplicateColumn, got %v", err)
	}
	var fileErr *FileError
	if !errors.As(err, &fileErr) || fileErr.Path != bad {
		t.Fatalf("expected FileError for %s, got %v", bad, err)
	}
	if len(summary.Files) != 1 || len(f.store.accounts) != 0 {
		t.Fatalf("expected the run to stop after the failing file")
	}
	if len(f.store.ledger) != 0 {
		t.Fatalf("aborted file must not touch the store")
	}
	if !summary.Report.WorthNotifying {
		t.Fatalf("a failed file must be reported")
	}

	summary, err = f.service.ImportFiles(context.Background(), ImportRequest{Paths: []string{bad, good}, ContinueOnError: true})
	if !errors.Is(err, ErrDuplicateColumn) {
		t.Fatalf("expected ErrDuplicateColumn, got %v", err)
	}
	if len(summary.Files) != 2 || len(f.store.accounts) != 1 {
		t.Fatalf("expected the second file to be applied")
	}
}

func TestSourceErrorFileIsRecorded(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "exportusers-src-X-20200101.csv.error", "")

	if _, err := f.service.ImportFiles(context.Background(), ImportRequest{Paths: []string{path}}); err != nil {
		t.Fatalf("ImportFiles returned error: %v", err)
	}
	entry := f.store.ledger[0]
	if entry.Outcome != domain.OutcomeSourceError {
		t.Fatalf("expected source-error, got %s", entry.Outcome)
	}
	if entry.Message != "error file found: 'exportusers-src-X-20200101.csv.error'" {
		t.Fatalf("unexpected message %q", entry.Message)
	}
}

func TestImportWritesMetrics(t *testing.T) {
	f := newFixture(t)
	textfile := filepath.Join(f.dir, "afsync.prom")
	f.service = NewService(f.store, problems.NewReconciler(f.markers, nil, nil),
		WithMetrics(metrics.NewRecorder(), textfile))

	path := f.write(t, "exportusers-src-X-20200101.csv", usersHeader+"1\tAnn\tLee\t1\n2\tJohn\tDoe\tx\n")
	if _, err := f.service.ImportFiles(context.Background(), ImportRequest{Paths: []string{path}}); err != nil {
		t.Fatalf("ImportFiles returned error: %v", err)
	}
	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("metrics not written: %v", err)
	}
	if !strings.Contains(string(data), `afsync_open_problems{kind="users"} 1`) {
		t.Fatalf("unexpected metrics:\n%s", data)
	}
}

func TestOrderFiles(t *testing.T) {
	paths := []string{
		"exportuserjobs-s-x-20200102.csv",
		"notes.txt",
		"exportgroups-s-x-20200101.csv",
		"exportusers-s-x-20200102.csv",
		"exportusers-s-x-20200101.csv",
	}
	got := OrderFiles(paths)
	want := []string{
		"exportusers-s-x-20200101.csv",
		"exportgroups-s-x-20200101.csv",
		"exportusers-s-x-20200102.csv",
		"exportuserjobs-s-x-20200102.csv",
		"notes.txt",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected order:\n got %v\nwant %v", got, want)
	}
}

func TestCheckFileDoesNotTouchAnything(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "exportusers-src-X-20200101.csv", usersHeader+"1\tAnn\tLee\t1\n2\tJohn\tDoe\tx\n")

	result, err := CheckFile(path, "", nil)
	if err != nil {
		t.Fatalf("CheckFile returned error: %v", err)
	}
	if result.Lines != 2 || len(result.Failures) != 1 || result.Failures[0].LineNumber != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if ids := f.marked(t, domain.KindUsers); len(ids) != 0 {
		t.Fatalf("check must not create markers")
	}
}
