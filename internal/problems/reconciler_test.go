package problems

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/rpattn/afsync/internal/codec"
	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersHeader = "Identifiant AF\tPrénom\tNom d'état civil\tType d'utilisateur\n"

type staticLabels map[int64]string

func (s staticLabels) Prime(context.Context, domain.Kind, []int64) {}

func (s staticLabels) Label(_ context.Context, _ domain.Kind, id int64) string {
	if label, ok := s[id]; ok {
		return label
	}
	return domain.UnknownLabel(id)
}

// parseUsers parses a users file and groups its outcomes by entity.
func parseUsers(t *testing.T, path, body string) ([]EntityLines, []parser.ParseOutcome) {
	t.Helper()
	fields, err := codec.ForKind(domain.KindUsers)
	require.NoError(t, err)
	f, err := parser.Parse(domain.KindUsers, path, []byte(usersHeader+body), fields)
	require.NoError(t, err)

	var (
		entities     []EntityLines
		unidentified []parser.ParseOutcome
		index        = map[int64]int{}
	)
	for outcome := range f.Outcomes() {
		if !outcome.EntityID.Valid {
			unidentified = append(unidentified, outcome)
			continue
		}
		i, ok := index[outcome.EntityID.Value]
		if !ok {
			i = len(entities)
			index[outcome.EntityID.Value] = i
			entities = append(entities, EntityLines{ID: outcome.EntityID.Value})
		}
		entities[i].Lines = append(entities[i].Lines, outcome)
	}
	return entities, unidentified
}

func reconcileFile(t *testing.T, r *Reconciler, path, body string) Result {
	t.Helper()
	ctx := context.Background()
	snapshot, err := r.Snapshot(ctx, domain.KindUsers)
	require.NoError(t, err)
	entities, unidentified := parseUsers(t, path, body)
	result, err := r.Reconcile(ctx, snapshot, path, entities, unidentified)
	require.NoError(t, err)
	return result
}

func archiveFiles(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, archiveDir, string(domain.KindUsers)))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CaseClean, Classify(false, false))
	assert.Equal(t, CaseNew, Classify(false, true))
	assert.Equal(t, CaseResolved, Classify(true, false))
	assert.Equal(t, CaseStill, Classify(true, true))
	assert.Equal(t, "resolved", CaseResolved.String())
}

func TestReconcileNewThenResolved(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(root)
	r := NewReconciler(store, staticLabels{2: "jdoe (AF ID 2)"}, nil)

	first := reconcileFile(t, r, "/in/exportusers-src-X-20200101.csv", "1\tAnn\tLee\t1\n2\tJohn\tDoe\tx\n")
	require.Len(t, first.Transitions, 1)
	assert.Equal(t, CaseNew, first.Transitions[0].Case)
	assert.Equal(t, int64(2), first.Transitions[0].EntityID)
	assert.Equal(t, "jdoe (AF ID 2)", first.Transitions[0].Label)
	assert.Equal(t, 1, first.Clean)

	markerPath := filepath.Join(root, markerDir, "users", "2.rej")
	dump, err := os.ReadFile(markerPath)
	require.NoError(t, err)
	assert.Contains(t, string(dump), "Problems for jdoe (AF ID 2)")
	assert.Contains(t, string(dump), "user_kind")

	archived := archiveFiles(t, root)
	require.Len(t, archived, 1)
	assert.True(t, strings.HasPrefix(archived[0], "2__exportusers-src-X-20200101.csv__new__jdoe_AF_ID_2__"), archived[0])

	second := reconcileFile(t, r, "/in/exportusers-src-X-20200102.csv", "2\tJohn\tDoe\t1\n")
	require.Len(t, second.Transitions, 1)
	resolved := second.Transitions[0]
	assert.Equal(t, CaseResolved, resolved.Case)
	assert.Equal(t, string(dump), resolved.PreviousMarker)

	_, err = os.Stat(markerPath)
	assert.True(t, os.IsNotExist(err), "marker should be deleted")

	archived = archiveFiles(t, root)
	assert.Len(t, archived, 2)
	assert.True(t, slices.ContainsFunc(archived, func(name string) bool {
		return strings.Contains(name, "__resolved__")
	}))
}

func TestReconcileIdempotentLeavesUnrelatedMarkers(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewFileStore(root)
	require.NoError(t, store.WriteMarker(ctx, domain.KindUsers, 9, "old problem\n"))
	r := NewReconciler(store, nil, nil)

	body := "1\tAnn\tLee\t1\n2\tJohn\tDoe\t1\n"
	for range 2 {
		result := reconcileFile(t, r, "exportusers-src-X-20200101.csv", body)
		assert.Empty(t, result.Transitions)
		assert.Equal(t, 2, result.Clean)
	}

	ids, err := store.ListMarked(ctx, domain.KindUsers)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, ids)
}

func TestResolutionNeedsEveryRowOfTheEntity(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	require.NoError(t, store.WriteMarker(ctx, domain.KindUsers, 2, "old\n"))
	r := NewReconciler(store, nil, nil)

	result := reconcileFile(t, r, "exportusers-src-X-20200103.csv", "2\tJohn\tDoe\t1\n2\tJohn\tDoe\tbad\n")
	require.Len(t, result.Transitions, 1)
	assert.Equal(t, CaseStill, result.Transitions[0].Case)
	assert.Equal(t, "unknown (AF ID 2)", result.Transitions[0].Label)

	ids, err := store.ListMarked(ctx, domain.KindUsers)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestStillAppendsOnlyUnseenLines(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	r := NewReconciler(store, nil, nil)

	reconcileFile(t, r, "exportusers-src-X-20200101.csv", "2\tJohn\tDoe\tx\n")
	before, err := store.ReadMarker(ctx, domain.KindUsers, 2)
	require.NoError(t, err)

	result := reconcileFile(t, r, "exportusers-src-X-20200102.csv", "2\tJohn\tDoe\tx\n")
	require.Len(t, result.Transitions, 1)
	assert.Equal(t, CaseStill, result.Transitions[0].Case)

	after, err := store.ReadMarker(ctx, domain.KindUsers, 2)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	reconcileFile(t, r, "exportusers-src-X-20200103.csv", "2\tJohn\tDoe\ty\n")
	after, err = store.ReadMarker(ctx, domain.KindUsers, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(after, "Hash: "))
}

func TestUnidentifiedLinesAreArchived(t *testing.T) {
	root := t.TempDir()
	r := NewReconciler(NewFileStore(root), nil, nil)

	result := reconcileFile(t, r, "exportusers-src-X-20200101.csv", "oops\tJohn\tDoe\t1\n")
	assert.Empty(t, result.Transitions)
	require.Len(t, result.Unidentified, 1)

	archived := archiveFiles(t, root)
	require.Len(t, archived, 1)
	assert.True(t, strings.HasPrefix(archived[0], "unknown__"), archived[0])

	reconcileFile(t, r, "exportusers-src-X-20200101.csv", "oops\tJohn\tDoe\t1\n")
	assert.Len(t, archiveFiles(t, root), 1, "identical entries are archived once")
}

func TestOpenListsMarkersWithLabels(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	require.NoError(t, store.WriteMarker(ctx, domain.KindUsers, 4, "dump four\n"))
	require.NoError(t, store.WriteMarker(ctx, domain.KindUsers, 3, "dump three\n"))
	r := NewReconciler(store, staticLabels{3: "three"}, nil)

	open, err := r.Open(ctx, domain.KindUsers)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, int64(3), open[0].EntityID)
	assert.Equal(t, "three", open[0].Label)
	assert.Equal(t, "unknown (AF ID 4)", open[1].Label)
	assert.Equal(t, "dump four\n", open[1].Dump)
}
