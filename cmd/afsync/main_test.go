package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/ingestion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersHeader = "Identifiant AF\tPrénom\tNom d'état civil\tType d'utilisateur\n"

func writeExport(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCommandTree(t *testing.T) {
	root := buildRootCmd()

	for _, name := range []string{"import", "check", "status", "problems", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	list, _, err := root.Find([]string{"problems", "list"})
	require.NoError(t, err)
	assert.NotNil(t, list.Flags().Lookup("kind"))

	imp, _, err := root.Find([]string{"import"})
	require.NoError(t, err)
	for _, flag := range []string{"dir", "kind", "date", "continue-on-error"} {
		assert.NotNil(t, imp.Flags().Lookup(flag), flag)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestCheckCommandReportsProblemLines(t *testing.T) {
	dir := t.TempDir()
	path := writeExport(t, dir, "exportusers-src-X-20200101.csv", usersHeader+"1\tAnn\tLee\t1\n2\tJohn\tDoe\tx\n")

	root := buildRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"check", path})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, out.String(), "2 lines, 1 with problems")
	assert.Contains(t, out.String(), "line 2")
}

func TestCheckCommandCleanFile(t *testing.T) {
	dir := t.TempDir()
	path := writeExport(t, dir, "exportusers-src-X-20200101.csv", usersHeader+"1\tAnn\tLee\t1\n")

	root := buildRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"check", path})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "1 lines, 0 with problems")
}

func TestResolveOverrides(t *testing.T) {
	kind, date, err := resolveOverrides("users", "2020-01-02")
	require.NoError(t, err)
	assert.Equal(t, domain.KindUsers, kind)
	require.NotNil(t, date)
	assert.True(t, date.Equal(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)))

	_, date, err = resolveOverrides("", "20200102")
	require.NoError(t, err)
	require.NotNil(t, date)

	_, _, err = resolveOverrides("nope", "")
	assert.ErrorIs(t, err, ingestion.ErrUnknownKind)

	_, _, err = resolveOverrides("", "yesterday")
	assert.ErrorIs(t, err, ingestion.ErrUnknownDate)
}

func TestListExportsOrdersByDateThenKind(t *testing.T) {
	dir := t.TempDir()
	jobs := writeExport(t, dir, "exportuserjobs-src-X-20200101.csv", "")
	users2 := writeExport(t, dir, "exportusers-src-X-20200102.csv", "")
	users1 := writeExport(t, dir, "exportusers-src-X-20200101.csv", "")
	writeExport(t, dir, "notes.txt", "")

	paths, err := listExports(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{users1, jobs, users2}, paths)
}
