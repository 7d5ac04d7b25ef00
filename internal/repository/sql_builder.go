package repository

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rpattn/afsync/internal/codec"
	"github.com/rpattn/afsync/internal/domain"
)

// table describes a destination table and the columns an import may write.
type table struct {
	name    string
	key     []string
	columns map[string]struct{}
}

func newTable(kind domain.Kind, key []string, extra ...string) table {
	fields, err := codec.ForKind(kind)
	if err != nil {
		panic(err)
	}
	columns := fields.Destinations()
	for _, c := range extra {
		columns[c] = struct{}{}
	}
	return table{name: kind.Table(), key: key, columns: columns}
}

var (
	accountTable = newTable(domain.KindUsers, []string{"af_id"}, "last_update", "deleted_since")
	groupTable   = newTable(domain.KindGroups, []string{"af_id"}, "last_update")
	degreeTable  = newTable(domain.KindUserDegrees, nil)
	jobTable     = newTable(domain.KindUserJobs, nil)
)

// project keeps the record fields the table knows about, in a stable order.
func (t table) project(record domain.Record) ([]string, []any) {
	columns := make([]string, 0, len(record))
	for name := range record {
		if _, ok := t.columns[name]; ok {
			columns = append(columns, name)
		}
	}
	sort.Strings(columns)

	args := make([]any, len(columns))
	for i, c := range columns {
		args[i] = record[c]
	}
	return columns, args
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func quoteColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return strings.Join(quoted, ", ")
}

// insertSQL builds a plain INSERT for the given columns.
func (t table) insertSQL(columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, quoteColumns(columns), placeholders(len(columns)))
}

// upsertSQL builds an INSERT that updates the given columns on key conflict.
// Columns absent from the record are left untouched.
func (t table) upsertSQL(columns []string) string {
	keys := make(map[string]struct{}, len(t.key))
	for _, k := range t.key {
		keys[k] = struct{}{}
	}

	var updates []string
	for _, c := range columns {
		if _, isKey := keys[c]; isKey {
			continue
		}
		updates = append(updates, fmt.Sprintf("%q = EXCLUDED.%q", c, c))
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) %s", t.insertSQL(columns), quoteColumns(t.key), conflict)
}
