// Package parser reads export files line by line without letting a single
// malformed line abort the file.
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rpattn/afsync/internal/codec"
	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/pkg/validator"
)

// entityIDPrefixLimit bounds how far into a corrupt line the id is searched.
const entityIDPrefixLimit = 20

var (
	// ErrEmptyFile is returned for a file without a header line.
	ErrEmptyFile = errors.New("file is empty")
	// ErrDuplicateColumn is returned when two columns map onto one field.
	ErrDuplicateColumn = errors.New("duplicate destination column")
	// ErrMalformedHeader is returned when the header line cannot be split.
	ErrMalformedHeader = errors.New("malformed header")
)

// File is an export file whose header has been validated. Its data lines are
// parsed lazily by Outcomes.
type File struct {
	Path      string
	Kind      domain.Kind
	RawHeader []string
	Header    []string

	fields      []codec.Field
	key         codec.Field
	definitions []validator.FieldDefinition
	lines       []string
	validator   *validator.RecordValidator
}

// ParseFile reads the whole file at path and validates its header.
func ParseFile(kind domain.Kind, path string, fields codec.FieldMap) (*File, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(kind, path, payload, fields)
}

// Parse validates the header of payload. Header problems are fatal for the
// whole file since every data line depends on it.
func Parse(kind domain.Kind, path string, payload []byte, fields codec.FieldMap) (*File, error) {
	lines := splitPhysicalLines(payload)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	rawHeader, err := splitLine(trimCarriageReturn(lines[0]))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformedHeader, err)
	}

	f := &File{
		Path:      path,
		Kind:      kind,
		RawHeader: rawHeader,
		Header:    make([]string, len(rawHeader)),
		fields:    make([]codec.Field, len(rawHeader)),
		lines:     lines[1:],
		validator: validator.NewRecordValidator(),
	}
	f.key, _ = fields.Key()

	seen := make(map[string]string, len(rawHeader))
	for i, column := range rawHeader {
		field, _ := fields.Lookup(column)
		if previous, dup := seen[field.Name]; dup {
			return nil, fmt.Errorf("%s: %w %q (columns %q and %q)", path, ErrDuplicateColumn, field.Name, previous, column)
		}
		seen[field.Name] = column
		f.Header[i] = field.Name
		f.fields[i] = field
		f.definitions = append(f.definitions, field.Definition())
	}

	return f, nil
}

// Len returns the number of data lines.
func (f *File) Len() int {
	return len(f.lines)
}

// Outcomes yields exactly one ParseOutcome per data line, in file order.
func (f *File) Outcomes() iter.Seq[ParseOutcome] {
	return func(yield func(ParseOutcome) bool) {
		for i, line := range f.lines {
			if !yield(f.parseLine(i+1, line)) {
				return
			}
		}
	}
}

// parseLine hashes the physical line as read, terminator excluded.
func (f *File) parseLine(lineNumber int, raw string) ParseOutcome {
	sum := sha256.Sum256([]byte(raw))
	line := trimCarriageReturn(raw)
	outcome := ParseOutcome{
		Kind:        f.Kind,
		SourcePath:  f.Path,
		Header:      f.Header,
		LineNumber:  lineNumber,
		ContentHash: hex.EncodeToString(sum[:]),
		RawLine:     raw,
		LineDisplay: displayLine(line),
	}

	record, id, problems := f.convert(line, &outcome)
	problems = append(encodingProblems(line), problems...)
	if len(problems) > 0 {
		outcome.Problems = problems
		if id.Valid {
			outcome.EntityID = id
		} else {
			outcome.EntityID = guessEntityID(line)
		}
		return outcome
	}

	outcome.EntityID = id
	outcome.Record = record
	return outcome
}

// convert applies the column converters. The returned id is valid whenever
// the first column converted to an integer, even if other cells failed.
func (f *File) convert(line string, outcome *ParseOutcome) (domain.Record, EntityID, []string) {
	cells, err := splitLine(line)
	if err != nil {
		return nil, EntityID{}, []string{err.Error()}
	}
	outcome.Cells = cells

	if len(cells) != len(f.fields) {
		return nil, EntityID{}, []string{fmt.Sprintf("line has %d fields, header has %d", len(cells), len(f.fields))}
	}

	var problems []string
	record := make(domain.Record, len(cells))
	for i, field := range f.fields {
		value, convErr := field.Convert(cells[i])
		if convErr != nil {
			problems = append(problems, fmt.Sprintf("field '%s' (column '%s'): %v", field.Name, field.Column, convErr))
			continue
		}
		record[field.Name] = value
	}

	id := f.entityIDFrom(record)
	if len(problems) > 0 {
		return nil, id, problems
	}

	if result := f.validator.ValidateRecord(record, f.definitions); !result.IsValid {
		return nil, id, result.Messages()
	}

	if !id.Valid {
		return nil, id, []string{fmt.Sprintf("missing entity id in column '%s'", f.key.Column)}
	}
	return record, id, nil
}

// entityIDFrom reads the converted key field. Only an integer counts: a
// record that cannot be keyed must never reach the store.
func (f *File) entityIDFrom(record domain.Record) EntityID {
	if v, ok := record[f.key.Name].(int64); ok && v >= 0 {
		return KnownID(v)
	}
	return EntityID{}
}

// encodingProblems reports bytes the store cannot hold as text.
func encodingProblems(line string) []string {
	var problems []string
	if !utf8.ValidString(line) {
		problems = append(problems, "line is not valid UTF-8")
	}
	if i := strings.IndexByte(line, 0); i >= 0 {
		problems = append(problems, fmt.Sprintf("line contains a NUL byte at offset %d", i))
	}
	return problems
}

// guessEntityID extracts an id from the text before the first tab. The
// result is a hint only: a corrupt line may name an unrelated entity.
func guessEntityID(line string) EntityID {
	prefix := line
	if len(prefix) > entityIDPrefixLimit {
		prefix = prefix[:entityIDPrefixLimit]
	}
	idx := strings.IndexByte(prefix, fieldDelimiter)
	if idx <= 0 {
		return EntityID{}
	}
	candidate := prefix[:idx]
	for _, r := range candidate {
		if r < '0' || r > '9' {
			return EntityID{}
		}
	}
	n, err := strconv.ParseInt(candidate, 10, 64)
	if err != nil {
		return EntityID{}
	}
	return KnownID(n)
}
