package ingestion

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/parser"
)

const fileDateLayout = "20060102"

var (
	// ErrUnknownKind is returned when no kind can be derived for a file.
	ErrUnknownKind = errors.New("unknown export kind")
	// ErrUnknownDate is returned when no date can be derived for a file.
	ErrUnknownDate = errors.New("unknown export date")
	// ErrKindMismatch is returned when an explicit kind contradicts the file name.
	ErrKindMismatch = errors.New("export kind does not match file name")
	// ErrDateMismatch is returned when an explicit date contradicts the file name.
	ErrDateMismatch = errors.New("export date does not match file name")
	// ErrDuplicateColumn is returned when two header columns map onto one field.
	ErrDuplicateColumn = parser.ErrDuplicateColumn
	// ErrEmptyFile is returned for a file without header.
	ErrEmptyFile = parser.ErrEmptyFile

	exportFileName = regexp.MustCompile(`^export([a-z]+)-([^-]+)-(.*)-([0-9]{8})\.csv(\.error)?$`)
)

// FileError ties a fatal error to the file it aborted.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", filepath.Base(e.Path), e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// FileInfo is what an export file name says about its content.
type FileInfo struct {
	Path        string
	Kind        domain.Kind
	Source      string
	Date        time.Time
	SourceError bool
}

// Name returns the base name of the file.
func (i FileInfo) Name() string {
	return filepath.Base(i.Path)
}

// ResolveFile derives kind and date from the file name. Explicit values take
// over when the name does not carry them, and must agree with it otherwise.
func ResolveFile(path string, kind domain.Kind, date *time.Time) (FileInfo, error) {
	info := FileInfo{Path: path}

	var (
		nameKind domain.Kind
		nameDate *time.Time
	)
	if m := exportFileName.FindStringSubmatch(filepath.Base(path)); m != nil {
		parsedKind, err := domain.ParseKind(m[1])
		if err != nil {
			return info, &FileError{Path: path, Err: fmt.Errorf("%w: %v", ErrUnknownKind, err)}
		}
		parsedDate, err := time.Parse(fileDateLayout, m[4])
		if err != nil {
			return info, &FileError{Path: path, Err: fmt.Errorf("%w: %q", ErrUnknownDate, m[4])}
		}
		nameKind = parsedKind
		nameDate = &parsedDate
		info.Source = m[2]
		info.SourceError = m[5] != ""
	}

	switch {
	case kind != "" && nameKind != "" && kind != nameKind:
		return info, &FileError{Path: path, Err: fmt.Errorf("%w: given %s, name says %s", ErrKindMismatch, kind, nameKind)}
	case kind != "":
		if _, err := domain.ParseKind(string(kind)); err != nil {
			return info, &FileError{Path: path, Err: fmt.Errorf("%w: %v", ErrUnknownKind, err)}
		}
		info.Kind = kind
	case nameKind != "":
		info.Kind = nameKind
	default:
		return info, &FileError{Path: path, Err: ErrUnknownKind}
	}

	switch {
	case date != nil && nameDate != nil && !sameDay(*date, *nameDate):
		return info, &FileError{Path: path, Err: fmt.Errorf("%w: given %s, name says %s",
			ErrDateMismatch, date.Format(time.DateOnly), nameDate.Format(time.DateOnly))}
	case date != nil:
		info.Date = truncateDay(*date)
	case nameDate != nil:
		info.Date = *nameDate
	default:
		return info, &FileError{Path: path, Err: ErrUnknownDate}
	}

	return info, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return truncateDay(a).Equal(truncateDay(b))
}

// OrderFiles sorts export paths by date then kind dependency order. Paths
// whose name cannot be resolved keep their relative order at the end.
func OrderFiles(paths []string) []string {
	type entry struct {
		path string
		info FileInfo
		ok   bool
	}
	entries := make([]entry, len(paths))
	for i, p := range paths {
		info, err := ResolveFile(p, "", nil)
		entries[i] = entry{path: p, info: info, ok: err == nil}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ok != b.ok {
			return a.ok
		}
		if !a.ok {
			return false
		}
		if !a.info.Date.Equal(b.info.Date) {
			return a.info.Date.Before(b.info.Date)
		}
		return a.info.Kind.Order() < b.info.Kind.Order()
	})

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out
}
