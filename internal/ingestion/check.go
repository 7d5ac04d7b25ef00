package ingestion

import (
	"fmt"
	"time"

	"github.com/rpattn/afsync/internal/codec"
	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/parser"
)

// CheckResult lists the problems of a file without applying it.
type CheckResult struct {
	Info     FileInfo
	Header   []string
	Lines    int
	Failures []parser.ParseOutcome
}

// CheckFile parses path with the codec of its kind. Nothing is stored and
// no marker is touched.
func CheckFile(path string, kind domain.Kind, date *time.Time) (CheckResult, error) {
	info, err := ResolveFile(path, kind, date)
	if err != nil {
		return CheckResult{}, err
	}
	result := CheckResult{Info: info}
	if info.SourceError {
		return result, &FileError{Path: path, Err: fmt.Errorf("error file found: '%s'", info.Name())}
	}

	fields, err := codec.ForKind(info.Kind)
	if err != nil {
		return result, &FileError{Path: path, Err: err}
	}
	file, err := parser.ParseFile(info.Kind, path, fields)
	if err != nil {
		return result, &FileError{Path: path, Err: err}
	}

	result.Header = file.Header
	for outcome := range file.Outcomes() {
		result.Lines++
		if !outcome.OK() {
			result.Failures = append(result.Failures, outcome)
		}
	}
	return result, nil
}
