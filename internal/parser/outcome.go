package parser

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rpattn/afsync/internal/domain"
)

// EntityID is the directory id a line refers to, when it could be determined.
type EntityID struct {
	Value int64
	Valid bool
}

// KnownID returns a valid entity id.
func KnownID(v int64) EntityID {
	return EntityID{Value: v, Valid: true}
}

func (id EntityID) String() string {
	if !id.Valid {
		return "unknown"
	}
	return strconv.FormatInt(id.Value, 10)
}

// ParseOutcome is the result of parsing one physical data line. Record is
// only set when Problems is empty.
type ParseOutcome struct {
	Kind        domain.Kind
	EntityID    EntityID
	Problems    []string
	SourcePath  string
	Header      []string
	LineNumber  int
	ContentHash string
	RawLine     string
	LineDisplay string
	Cells       []string
	Record      domain.Record
}

// OK reports whether the line parsed without problems.
func (o ParseOutcome) OK() bool {
	return len(o.Problems) == 0
}

// SourceName returns the base name of the source file.
func (o ParseOutcome) SourceName() string {
	return filepath.Base(o.SourcePath)
}

// Describe renders the outcome for marker files, archives and reports.
func (o ParseOutcome) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s, line %d\n", o.SourceName(), o.LineNumber)
	fmt.Fprintf(&b, "Entity: %s\n", o.EntityID)
	fmt.Fprintf(&b, "Hash: %s\n", o.ContentHash)
	if o.OK() {
		b.WriteString("Status: accepted\n")
	} else {
		b.WriteString("Problems:\n")
		for _, p := range o.Problems {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
	}
	fmt.Fprintf(&b, "Line: %s\n", o.LineDisplay)
	if len(o.Cells) == len(o.Header) && len(o.Header) > 0 {
		b.WriteString("Fields:\n")
		for i, name := range o.Header {
			fmt.Fprintf(&b, "  %s: %q\n", name, o.Cells[i])
		}
	}
	return b.String()
}
