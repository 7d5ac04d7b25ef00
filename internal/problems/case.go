// Package problems tracks which entities have unresolved bad lines across
// independent import runs.
package problems

import "github.com/rpattn/afsync/internal/parser"

// Case classifies an entity by its marker before the run and its lines in
// the current file.
type Case int

const (
	CaseClean    Case = 0
	CaseNew      Case = 1
	CaseResolved Case = 2
	CaseStill    Case = 3
)

// Classify computes (wasMarked << 1) | affected.
func Classify(wasMarked, affected bool) Case {
	var c Case
	if wasMarked {
		c |= 2
	}
	if affected {
		c |= 1
	}
	return c
}

func (c Case) String() string {
	switch c {
	case CaseClean:
		return "clean"
	case CaseNew:
		return "new"
	case CaseResolved:
		return "resolved"
	case CaseStill:
		return "still"
	}
	return "invalid"
}

// Transitions lists the non-clean cases in report order.
func Transitions() []Case {
	return []Case{CaseNew, CaseStill, CaseResolved}
}

// EntityLines holds every outcome of one entity within a file.
type EntityLines struct {
	ID    int64
	Lines []parser.ParseOutcome
}

// Affected reports whether any line of the entity failed to parse.
func (e EntityLines) Affected() bool {
	for _, l := range e.Lines {
		if !l.OK() {
			return true
		}
	}
	return false
}

// Failing returns the lines that failed to parse.
func (e EntityLines) Failing() []parser.ParseOutcome {
	var out []parser.ParseOutcome
	for _, l := range e.Lines {
		if !l.OK() {
			out = append(out, l)
		}
	}
	return out
}
