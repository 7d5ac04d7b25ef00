// Package report turns the outcome of an import run into a human readable
// summary and decides whether it deserves a notification.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/problems"
)

// FileRun is what happened to one input file.
type FileRun struct {
	Name          string
	Kind          domain.Kind
	Date          time.Time
	Entry         *domain.ImportLedgerEntry
	Lines         int
	Applied       int
	ParseFailures int
	LocalProblems int
	Result        problems.Result
	// Err is set when the file was aborted.
	Err error
}

// Input gathers everything one invocation produced.
type Input struct {
	StartedAt time.Time
	Files     []FileRun
	// Open holds the markers still present after the run, for every kind
	// the run touched.
	Open map[domain.Kind][]problems.OpenMarker
}

// Report is the composed summary.
type Report struct {
	Subject        string
	Body           string
	WorthNotifying bool
	Counts         map[problems.Case]int
	OpenCount      int
}

// Kinds returns the kinds of the processed files in dependency order.
func (in Input) Kinds() []domain.Kind {
	seen := map[domain.Kind]bool{}
	for _, f := range in.Files {
		seen[f.Kind] = true
	}
	var kinds []domain.Kind
	for _, k := range domain.KnownKinds() {
		if seen[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Compose builds the report of a run.
func Compose(in Input) Report {
	counts := map[problems.Case]int{}
	for _, f := range in.Files {
		for _, c := range problems.Transitions() {
			counts[c] += f.Result.Count(c)
		}
	}

	openCount := 0
	for _, markers := range in.Open {
		openCount += len(markers)
	}

	failed := 0
	for _, f := range in.Files {
		if f.Err != nil {
			failed++
		}
	}

	rep := Report{
		Counts:    counts,
		OpenCount: openCount,
		WorthNotifying: counts[problems.CaseNew] > 0 ||
			counts[problems.CaseStill] > 0 ||
			counts[problems.CaseResolved] > 0 ||
			openCount > 0 ||
			failed > 0,
	}
	rep.Subject = subject(counts, openCount, failed)

	var b strings.Builder
	fmt.Fprintf(&b, "Import run started %s\n", in.StartedAt.Format(time.RFC3339))
	writeFiles(&b, in.Files)
	writeTransitions(&b, in.Files)
	writeOpen(&b, in)
	writeResolved(&b, in.Files)
	rep.Body = b.String()

	return rep
}

func subject(counts map[problems.Case]int, open, failed int) string {
	parts := []string{
		fmt.Sprintf("%d new", counts[problems.CaseNew]),
		fmt.Sprintf("%d still", counts[problems.CaseStill]),
		fmt.Sprintf("%d resolved", counts[problems.CaseResolved]),
	}
	s := fmt.Sprintf("import problems: %s; %d open", strings.Join(parts, ", "), open)
	if failed > 0 {
		s += fmt.Sprintf("; %d file(s) failed", failed)
	}
	return s
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
}

func writeFiles(b *strings.Builder, files []FileRun) {
	section(b, "Files processed")
	if len(files) == 0 {
		b.WriteString("(none)\n")
		return
	}
	for _, f := range files {
		fmt.Fprintf(b, "- %s (%s, %s): ", f.Name, f.Kind, f.Date.Format(time.DateOnly))
		switch {
		case f.Err != nil:
			fmt.Fprintf(b, "FAILED: %v\n", f.Err)
		case f.Entry != nil && f.Entry.Outcome == domain.OutcomeSourceError:
			fmt.Fprintf(b, "%s: %s\n", f.Entry.Outcome, f.Entry.Message)
		default:
			outcome := domain.OutcomeSuccess
			if f.Entry != nil {
				outcome = f.Entry.Outcome
			}
			fmt.Fprintf(b, "%s, %d lines, %d applied, %d parse problems, %d skipped\n",
				outcome, f.Lines, f.Applied, f.ParseFailures, f.LocalProblems)
		}
	}
}

func writeTransitions(b *strings.Builder, files []FileRun) {
	section(b, "Transitions")
	wrote := false
	for _, f := range files {
		if len(f.Result.Transitions) == 0 && len(f.Result.Unidentified) == 0 {
			continue
		}
		wrote = true
		fmt.Fprintf(b, "%s\n", f.Name)
		for _, c := range problems.Transitions() {
			for _, t := range f.Result.Transitions {
				if t.Case == c {
					fmt.Fprintf(b, "  %-8s %s\n", c.String()+":", t.Label)
				}
			}
		}
		for _, u := range f.Result.Unidentified {
			fmt.Fprintf(b, "  %-8s line %d: %s\n", "unknown:", u.LineNumber, strings.Join(u.Problems, "; "))
		}
	}
	if !wrote {
		b.WriteString("(none)\n")
	}
}

func writeOpen(b *strings.Builder, in Input) {
	section(b, "Open problems")
	wrote := false
	for _, kind := range in.Kinds() {
		markers := in.Open[kind]
		if len(markers) == 0 {
			continue
		}
		wrote = true
		fmt.Fprintf(b, "%s (%d)\n", kind, len(markers))
		for _, m := range markers {
			fmt.Fprintf(b, "  - %s\n", m.Label)
		}
	}
	if !wrote {
		b.WriteString("(none)\n")
	}
}

func writeResolved(b *strings.Builder, files []FileRun) {
	var resolved []problems.Classification
	for _, f := range files {
		for _, t := range f.Result.Transitions {
			if t.Case == problems.CaseResolved {
				resolved = append(resolved, t)
			}
		}
	}
	if len(resolved) == 0 {
		return
	}

	section(b, "Resolved details")
	for _, t := range resolved {
		fmt.Fprintf(b, "--- %s (%s)\n", t.Label, t.Kind)
		if t.PreviousMarker != "" {
			b.WriteString("Previously:\n")
			b.WriteString(indent(t.PreviousMarker))
		}
		b.WriteString("Now:\n")
		for _, line := range t.Lines {
			b.WriteString(indent(line.Describe()))
		}
	}
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n") + "\n"
}
