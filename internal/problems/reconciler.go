package problems

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/parser"
)

// LabelResolver names entities for humans. Implementations must not fail:
// unknown entities get a placeholder label.
type LabelResolver interface {
	// Prime announces the ids about to be resolved so they can be fetched
	// together.
	Prime(ctx context.Context, kind domain.Kind, ids []int64)
	Label(ctx context.Context, kind domain.Kind, id int64) string
}

// Snapshot is the marker state of one kind, read before a file is applied.
type Snapshot struct {
	Kind   domain.Kind
	marked map[int64]struct{}
}

// Marked reports whether id had a marker when the snapshot was taken.
func (s Snapshot) Marked(id int64) bool {
	_, ok := s.marked[id]
	return ok
}

// Len returns the number of markers in the snapshot.
func (s Snapshot) Len() int {
	return len(s.marked)
}

// Classification is the non-clean outcome of one entity in one file.
type Classification struct {
	Kind     domain.Kind
	EntityID int64
	Label    string
	Case     Case
	Lines    []parser.ParseOutcome
	// PreviousMarker holds the marker dump of a resolved entity.
	PreviousMarker string
}

// Result lists the transitions produced by one file.
type Result struct {
	Kind         domain.Kind
	SourcePath   string
	Transitions  []Classification
	Clean        int
	Unidentified []parser.ParseOutcome
}

// Count returns how many transitions have case c.
func (r Result) Count(c Case) int {
	if c == CaseClean {
		return r.Clean
	}
	n := 0
	for _, t := range r.Transitions {
		if t.Case == c {
			n++
		}
	}
	return n
}

// OpenMarker is a marker present in the store.
type OpenMarker struct {
	Kind     domain.Kind
	EntityID int64
	Label    string
	Dump     string
}

// Reconciler updates markers and the archive from the outcomes of a file.
type Reconciler struct {
	store  Store
	labels LabelResolver
	logger *slog.Logger
}

// NewReconciler wires a reconciler on store. labels may be nil, in which
// case every entity gets the placeholder label.
func NewReconciler(store Store, labels LabelResolver, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if labels == nil {
		labels = placeholderLabels{}
	}
	return &Reconciler{store: store, labels: labels, logger: logger}
}

// Store returns the underlying marker store.
func (r *Reconciler) Store() Store {
	return r.store
}

// Snapshot reads the current markers of kind.
func (r *Reconciler) Snapshot(ctx context.Context, kind domain.Kind) (Snapshot, error) {
	ids, err := r.store.ListMarked(ctx, kind)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to snapshot markers of %s: %w", kind, err)
	}
	marked := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		marked[id] = struct{}{}
	}
	return Snapshot{Kind: kind, marked: marked}, nil
}

// Reconcile classifies every entity of a file against snapshot and applies
// the marker and archive side effects. Entities absent from the file keep
// their markers.
func (r *Reconciler) Reconcile(ctx context.Context, snapshot Snapshot, sourcePath string, entities []EntityLines, unidentified []parser.ParseOutcome) (Result, error) {
	kind := snapshot.Kind
	result := Result{Kind: kind, SourcePath: sourcePath, Unidentified: unidentified}
	source := filepath.Base(sourcePath)

	type pending struct {
		entity EntityLines
		c      Case
	}
	var transitions []pending
	var ids []int64
	for _, entity := range entities {
		c := Classify(snapshot.Marked(entity.ID), entity.Affected())
		if c == CaseClean {
			result.Clean++
			continue
		}
		transitions = append(transitions, pending{entity: entity, c: c})
		ids = append(ids, entity.ID)
	}

	ownerKind := kind.OwnerKind()
	r.labels.Prime(ctx, ownerKind, ids)

	for _, p := range transitions {
		label := r.labels.Label(ctx, ownerKind, p.entity.ID)
		classification := Classification{
			Kind:     kind,
			EntityID: p.entity.ID,
			Label:    label,
			Case:     p.c,
			Lines:    p.entity.Lines,
		}

		var err error
		switch p.c {
		case CaseNew:
			err = r.markNew(ctx, kind, source, label, p.entity)
		case CaseStill:
			err = r.markStill(ctx, kind, source, label, p.entity)
		case CaseResolved:
			classification.PreviousMarker, err = r.resolve(ctx, kind, source, label, p.entity)
		}
		if err != nil {
			return result, fmt.Errorf("failed to reconcile %s %d: %w", kind, p.entity.ID, err)
		}

		r.logger.Debug("problem transition", "kind", kind, "entity_id", p.entity.ID, "case", p.c.String())
		result.Transitions = append(result.Transitions, classification)
	}

	for _, outcome := range unidentified {
		if _, err := r.store.Archive(ctx, ArchiveEntry{
			Kind:     kind,
			EntityID: outcome.EntityID,
			Source:   source,
			State:    StateNew,
			Label:    "unknown",
			Hash:     outcome.ContentHash,
			Body:     outcome.Describe(),
		}); err != nil {
			return result, fmt.Errorf("failed to archive unidentified line %d: %w", outcome.LineNumber, err)
		}
	}

	return result, nil
}

func (r *Reconciler) markNew(ctx context.Context, kind domain.Kind, source, label string, entity EntityLines) error {
	failing := entity.Failing()
	if err := r.store.WriteMarker(ctx, kind, entity.ID, dumpLines(label, failing)); err != nil {
		return err
	}
	return r.archive(ctx, kind, source, StateNew, label, failing)
}

// markStill appends the failing lines not already recorded in the marker.
func (r *Reconciler) markStill(ctx context.Context, kind domain.Kind, source, label string, entity EntityLines) error {
	current, err := r.store.ReadMarker(ctx, kind, entity.ID)
	if err != nil {
		return err
	}

	var fresh []parser.ParseOutcome
	for _, outcome := range entity.Failing() {
		if !strings.Contains(current, hashLine(outcome.ContentHash)) {
			fresh = append(fresh, outcome)
		}
	}
	if len(fresh) > 0 {
		if err := r.store.AppendMarker(ctx, kind, entity.ID, dumpOutcomes(fresh)); err != nil {
			return err
		}
	}
	return r.archive(ctx, kind, source, StateStill, label, entity.Failing())
}

func (r *Reconciler) resolve(ctx context.Context, kind domain.Kind, source, label string, entity EntityLines) (string, error) {
	previous, err := r.store.ReadMarker(ctx, kind, entity.ID)
	if err != nil {
		return "", err
	}
	if err := r.store.DeleteMarker(ctx, kind, entity.ID); err != nil {
		return "", err
	}
	return previous, r.archive(ctx, kind, source, StateResolved, label, entity.Lines)
}

func (r *Reconciler) archive(ctx context.Context, kind domain.Kind, source string, state ArchiveState, label string, outcomes []parser.ParseOutcome) error {
	for _, outcome := range outcomes {
		if _, err := r.store.Archive(ctx, ArchiveEntry{
			Kind:     kind,
			EntityID: outcome.EntityID,
			Source:   source,
			State:    state,
			Label:    label,
			Hash:     outcome.ContentHash,
			Body:     outcome.Describe(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// Open lists the markers of kind with their labels and dumps.
func (r *Reconciler) Open(ctx context.Context, kind domain.Kind) ([]OpenMarker, error) {
	ids, err := r.store.ListMarked(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list markers of %s: %w", kind, err)
	}

	ownerKind := kind.OwnerKind()
	r.labels.Prime(ctx, ownerKind, ids)

	markers := make([]OpenMarker, 0, len(ids))
	for _, id := range ids {
		dump, err := r.store.ReadMarker(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		markers = append(markers, OpenMarker{
			Kind:     kind,
			EntityID: id,
			Label:    r.labels.Label(ctx, ownerKind, id),
			Dump:     dump,
		})
	}
	return markers, nil
}

func dumpLines(label string, outcomes []parser.ParseOutcome) string {
	return fmt.Sprintf("Problems for %s\n\n", label) + dumpOutcomes(outcomes)
}

func dumpOutcomes(outcomes []parser.ParseOutcome) string {
	var b strings.Builder
	for _, outcome := range outcomes {
		b.WriteString(outcome.Describe())
		b.WriteString("\n")
	}
	return b.String()
}

func hashLine(hash string) string {
	return "Hash: " + hash + "\n"
}

type placeholderLabels struct{}

func (placeholderLabels) Prime(context.Context, domain.Kind, []int64) {}

func (placeholderLabels) Label(_ context.Context, _ domain.Kind, id int64) string {
	return domain.UnknownLabel(id)
}
