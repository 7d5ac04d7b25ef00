package ingestion

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/parser"
	"github.com/rpattn/afsync/internal/problems"
	"github.com/rpattn/afsync/internal/repository"
)

// LocalProblem is a line that parsed but could not be applied.
type LocalProblem struct {
	Outcome parser.ParseOutcome
	Reason  string
}

// ApplyResult summarizes the application of one file.
type ApplyResult struct {
	Kind          domain.Kind
	Lines         int
	Applied       int
	ParseFailures int
	LocalProblems []LocalProblem
	// Entities holds the outcomes of every identified entity, in order of
	// first appearance.
	Entities []problems.EntityLines
	// Unidentified holds failing lines whose entity id could not be recovered.
	Unidentified []parser.ParseOutcome
}

// Applier persists valid records of one kind.
type Applier struct {
	logger *slog.Logger
}

// NewApplier creates an applier logging skipped lines to logger.
func NewApplier(logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Applier{logger: logger}
}

// Apply stores the successful outcomes with store and groups every outcome
// by entity id. Each record is written in its own savepoint: a record the
// store rejects is skipped like a local problem, any other store error
// aborts the file.
func (a *Applier) Apply(ctx context.Context, store repository.Store, info FileInfo, outcomes iter.Seq[parser.ParseOutcome]) (ApplyResult, error) {
	result := ApplyResult{Kind: info.Kind}
	run := &applyRun{
		applier:  a,
		store:    store,
		info:     info,
		exists:   map[existsKey]bool{},
		replaced: map[int64]bool{},
	}

	index := map[int64]int{}
	for outcome := range outcomes {
		result.Lines++

		if !outcome.OK() {
			result.ParseFailures++
			if !outcome.EntityID.Valid {
				result.Unidentified = append(result.Unidentified, outcome)
				continue
			}
		} else {
			reason, err := run.apply(ctx, outcome)
			if err != nil {
				return result, fmt.Errorf("line %d: %w", outcome.LineNumber, err)
			}
			if reason != "" {
				a.logger.Warn("skipped line",
					"kind", info.Kind,
					"file", info.Name(),
					"line", outcome.LineNumber,
					"entity_id", outcome.EntityID.Value,
					"reason", reason,
				)
				result.LocalProblems = append(result.LocalProblems, LocalProblem{Outcome: outcome, Reason: reason})
			} else {
				result.Applied++
			}
		}

		id := outcome.EntityID.Value
		i, seen := index[id]
		if !seen {
			i = len(result.Entities)
			index[id] = i
			result.Entities = append(result.Entities, problems.EntityLines{ID: id})
		}
		result.Entities[i].Lines = append(result.Entities[i].Lines, outcome)
	}

	return result, nil
}

type existsKey struct {
	kind domain.Kind
	id   int64
}

type applyRun struct {
	applier  *Applier
	store    repository.Store
	info     FileInfo
	exists   map[existsKey]bool
	replaced map[int64]bool
}

// apply stores one record. A non-empty reason reports a local problem.
func (r *applyRun) apply(ctx context.Context, outcome parser.ParseOutcome) (string, error) {
	record := outcome.Record

	switch r.info.Kind {
	case domain.KindUsers:
		return r.write(ctx, func(s repository.Store) error {
			return s.Accounts().Upsert(ctx, record, r.info.Date)
		})

	case domain.KindGroups:
		return r.write(ctx, func(s repository.Store) error {
			return s.Groups().Upsert(ctx, record, r.info.Date)
		})

	case domain.KindGroupMembers:
		accountID, _ := record.Int64("account_id")
		groupID, _ := record.Int64("group_id")
		if reason, err := r.requireOwner(ctx, domain.KindUsers, accountID); reason != "" || err != nil {
			return reason, err
		}
		if reason, err := r.requireOwner(ctx, domain.KindGroups, groupID); reason != "" || err != nil {
			return reason, err
		}
		role, err := domain.ParseMembershipRole(record.String("role"))
		if err != nil {
			return err.Error(), nil
		}
		return r.write(ctx, func(s repository.Store) error {
			return s.Memberships().Upsert(ctx, groupID, accountID, role)
		})

	case domain.KindUserDegrees, domain.KindUserJobs:
		accountID, _ := record.Int64("account_id")
		if reason, err := r.requireOwner(ctx, domain.KindUsers, accountID); reason != "" || err != nil {
			return reason, err
		}
		if !r.replaced[accountID] {
			removed, err := r.dependents(r.store).DeleteByOwner(ctx, accountID)
			if err != nil {
				return "", err
			}
			r.replaced[accountID] = true
			if removed > 0 {
				r.applier.logger.Debug("replaced dependent records",
					"kind", r.info.Kind, "account_id", accountID, "removed", removed)
			}
		}
		return r.write(ctx, func(s repository.Store) error {
			return r.dependents(s).Insert(ctx, record)
		})
	}

	return "", fmt.Errorf("%w: %s", ErrUnknownKind, r.info.Kind)
}

func (r *applyRun) dependents(s repository.Store) repository.DependentRepository {
	if r.info.Kind == domain.KindUserJobs {
		return s.Jobs()
	}
	return s.Degrees()
}

// write runs one record write in a savepoint of the file transaction.
func (r *applyRun) write(ctx context.Context, fn func(repository.Store) error) (string, error) {
	err := r.store.WithTx(ctx, fn)
	if errors.Is(err, repository.ErrRejected) {
		return err.Error(), nil
	}
	return "", err
}

func (r *applyRun) requireOwner(ctx context.Context, kind domain.Kind, id int64) (string, error) {
	key := existsKey{kind: kind, id: id}
	found, cached := r.exists[key]
	if !cached {
		var err error
		if kind == domain.KindGroups {
			found, err = r.store.Groups().Exists(ctx, id)
		} else {
			found, err = r.store.Accounts().Exists(ctx, id)
		}
		if err != nil {
			return "", err
		}
		r.exists[key] = found
	}
	if !found {
		if kind == domain.KindGroups {
			return fmt.Sprintf("group %d does not exist", id), nil
		}
		return fmt.Sprintf("account %d does not exist", id), nil
	}
	return "", nil
}
