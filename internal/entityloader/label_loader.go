package entityloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/internal/repository"

	"github.com/graph-gophers/dataloader"
)

// LabelLoader batches account and group lookups to label entities in
// reports. Lookups never fail: unknown ids get a placeholder.
type LabelLoader struct {
	Loader *dataloader.Loader
	logger *slog.Logger
}

// labelKey formats "<kind>:<id>" with the kind of the owning entity.
func labelKey(kind domain.Kind, id int64) dataloader.Key {
	return dataloader.StringKey(string(kind.OwnerKind()) + ":" + strconv.FormatInt(id, 10))
}

func splitKey(key string) (domain.Kind, int64, error) {
	kind, raw, ok := strings.Cut(key, ":")
	if !ok {
		return "", 0, fmt.Errorf("invalid label key %q", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid label key %q: %w", key, err)
	}
	return domain.Kind(kind), id, nil
}

func NewLabelLoader(accounts repository.AccountRepository, groups repository.GroupRepository, logger *slog.Logger) *LabelLoader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		var accountIDs, groupIDs []int64
		for i, k := range keys {
			kind, id, err := splitKey(k.String())
			if err != nil {
				results[i] = &dataloader.Result{Error: err}
				continue
			}
			if kind == domain.KindGroups {
				groupIDs = append(groupIDs, id)
			} else {
				accountIDs = append(accountIDs, id)
			}
		}

		labels := make(map[string]string, len(keys))
		var fetchErr error
		if len(accountIDs) > 0 {
			found, err := accounts.GetByIDs(ctx, accountIDs)
			fetchErr = errors.Join(fetchErr, err)
			for _, a := range found {
				labels[labelKey(domain.KindUsers, a.AFID).String()] = a.Label()
			}
		}
		if len(groupIDs) > 0 {
			found, err := groups.GetByIDs(ctx, groupIDs)
			fetchErr = errors.Join(fetchErr, err)
			for _, g := range found {
				labels[labelKey(domain.KindGroups, g.AFID).String()] = g.Label()
			}
		}

		// Build results in the same order as keys
		for i, k := range keys {
			if results[i] != nil {
				continue
			}
			if label, ok := labels[k.String()]; ok {
				results[i] = &dataloader.Result{Data: label}
			} else if fetchErr != nil {
				results[i] = &dataloader.Result{Error: fetchErr}
			} else {
				results[i] = &dataloader.Result{Error: fmt.Errorf("%s: %w", k.String(), repository.ErrNotFound)}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn,
		dataloader.WithWait(time.Millisecond),
		dataloader.WithBatchCapacity(500),
	)

	return &LabelLoader{Loader: loader, logger: logger}
}

// Prime loads the labels of ids in batches.
func (l *LabelLoader) Prime(ctx context.Context, kind domain.Kind, ids []int64) {
	if len(ids) == 0 {
		return
	}
	keys := make(dataloader.Keys, len(ids))
	for i, id := range ids {
		keys[i] = labelKey(kind, id)
	}

	thunk := l.Loader.LoadMany(ctx, keys)
	_, errs := thunk()
	for _, err := range errs {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			l.logger.Warn("label lookup failed", "kind", kind, "error", err)
		}
	}
}

// Label returns the label of id, or the unknown placeholder.
func (l *LabelLoader) Label(ctx context.Context, kind domain.Kind, id int64) string {
	value, err := l.Loader.Load(ctx, labelKey(kind, id))()
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			l.logger.Debug("label lookup failed", "kind", kind, "entity_id", id, "error", err)
		}
		return domain.UnknownLabel(id)
	}
	label, ok := value.(string)
	if !ok || label == "" {
		return domain.UnknownLabel(id)
	}
	return label
}
