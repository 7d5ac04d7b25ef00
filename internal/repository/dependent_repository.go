package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/afsync/internal/domain"
)

type dependentRepository struct {
	q     querier
	table table
}

func newDependentRepository(q querier, t table) *dependentRepository {
	return &dependentRepository{q: q, table: t}
}

func (r *dependentRepository) DeleteByOwner(ctx context.Context, accountID int64) (int64, error) {
	tag, err := r.q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE account_id = $1`, r.table.name), accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s of account %d: %w", r.table.name, accountID, err)
	}
	return tag.RowsAffected(), nil
}

func (r *dependentRepository) Insert(ctx context.Context, record domain.Record) error {
	columns, args := r.table.project(record)
	if len(columns) == 0 {
		return fmt.Errorf("no known columns for %s", r.table.name)
	}
	if _, err := r.q.Exec(ctx, r.table.insertSQL(columns), args...); err != nil {
		return writeError("insert into "+r.table.name, err)
	}
	return nil
}
