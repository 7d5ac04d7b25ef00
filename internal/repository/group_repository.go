package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/afsync/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type groupRepository struct {
	q querier
}

const groupColumns = `af_id, ax_id, name, category, last_update`

func (r *groupRepository) Upsert(ctx context.Context, record domain.Record, lastUpdate time.Time) error {
	if _, ok := record.Int64("af_id"); !ok {
		return fmt.Errorf("%w: group record has no integer af_id", ErrRejected)
	}

	row := record.Clone()
	row["last_update"] = lastUpdate

	columns, args := groupTable.project(row)
	if _, err := r.q.Exec(ctx, groupTable.upsertSQL(columns), args...); err != nil {
		return writeError("upsert group", err)
	}
	return nil
}

func (r *groupRepository) GetByID(ctx context.Context, id int64) (domain.Group, error) {
	group, err := scanGroup(r.q.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE af_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Group{}, fmt.Errorf("group %d: %w", id, ErrNotFound)
		}
		return domain.Group{}, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

func (r *groupRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.Group, error) {
	if len(ids) == 0 {
		return []domain.Group{}, nil
	}

	rows, err := r.q.Query(ctx, `SELECT `+groupColumns+` FROM groups WHERE af_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := make([]domain.Group, 0, len(ids))
	for rows.Next() {
		group, scanErr := scanGroup(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan group: %w", scanErr)
		}
		groups = append(groups, group)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", rowsErr)
	}
	return groups, nil
}

func (r *groupRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE af_id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check group existence: %w", err)
	}
	return exists, nil
}

func scanGroup(row pgx.Row) (domain.Group, error) {
	var (
		group      domain.Group
		axID       pgtype.Text
		name       pgtype.Text
		category   pgtype.Text
		lastUpdate pgtype.Date
	)
	if err := row.Scan(&group.AFID, &axID, &name, &category, &lastUpdate); err != nil {
		return domain.Group{}, err
	}
	group.AXID = axID.String
	group.Name = name.String
	group.Category = category.String
	if lastUpdate.Valid {
		group.LastUpdate = lastUpdate.Time
	}
	return group, nil
}
