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

type accountRepository struct {
	q querier
}

const accountColumns = `af_id, ax_id, xorg_id, first_name, last_name, email_1, last_update, deleted_since`

func (r *accountRepository) Upsert(ctx context.Context, record domain.Record, lastUpdate time.Time) error {
	if _, ok := record.Int64("af_id"); !ok {
		return fmt.Errorf("%w: account record has no integer af_id", ErrRejected)
	}

	row := record.Clone()
	row["last_update"] = lastUpdate
	row["deleted_since"] = nil

	columns, args := accountTable.project(row)
	if _, err := r.q.Exec(ctx, accountTable.upsertSQL(columns), args...); err != nil {
		return writeError("upsert account", err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE af_id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
		}
		return domain.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *accountRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.Account, error) {
	if len(ids) == 0 {
		return []domain.Account{}, nil
	}

	rows, err := r.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE af_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, len(ids))
	for rows.Next() {
		account, scanErr := scanAccount(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan account: %w", scanErr)
		}
		accounts = append(accounts, account)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", rowsErr)
	}
	return accounts, nil
}

func (r *accountRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE af_id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}
	return exists, nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		account      domain.Account
		axID         pgtype.Text
		xorgID       pgtype.Text
		firstName    pgtype.Text
		lastName     pgtype.Text
		email        pgtype.Text
		lastUpdate   pgtype.Date
		deletedSince pgtype.Date
	)
	if err := row.Scan(
		&account.AFID,
		&axID,
		&xorgID,
		&firstName,
		&lastName,
		&email,
		&lastUpdate,
		&deletedSince,
	); err != nil {
		return domain.Account{}, err
	}

	account.AXID = axID.String
	account.XorgID = xorgID.String
	account.FirstName = firstName.String
	account.LastName = lastName.String
	account.Email = email.String
	if lastUpdate.Valid {
		account.LastUpdate = lastUpdate.Time
	}
	if deletedSince.Valid {
		value := deletedSince.Time
		account.DeletedSince = &value
	}
	return account, nil
}
