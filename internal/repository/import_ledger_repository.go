package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/afsync/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type importLedgerRepository struct {
	q querier
}

const ledgerColumns = `id, date, kind, is_incremental, outcome, num_applied, message, created_at`

func (r *importLedgerRepository) Record(ctx context.Context, entry domain.ImportLedgerEntry) error {
	var numApplied any
	if entry.NumApplied != nil {
		numApplied = *entry.NumApplied
	}

	_, err := r.q.Exec(
		ctx,
		`INSERT INTO import_ledger (id, date, kind, is_incremental, outcome, num_applied, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID,
		pgtype.Date{Time: entry.Date, Valid: true},
		string(entry.Kind),
		entry.IsIncremental,
		string(entry.Outcome),
		numApplied,
		entry.Message,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record import ledger entry: %w", err)
	}

	return nil
}

func (r *importLedgerRepository) LastByKind(ctx context.Context) (map[domain.Kind]domain.ImportLedgerEntry, error) {
	rows, err := r.q.Query(
		ctx,
		`SELECT DISTINCT ON (kind) `+ledgerColumns+`
		 FROM import_ledger
		 ORDER BY kind, date DESC, is_incremental DESC, created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query last import by kind: %w", err)
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, err
	}

	last := make(map[domain.Kind]domain.ImportLedgerEntry, len(entries))
	for _, entry := range entries {
		last[entry.Kind] = entry
	}
	return last, nil
}

func (r *importLedgerRepository) List(ctx context.Context, kind domain.Kind, limit int, offset int) ([]domain.ImportLedgerEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(
		ctx,
		`SELECT `+ledgerColumns+`
		 FROM import_ledger
		 WHERE ($1 = '' OR kind = $1)
		 ORDER BY date DESC, created_at DESC
		 LIMIT $2 OFFSET $3`,
		string(kind),
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import ledger: %w", err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows pgx.Rows) ([]domain.ImportLedgerEntry, error) {
	entries := []domain.ImportLedgerEntry{}
	for rows.Next() {
		var (
			entry      domain.ImportLedgerEntry
			date       pgtype.Date
			kind       string
			outcome    string
			numApplied pgtype.Int4
			createdAt  pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&date,
			&kind,
			&entry.IsIncremental,
			&outcome,
			&numApplied,
			&entry.Message,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan import ledger entry: %w", scanErr)
		}

		entry.Kind = domain.Kind(kind)
		parsed, err := domain.ParseImportOutcome(outcome)
		if err != nil {
			return nil, err
		}
		entry.Outcome = parsed
		if date.Valid {
			entry.Date = date.Time
		}
		if numApplied.Valid {
			value := int(numApplied.Int32)
			entry.NumApplied = &value
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		entries = append(entries, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import ledger: %w", rowsErr)
	}

	return entries, nil
}
