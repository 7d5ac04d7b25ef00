package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rpattn/afsync/internal/db"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgxpool.Pool and pgx.Tx used by the repositories.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the Store backed by a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	q      querier
	tx     pgx.Tx
	logger *slog.Logger
}

// NewPostgresStore wires the repositories onto pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostgresStore{pool: pool, q: pool, logger: logger}
}

func (s *PostgresStore) Accounts() AccountRepository {
	return &accountRepository{q: s.q}
}

func (s *PostgresStore) Groups() GroupRepository {
	return &groupRepository{q: s.q}
}

func (s *PostgresStore) Memberships() MembershipRepository {
	return &membershipRepository{q: s.q}
}

func (s *PostgresStore) Degrees() DependentRepository {
	return newDependentRepository(s.q, degreeTable)
}

func (s *PostgresStore) Jobs() DependentRepository {
	return newDependentRepository(s.q, jobTable)
}

func (s *PostgresStore) Ledger() ImportLedgerRepository {
	return &importLedgerRepository{q: s.q}
}

// WithTx runs fn in a transaction. Nested calls run in a savepoint of the
// outer transaction, so a failing statement only discards its own work.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	var starter db.TxStarter = s.pool
	if s.tx != nil {
		starter = s.tx
	}
	return db.RunInTx(ctx, starter, s.logger, func(tx pgx.Tx) error {
		return fn(&PostgresStore{pool: s.pool, q: tx, tx: tx, logger: s.logger})
	})
}

// writeError wraps a failed write. Data exceptions and constraint violations
// are about the record itself and become ErrRejected.
func writeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) &&
		(pgerrcode.IsDataException(pgErr.Code) || pgerrcode.IsIntegrityConstraintViolation(pgErr.Code)) {
		return fmt.Errorf("%w: %s: %s", ErrRejected, op, pgErr.Message)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
