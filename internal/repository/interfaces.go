package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rpattn/afsync/internal/domain"
)

var (
	// ErrNotFound is returned when a keyed lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrRejected is returned when the store refuses one record because of
	// its content. Other records of the same file are unaffected.
	ErrRejected = errors.New("record rejected by store")
)

// AccountRepository defines the operations on directory accounts
type AccountRepository interface {
	// Upsert stores the account and clears its deletion mark.
	Upsert(ctx context.Context, record domain.Record, lastUpdate time.Time) error
	GetByID(ctx context.Context, id int64) (domain.Account, error)
	GetByIDs(ctx context.Context, ids []int64) ([]domain.Account, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

// GroupRepository defines the operations on directory groups
type GroupRepository interface {
	Upsert(ctx context.Context, record domain.Record, lastUpdate time.Time) error
	GetByID(ctx context.Context, id int64) (domain.Group, error)
	GetByIDs(ctx context.Context, ids []int64) ([]domain.Group, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

// MembershipRepository stores group memberships, one per (group, account).
type MembershipRepository interface {
	Upsert(ctx context.Context, groupID, accountID int64, role domain.MembershipRole) error
}

// DependentRepository stores records owned by an account, such as degrees
// and jobs. The full set of an owner is replaced on import.
type DependentRepository interface {
	DeleteByOwner(ctx context.Context, accountID int64) (int64, error)
	Insert(ctx context.Context, record domain.Record) error
}

// ImportLedgerRepository stores one audit entry per imported file.
type ImportLedgerRepository interface {
	Record(ctx context.Context, entry domain.ImportLedgerEntry) error
	// LastByKind returns the latest entry of each kind, ordered by date then
	// incremental flag.
	LastByKind(ctx context.Context) (map[domain.Kind]domain.ImportLedgerEntry, error)
	List(ctx context.Context, kind domain.Kind, limit int, offset int) ([]domain.ImportLedgerEntry, error)
}

// Store groups the repositories sharing one connection or transaction.
type Store interface {
	Accounts() AccountRepository
	Groups() GroupRepository
	Memberships() MembershipRepository
	Degrees() DependentRepository
	Jobs() DependentRepository
	Ledger() ImportLedgerRepository
	// WithTx runs fn with a Store bound to a single transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}
