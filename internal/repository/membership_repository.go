package repository

import (
	"context"

	"github.com/rpattn/afsync/internal/domain"
)

type membershipRepository struct {
	q querier
}

func (r *membershipRepository) Upsert(ctx context.Context, groupID, accountID int64, role domain.MembershipRole) error {
	_, err := r.q.Exec(
		ctx,
		`INSERT INTO group_memberships (group_id, account_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (group_id, account_id) DO UPDATE SET role = EXCLUDED.role`,
		groupID,
		accountID,
		string(role),
	)
	if err != nil {
		return writeError("upsert group membership", err)
	}
	return nil
}
