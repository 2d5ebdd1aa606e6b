package postgres

import (
	"context"
	"fmt"
)

type MemberRepo struct {
	db DB
}

func (r *MemberRepo) IncrementNoShow(ctx context.Context, memberID int64) (int64, error) {
	const op = "postgres.MemberRepo.IncrementNoShow"

	var n int64
	err := r.db.QueryRow(ctx,
		`UPDATE members SET no_show_count = no_show_count + 1
		 WHERE id = $1
		 RETURNING no_show_count`,
		memberID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return n, nil
}

func (r *MemberRepo) NoShowCount(ctx context.Context, memberID int64) (int64, error) {
	const op = "postgres.MemberRepo.NoShowCount"

	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT no_show_count FROM members WHERE id = $1`,
		memberID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return n, nil
}
