package postgres

import (
	"context"
	"fmt"

	"github.com/kirinyoku/openmic/internal/domain"
)

type LineupRepo struct {
	db DB
}

func (r *LineupRepo) Get(ctx context.Context, eventID int64) (*domain.LineupState, error) {
	const op = "postgres.LineupRepo.Get"

	var st domain.LineupState
	err := r.db.QueryRow(ctx,
		`SELECT event_id, now_playing_timeslot_id, updated_by, updated_at
		 FROM event_lineup WHERE event_id = $1`,
		eventID,
	).Scan(&st.EventID, &st.NowPlayingTimeslotID, &st.UpdatedBy, &st.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &st, nil
}

func (r *LineupRepo) Upsert(ctx context.Context, st *domain.LineupState) error {
	const op = "postgres.LineupRepo.Upsert"

	if _, err := r.db.Exec(ctx,
		`INSERT INTO event_lineup(event_id, now_playing_timeslot_id, updated_by, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id) DO UPDATE
		 SET now_playing_timeslot_id = EXCLUDED.now_playing_timeslot_id,
		     updated_by = EXCLUDED.updated_by,
		     updated_at = EXCLUDED.updated_at`,
		st.EventID, st.NowPlayingTimeslotID, st.UpdatedBy, st.UpdatedAt,
	); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}
