package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/repository"
)

type TimeslotRepo struct {
	db DB
}

const timeslotColumns = `id, event_id, slot_index, start_offset_minutes, duration_minutes`

const tryLockTimeslotSQL = `SELECT ` + timeslotColumns + ` FROM timeslots WHERE id = $1 FOR UPDATE SKIP LOCKED`

func scanTimeslot(row pgx.Row) (*domain.Timeslot, error) {
	var ts domain.Timeslot
	if err := row.Scan(
		&ts.ID, &ts.EventID, &ts.SlotIndex, &ts.StartOffsetMinutes, &ts.DurationMinutes,
	); err != nil {
		return nil, err
	}
	return &ts, nil
}

func (r *TimeslotRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Timeslot, error) {
	const op = "postgres.TimeslotRepo.Get"

	ts, err := scanTimeslot(r.db.QueryRow(ctx,
		`SELECT `+timeslotColumns+` FROM timeslots WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return ts, nil
}

// Lock serializes claim creation on a timeslot.
func (r *TimeslotRepo) Lock(ctx context.Context, id uuid.UUID) (*domain.Timeslot, error) {
	const op = "postgres.TimeslotRepo.Lock"

	ts, err := scanTimeslot(r.db.QueryRow(ctx,
		`SELECT `+timeslotColumns+` FROM timeslots WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return ts, nil
}

// TryLock is Lock with SKIP LOCKED. A row locked by the calling transaction
// is not skipped.
func (r *TimeslotRepo) TryLock(ctx context.Context, id uuid.UUID) (*domain.Timeslot, bool, error) {
	const op = "postgres.TimeslotRepo.TryLock"

	ts, err := scanTimeslot(r.db.QueryRow(ctx, tryLockTimeslotSQL, id))
	if err == nil {
		return ts, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	// No row: either it does not exist or somebody else holds it.
	if _, err := r.Get(ctx, id); err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, err)
	}

	return nil, false, nil
}

func (r *TimeslotRepo) ListByEvent(ctx context.Context, eventID int64) ([]domain.Timeslot, error) {
	const op = "postgres.TimeslotRepo.ListByEvent"

	rows, err := r.db.Query(ctx,
		`SELECT `+timeslotColumns+` FROM timeslots
		 WHERE event_id = $1
		 ORDER BY slot_index`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Timeslot
	for rows.Next() {
		ts, err := scanTimeslot(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// DeleteByEvent removes every timeslot of the event; claims and the lineup
// pointer follow through foreign key actions.
func (r *TimeslotRepo) DeleteByEvent(ctx context.Context, eventID int64) (int64, error) {
	const op = "postgres.TimeslotRepo.DeleteByEvent"

	tag, err := r.db.Exec(ctx, `DELETE FROM timeslots WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

func (r *TimeslotRepo) BatchCreate(ctx context.Context, slots []domain.Timeslot) error {
	const op = "postgres.TimeslotRepo.BatchCreate"

	if len(slots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(
			`INSERT INTO timeslots(id, event_id, slot_index, start_offset_minutes, duration_minutes)
			 VALUES ($1, $2, $3, $4, $5)`,
			s.ID, s.EventID, s.SlotIndex, s.StartOffsetMinutes, s.DurationMinutes,
		)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

var _ repository.TimeslotRepo = (*TimeslotRepo)(nil)
