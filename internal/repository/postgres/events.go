package postgres

import (
	"context"
	"fmt"

	"github.com/kirinyoku/openmic/internal/domain"
)

type EventRepo struct {
	db DB
}

// GetConfig loads the slot configuration of an event.
//
// Returns:
//   - error: repository.ErrNotFound if the event does not exist.
func (r *EventRepo) GetConfig(ctx context.Context, eventID int64) (*domain.EventConfig, error) {
	const op = "postgres.EventRepo.GetConfig"

	var e domain.EventConfig
	err := r.db.QueryRow(ctx,
		`SELECT id, host_id, starts_at, total_slots, slot_duration_minutes,
		        slot_offer_window_minutes, is_published
		 FROM events WHERE id = $1`,
		eventID,
	).Scan(
		&e.ID, &e.HostID, &e.StartsAt, &e.TotalSlots, &e.SlotDurationMinutes,
		&e.SlotOfferWindowMinutes, &e.IsPublished,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &e, nil
}
