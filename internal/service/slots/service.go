package slots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/openmic/internal/access"
	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/repository"
	redisrepo "github.com/kirinyoku/openmic/internal/repository/redis"
	"github.com/kirinyoku/openmic/internal/service/effects"
	"github.com/kirinyoku/openmic/internal/uow"
)

type Config struct {
	BoardTTL time.Duration
}

type Service struct {
	store  repository.Store
	policy access.Policy
	cache  *redisrepo.Cache
	fx     *effects.Effects
	uow    *uow.UoW
	cfg    Config
}

// New builds the slot service. cache may be nil, in which case the board is
// read from the store on every call.
func New(
	store repository.Store,
	policy access.Policy,
	cache *redisrepo.Cache,
	fx *effects.Effects,
	cfg Config,
) *Service {
	if cfg.BoardTTL <= 0 {
		cfg.BoardTTL = 30 * time.Second
	}

	if fx == nil {
		fx = effects.New(nil, nil, nil, nil)
	}

	return &Service{
		store:  store,
		policy: policy,
		cache:  cache,
		fx:     fx,
		uow:    uow.NewUoW(store),
		cfg:    cfg,
	}
}

// Generate builds the ordered timeslot set for an event without touching
// storage. Offsets are only set when the event has a start time.
// Both totalSlots and durationMinutes must be positive; otherwise a
// domain.ValidationError naming the offending field is returned.
func Generate(eventID int64, totalSlots, durationMinutes int, hasStartTime bool) ([]domain.Timeslot, error) {
	if totalSlots <= 0 {
		return nil, domain.ValidationError{Field: "total_slots", Reason: "must be positive"}
	}

	if durationMinutes <= 0 {
		return nil, domain.ValidationError{Field: "slot_duration_minutes", Reason: "must be positive"}
	}

	out := make([]domain.Timeslot, totalSlots)
	for i := range out {
		out[i] = domain.Timeslot{
			ID:              uuid.New(),
			EventID:         eventID,
			SlotIndex:       i,
			DurationMinutes: durationMinutes,
		}

		if hasStartTime {
			offset := i * durationMinutes
			out[i].StartOffsetMinutes = &offset
		}
	}

	return out, nil
}

// Regenerate replaces every timeslot of the event with a fresh set built
// from its configuration. This is destructive: all claims against the old
// slots are deleted and the now-playing pointer is cleared. Either the old
// or the new set survives, never a mix.
//
// Parameters:
//   - ctx: request-scoped context.
//   - caller: must administer the event.
//   - eventID: the event to regenerate.
//
// Returns:
//   - []domain.Timeslot: the new set ordered by slot index.
//   - error: domain.ErrNotFound if the event does not exist.
//   - error: domain.ErrPermissionDenied if caller does not administer the event.
//   - error: domain.ErrValidation if the event configuration is unusable.
func (s *Service) Regenerate(ctx context.Context, caller domain.Occupant, eventID int64) ([]domain.Timeslot, error) {
	const op = "service.slots.Regenerate"

	if _, err := s.store.Events().GetConfig(ctx, eventID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, mapRepoErr(err))
	}

	if err := access.Require(ctx, s.policy, eventID, caller); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var slots []domain.Timeslot

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		ev, err := tx.Events().GetConfig(ctx, eventID)
		if err != nil {
			return mapRepoErr(err)
		}

		slots, err = Generate(ev.ID, ev.TotalSlots, ev.SlotDurationMinutes, ev.HasStartTime())
		if err != nil {
			return err
		}

		removed, err := tx.Timeslots().DeleteByEvent(ctx, eventID)
		if err != nil {
			return err
		}

		if err := tx.Timeslots().BatchCreate(ctx, slots); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.fx.Logger().Warn("timeslots regenerated",
				"event_id", eventID,
				"removed", removed,
				"created", len(slots),
			)
			s.fx.EventChanged(ctx, eventID, redisrepo.ChangeSlots)
			s.fx.EventChanged(ctx, eventID, redisrepo.ChangeLineup)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return slots, nil
}

// List returns the event's timeslots ordered by slot index.
func (s *Service) List(ctx context.Context, eventID int64) ([]domain.Timeslot, error) {
	const op = "service.slots.List"

	if _, err := s.store.Events().GetConfig(ctx, eventID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, mapRepoErr(err))
	}

	out, err := s.store.Timeslots().ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Board returns every timeslot of the event with its current holder and
// queue length.
//
// Returns:
//   - []domain.SlotView: one entry per timeslot ordered by slot index.
//   - error: domain.ErrNotFound if the event does not exist.
func (s *Service) Board(ctx context.Context, eventID int64) ([]domain.SlotView, error) {
	const op = "service.slots.Board"

	var (
		board []domain.SlotView
		err   error
	)

	if s.cache == nil {
		board, err = s.loadBoard(ctx, eventID)
	} else {
		board, err = redisrepo.GetOrSetJSON(
			ctx,
			s.cache,
			redisrepo.KeyEventBoard(eventID),
			s.cfg.BoardTTL,
			func(ctx context.Context) ([]domain.SlotView, error) {
				return s.loadBoard(ctx, eventID)
			},
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return board, nil
}

func (s *Service) loadBoard(ctx context.Context, eventID int64) ([]domain.SlotView, error) {
	if _, err := s.store.Events().GetConfig(ctx, eventID); err != nil {
		return nil, mapRepoErr(err)
	}

	slots, err := s.store.Timeslots().ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	claims, err := s.store.Claims().ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	board := make([]domain.SlotView, len(slots))
	index := make(map[uuid.UUID]int, len(slots))
	for i, ts := range slots {
		board[i] = domain.SlotView{Timeslot: ts}
		index[ts.ID] = i
	}

	for _, c := range claims {
		i, ok := index[c.TimeslotID]
		if !ok {
			continue
		}

		switch {
		case c.Status.Occupies():
			ref := domain.RefOf(c.Occupant)
			board[i].Occupant = &ref
			board[i].Status = c.Status
			board[i].OfferExpiresAt = c.OfferExpiresAt
		case c.Status == domain.ClaimWaitlist:
			board[i].WaitlistLength++
		}
	}

	return board, nil
}

func mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return err
}
