package lineup

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
	TTL time.Duration
	Now func() time.Time
}

type Service struct {
	store  repository.Store
	policy access.Policy
	cache  *redisrepo.Cache
	fx     *effects.Effects
	uow    *uow.UoW
	cfg    Config
}

func New(
	store repository.Store,
	policy access.Policy,
	cache *redisrepo.Cache,
	fx *effects.Effects,
	cfg Config,
) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
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

// SetNowPlaying points the event's lineup at timeslotID, or clears it when
// timeslotID is nil.
//
// Parameters:
//   - ctx: request-scoped context.
//   - caller: must administer the event.
//   - eventID: the event whose lineup changes.
//   - timeslotID: a timeslot of the same event, or nil.
//
// Returns:
//   - *domain.LineupState: the stored state.
//   - error: domain.ErrNotFound if the event or timeslot does not exist.
//   - error: domain.ErrValidation if the timeslot belongs to another event.
//   - error: domain.ErrPermissionDenied if caller does not administer the event.
func (s *Service) SetNowPlaying(
	ctx context.Context,
	caller domain.Occupant,
	eventID int64,
	timeslotID *uuid.UUID,
) (*domain.LineupState, error) {
	const op = "service.lineup.SetNowPlaying"

	if _, err := s.store.Events().GetConfig(ctx, eventID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, mapRepoErr(err))
	}

	if err := access.Require(ctx, s.policy, eventID, caller); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	state := &domain.LineupState{
		EventID:   eventID,
		UpdatedBy: domain.ActorID(caller),
		UpdatedAt: s.cfg.Now().UTC(),
	}

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		if timeslotID != nil {
			ts, err := tx.Timeslots().Get(ctx, *timeslotID)
			if err != nil {
				return mapRepoErr(err)
			}

			if ts.EventID != eventID {
				return domain.ValidationError{Field: "timeslot_id", Reason: "belongs to another event"}
			}

			id := ts.ID
			state.NowPlayingTimeslotID = &id
		}

		if err := tx.Lineup().Upsert(ctx, state); err != nil {
			return mapRepoErr(err)
		}

		after(func(ctx context.Context) {
			s.fx.EventChanged(ctx, eventID, redisrepo.ChangeLineup)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return state, nil
}

// Get returns the event's lineup. An event nobody has set a lineup for yet
// reports an empty state.
func (s *Service) Get(ctx context.Context, eventID int64) (*domain.LineupState, error) {
	const op = "service.lineup.Get"

	var (
		state domain.LineupState
		err   error
	)

	if s.cache == nil {
		state, err = s.load(ctx, eventID)
	} else {
		state, err = redisrepo.GetOrSetJSON(
			ctx,
			s.cache,
			redisrepo.KeyEventLineup(eventID),
			s.cfg.TTL,
			func(ctx context.Context) (domain.LineupState, error) {
				return s.load(ctx, eventID)
			},
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &state, nil
}

func (s *Service) load(ctx context.Context, eventID int64) (domain.LineupState, error) {
	if _, err := s.store.Events().GetConfig(ctx, eventID); err != nil {
		return domain.LineupState{}, mapRepoErr(err)
	}

	st, err := s.store.Lineup().Get(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.LineupState{EventID: eventID}, nil
	}

	if err != nil {
		return domain.LineupState{}, err
	}

	return *st, nil
}

func mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return err
}
