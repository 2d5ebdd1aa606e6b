package waitlist

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
	// DefaultOfferWindow applies to events that leave their own window unset.
	DefaultOfferWindow time.Duration
	Now                func() time.Time
}

type Service struct {
	store  repository.Store
	policy access.Policy
	fx     *effects.Effects
	uow    *uow.UoW
	cfg    Config
}

func New(store repository.Store, policy access.Policy, fx *effects.Effects, cfg Config) *Service {
	if cfg.DefaultOfferWindow <= 0 {
		cfg.DefaultOfferWindow = 120 * time.Minute
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
		fx:     fx,
		uow:    uow.NewUoW(store),
		cfg:    cfg,
	}
}

// OfferWindow is how long a promoted claim stays offered for the event.
func (s *Service) OfferWindow(ev *domain.EventConfig) time.Duration {
	if ev != nil && ev.SlotOfferWindowMinutes > 0 {
		return time.Duration(ev.SlotOfferWindowMinutes) * time.Minute
	}
	return s.cfg.DefaultOfferWindow
}

// Promote offers the timeslot to the head of its waitlist in its own
// transaction.
//
// Returns:
//   - *domain.Promotion: the promoted claim, or nil when there is no
//     candidate (empty waitlist, occupied slot, or a concurrent promotion
//     holding the slot).
//   - error: domain.ErrNotFound if the timeslot does not exist.
//   - error: domain.ErrValidation if offerWindow is not positive.
func (s *Service) Promote(
	ctx context.Context,
	timeslotID uuid.UUID,
	offerWindow time.Duration,
) (*domain.Promotion, error) {
	const op = "service.waitlist.Promote"

	var p *domain.Promotion

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		var err error
		p, err = s.PromoteTx(ctx, tx, timeslotID, offerWindow, nil, after)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return p, nil
}

// PromoteNext is the administrator action: promote using the event's own
// offer window.
func (s *Service) PromoteNext(
	ctx context.Context,
	caller domain.Occupant,
	timeslotID uuid.UUID,
) (*domain.Promotion, error) {
	const op = "service.waitlist.PromoteNext"

	ts, err := s.store.Timeslots().Get(ctx, timeslotID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, mapRepoErr(err))
	}

	if err := access.Require(ctx, s.policy, ts.EventID, caller); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var p *domain.Promotion

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		ev, err := tx.Events().GetConfig(ctx, ts.EventID)
		if err != nil {
			return mapRepoErr(err)
		}

		p, err = s.PromoteTx(ctx, tx, timeslotID, s.OfferWindow(ev), domain.ActorID(caller), after)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return p, nil
}

// PromoteTx runs the promotion inside an existing transaction. The timeslot
// row and the candidate claim row are both taken with SKIP LOCKED, so a
// losing concurrent attempt reports no candidate instead of waiting. A
// transaction that already holds the timeslot lock is never skipped.
func (s *Service) PromoteTx(
	ctx context.Context,
	tx repository.Repos,
	timeslotID uuid.UUID,
	offerWindow time.Duration,
	actor *int64,
	after func(uow.AfterCommit),
) (*domain.Promotion, error) {
	const op = "service.waitlist.PromoteTx"

	if offerWindow <= 0 {
		return nil, fmt.Errorf("%s:%w", op,
			domain.ValidationError{Field: "offer_window", Reason: "must be positive"})
	}

	ts, locked, err := tx.Timeslots().TryLock(ctx, timeslotID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, mapRepoErr(err))
	}

	if !locked {
		s.fx.Logger().Debug("timeslot busy, skipping promotion", "timeslot_id", timeslotID)
		return nil, nil
	}

	if _, err := tx.Claims().Occupying(ctx, timeslotID); err == nil {
		return nil, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	next, err := tx.Claims().NextWaitlisted(ctx, timeslotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := s.cfg.Now().UTC()
	expires := now.Add(offerWindow)

	next.Status = domain.ClaimOffered
	next.OfferExpiresAt = &expires
	next.WaitlistPosition = nil
	next.UpdatedAt = now
	next.UpdatedBy = actor

	if err := tx.Claims().Update(ctx, next); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	ev := domain.ClaimEvent{
		ClaimID:    next.ID,
		TimeslotID: next.TimeslotID,
		EventID:    ts.EventID,
		From:       domain.ClaimWaitlist,
		To:         domain.ClaimOffered,
		Occupant:   domain.RefOf(next.Occupant),
		ActorID:    actor,
		At:         now,
	}

	if after != nil {
		after(func(ctx context.Context) {
			s.fx.ClaimChanged(ctx, ev)
			s.fx.EventChanged(ctx, ts.EventID, redisrepo.ChangeSlots)
		})
	}

	return &domain.Promotion{
		ClaimID:        next.ID,
		TimeslotID:     next.TimeslotID,
		OfferExpiresAt: expires,
	}, nil
}

func mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return err
}
