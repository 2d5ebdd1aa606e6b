package claims

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
	"github.com/kirinyoku/openmic/internal/service/waitlist"
	"github.com/kirinyoku/openmic/internal/uow"
)

// Limiter throttles claim attempts per occupant.
type Limiter interface {
	Allow(ctx context.Context, id string) (redisrepo.Decision, error)
}

type Config struct {
	Now func() time.Time
}

type Service struct {
	store    repository.Store
	waitlist *waitlist.Service
	limiter  Limiter
	fx       *effects.Effects
	uow      *uow.UoW
	cfg      Config
}

func New(
	store repository.Store,
	wl *waitlist.Service,
	limiter Limiter,
	fx *effects.Effects,
	cfg Config,
) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if fx == nil {
		fx = effects.New(nil, nil, nil, nil)
	}

	return &Service{
		store:    store,
		waitlist: wl,
		limiter:  limiter,
		fx:       fx,
		uow:      uow.NewUoW(store),
		cfg:      cfg,
	}
}

func (s *Service) now() time.Time { return s.cfg.Now().UTC() }

// Get returns a claim by id.
func (s *Service) Get(ctx context.Context, claimID uuid.UUID) (*domain.Claim, error) {
	const op = "service.claims.Get"

	c, err := s.store.Claims().Get(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, mapRepoErr(err))
	}

	return c, nil
}

// View returns a claim to its occupant or to an administrator of its event.
// Anyone else gets domain.ErrPermissionDenied.
func (s *Service) View(ctx context.Context, caller domain.Occupant, claimID uuid.UUID) (*domain.Claim, error) {
	const op = "service.claims.View"

	c, err := s.store.Claims().Get(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, mapRepoErr(err))
	}

	if err := occupantOrAdmin(caller)(ctx, s.store, c); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return c, nil
}

// Claim takes an empty timeslot directly.
//
// Parameters:
//   - ctx: request-scoped context.
//   - caller: the verified member or guest claiming the slot.
//   - timeslotID: the slot to claim.
//
// Returns:
//   - *domain.Claim: the confirmed claim.
//   - error: domain.ErrSlotUnavailable if another claim occupies the slot.
//   - error: domain.ErrAlreadyClaimed if the caller already holds an open claim on it.
//   - error: domain.ErrEventNotPublished if the event is not accepting claims.
//   - error: domain.ErrNotFound if the timeslot does not exist.
func (s *Service) Claim(ctx context.Context, caller domain.Occupant, timeslotID uuid.UUID) (*domain.Claim, error) {
	const op = "service.claims.Claim"

	c, err := s.create(ctx, caller, timeslotID, domain.ClaimConfirmed)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return c, nil
}

// JoinWaitlist queues the caller behind the current occupant of a timeslot.
//
// Returns:
//   - *domain.Claim: the waitlisted claim with its position.
//   - error: domain.ErrValidation if the slot is free and should be claimed directly.
//   - error: domain.ErrAlreadyClaimed if the caller already holds an open claim on it.
func (s *Service) JoinWaitlist(ctx context.Context, caller domain.Occupant, timeslotID uuid.UUID) (*domain.Claim, error) {
	const op = "service.claims.JoinWaitlist"

	c, err := s.create(ctx, caller, timeslotID, domain.ClaimWaitlist)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return c, nil
}

func (s *Service) create(
	ctx context.Context,
	caller domain.Occupant,
	timeslotID uuid.UUID,
	status domain.ClaimStatus,
) (*domain.Claim, error) {
	if err := domain.ValidateOccupant(caller); err != nil {
		return nil, err
	}

	if err := s.throttle(ctx, caller); err != nil {
		return nil, err
	}

	var created *domain.Claim

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		ts, err := tx.Timeslots().Lock(ctx, timeslotID)
		if err != nil {
			return mapRepoErr(err)
		}

		ev, err := tx.Events().GetConfig(ctx, ts.EventID)
		if err != nil {
			return mapRepoErr(err)
		}

		if !ev.IsPublished {
			return domain.ErrEventNotPublished
		}

		if _, err := tx.Claims().OpenByOccupant(ctx, timeslotID, caller); err == nil {
			return domain.ErrAlreadyClaimed
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		_, err = tx.Claims().Occupying(ctx, timeslotID)
		occupied := err == nil
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		now := s.now()
		c := &domain.Claim{
			ID:         uuid.New(),
			TimeslotID: timeslotID,
			EventID:    ts.EventID,
			Occupant:   caller,
			Status:     status,
			ClaimedAt:  now,
			UpdatedAt:  now,
			UpdatedBy:  domain.ActorID(caller),
		}

		switch status {
		case domain.ClaimConfirmed:
			if occupied {
				return domain.ErrSlotUnavailable
			}
		case domain.ClaimWaitlist:
			if !occupied {
				return domain.ValidationError{Field: "timeslot", Reason: "slot is free, claim it directly"}
			}

			top, err := tx.Claims().MaxWaitlistPosition(ctx, timeslotID)
			if err != nil {
				return err
			}

			pos := top + 1
			c.WaitlistPosition = &pos
		}

		if err := tx.Claims().Insert(ctx, c); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: %v", domain.ErrSlotUnavailable, err)
			}
			return err
		}

		created = c

		ce := claimEvent(c, "", c.UpdatedBy, now)
		after(func(ctx context.Context) {
			s.fx.ClaimChanged(ctx, ce)
			s.fx.EventChanged(ctx, ts.EventID, redisrepo.ChangeSlots)
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// AcceptOffer confirms an offered claim for its occupant. The expiry is
// checked in the same transaction that flips the status, so an expired offer
// cannot be accepted even before the sweeper runs.
func (s *Service) AcceptOffer(ctx context.Context, caller domain.Occupant, claimID uuid.UUID) (*domain.Claim, error) {
	const op = "service.claims.AcceptOffer"

	c, _, err := s.transition(ctx, claimID, change{
		to:        domain.ClaimConfirmed,
		actor:     domain.ActorID(caller),
		authorize: occupantOnly(caller),
		check: func(c *domain.Claim, now time.Time) error {
			if c.OfferExpired(now) {
				return domain.TransitionError{
					ClaimID: c.ID, From: c.Status, To: domain.ClaimConfirmed, Reason: "offer expired",
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return c, nil
}

// Cancel withdraws a confirmed, offered or waitlisted claim. The occupant or
// an event administrator may cancel. Releasing a held slot promotes the
// waitlist.
func (s *Service) Cancel(ctx context.Context, caller domain.Occupant, claimID uuid.UUID) (*domain.Claim, *domain.Promotion, error) {
	const op = "service.claims.Cancel"

	c, p, err := s.transition(ctx, claimID, change{
		to:        domain.ClaimCancelled,
		actor:     domain.ActorID(caller),
		authorize: occupantOrAdmin(caller),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	return c, p, nil
}

// MarkNoShow records that a confirmed (or already performed) occupant did
// not show up. Member occupants get their no-show counter bumped once.
func (s *Service) MarkNoShow(ctx context.Context, caller domain.Occupant, claimID uuid.UUID) (*domain.Claim, *domain.Promotion, error) {
	const op = "service.claims.MarkNoShow"

	c, p, err := s.transition(ctx, claimID, change{
		to:        domain.ClaimNoShow,
		actor:     domain.ActorID(caller),
		authorize: adminOnly(caller),
		apply: func(ctx context.Context, tx repository.Repos, c *domain.Claim) error {
			memberID, ok := domain.MemberID(c.Occupant)
			if !ok {
				return nil
			}
			if _, err := tx.Members().IncrementNoShow(ctx, memberID); err != nil {
				return mapRepoErr(err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	return c, p, nil
}

// MarkPerformed records a completed performance.
func (s *Service) MarkPerformed(ctx context.Context, caller domain.Occupant, claimID uuid.UUID) (*domain.Claim, error) {
	const op = "service.claims.MarkPerformed"

	c, _, err := s.transition(ctx, claimID, change{
		to:        domain.ClaimPerformed,
		actor:     domain.ActorID(caller),
		authorize: adminOnly(caller),
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return c, nil
}

// Delete hard-deletes the caller's own claim while it is still waitlisted.
// Anything past the queue is kept as history and must be cancelled instead.
func (s *Service) Delete(ctx context.Context, caller domain.Occupant, claimID uuid.UUID) error {
	const op = "service.claims.Delete"

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		c, err := s.lockClaim(ctx, tx, claimID)
		if err != nil {
			return err
		}

		if !domain.SameOccupant(c.Occupant, caller) {
			return domain.ErrPermissionDenied
		}

		if c.Status != domain.ClaimWaitlist {
			return domain.TransitionError{
				ClaimID: c.ID, From: c.Status, To: "deleted", Reason: "only waitlisted claims can be deleted",
			}
		}

		if err := tx.Claims().Delete(ctx, c.ID); err != nil {
			return mapRepoErr(err)
		}

		eventID := c.EventID
		after(func(ctx context.Context) {
			s.fx.EventChanged(ctx, eventID, redisrepo.ChangeSlots)
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// ExpireOffer closes an offer whose window has passed and promotes the next
// waitlisted claim. It is the transition the expiry sweeper drives.
//
// Returns:
//   - error: domain.ErrInvalidTransition if the claim is not an expired offer
//     (for instance it was accepted after it was listed).
func (s *Service) ExpireOffer(ctx context.Context, claimID uuid.UUID) (*domain.Promotion, error) {
	const op = "service.claims.ExpireOffer"

	_, p, err := s.transition(ctx, claimID, change{
		to:        domain.ClaimCancelled,
		authorize: func(context.Context, repository.Repos, *domain.Claim) error { return nil },
		check: func(c *domain.Claim, now time.Time) error {
			if !c.OfferExpired(now) {
				return domain.TransitionError{
					ClaimID: c.ID, From: c.Status, To: domain.ClaimCancelled, Reason: "not an expired offer",
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return p, nil
}

// SweepExpiredOffers expires up to limit overdue offers, one transaction
// each, and returns how many were expired. Offers that changed in the
// meantime are skipped.
func (s *Service) SweepExpiredOffers(ctx context.Context, limit int) (int, error) {
	const op = "service.claims.SweepExpiredOffers"

	ids, err := s.store.Claims().ListExpiredOffers(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, fmt.Errorf("%s:%w", op, ctx.Err())
		}

		if _, err := s.ExpireOffer(ctx, id); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			s.fx.Logger().Error("expire offer failed", "claim_id", id, "error", err)
			continue
		}
		expired++
	}

	return expired, nil
}

type change struct {
	to        domain.ClaimStatus
	actor     *int64
	authorize func(ctx context.Context, tx repository.Repos, c *domain.Claim) error
	check     func(c *domain.Claim, now time.Time) error
	apply     func(ctx context.Context, tx repository.Repos, c *domain.Claim) error
}

// transition moves one claim through the state machine in a single
// transaction: timeslot lock, claim lock, authorization, status checks,
// update, side effects, and waitlist promotion when the slot was released.
func (s *Service) transition(
	ctx context.Context,
	claimID uuid.UUID,
	ch change,
) (*domain.Claim, *domain.Promotion, error) {
	var (
		out   *domain.Claim
		promo *domain.Promotion
	)

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		c, err := s.lockClaim(ctx, tx, claimID)
		if err != nil {
			return err
		}

		if err := ch.authorize(ctx, tx, c); err != nil {
			return err
		}

		from := c.Status
		if !domain.CanTransition(from, ch.to) {
			return domain.TransitionError{ClaimID: c.ID, From: from, To: ch.to}
		}

		now := s.now()
		if ch.check != nil {
			if err := ch.check(c, now); err != nil {
				return err
			}
		}

		c.Status = ch.to
		c.OfferExpiresAt = nil
		c.WaitlistPosition = nil
		c.UpdatedAt = now
		c.UpdatedBy = ch.actor

		if err := tx.Claims().Update(ctx, c); err != nil {
			return mapRepoErr(err)
		}

		if ch.apply != nil {
			if err := ch.apply(ctx, tx, c); err != nil {
				return err
			}
		}

		ce := claimEvent(c, from, ch.actor, now)
		after(func(ctx context.Context) {
			s.fx.ClaimChanged(ctx, ce)
			s.fx.EventChanged(ctx, ce.EventID, redisrepo.ChangeSlots)
		})

		if domain.FreesSlot(from, ch.to) && s.waitlist != nil {
			ev, err := tx.Events().GetConfig(ctx, c.EventID)
			if err != nil {
				return mapRepoErr(err)
			}

			promo, err = s.waitlist.PromoteTx(ctx, tx, c.TimeslotID, s.waitlist.OfferWindow(ev), nil, after)
			if err != nil {
				return err
			}
		}

		out = c

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return out, promo, nil
}

// lockClaim takes the timeslot lock before the claim lock, the same order
// claim creation uses.
func (s *Service) lockClaim(ctx context.Context, tx repository.Repos, claimID uuid.UUID) (*domain.Claim, error) {
	c, err := tx.Claims().Get(ctx, claimID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	if _, err := tx.Timeslots().Lock(ctx, c.TimeslotID); err != nil {
		return nil, mapRepoErr(err)
	}

	c, err = tx.Claims().GetForUpdate(ctx, claimID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	return c, nil
}

// Authorizers run inside the transaction; admin checks go through tx.Access()
// so they share the transaction's connection.
func occupantOnly(caller domain.Occupant) func(context.Context, repository.Repos, *domain.Claim) error {
	return func(_ context.Context, _ repository.Repos, c *domain.Claim) error {
		if !domain.SameOccupant(c.Occupant, caller) {
			return domain.ErrPermissionDenied
		}
		return nil
	}
}

func adminOnly(caller domain.Occupant) func(context.Context, repository.Repos, *domain.Claim) error {
	return func(ctx context.Context, tx repository.Repos, c *domain.Claim) error {
		return access.Require(ctx, tx.Access(), c.EventID, caller)
	}
}

func occupantOrAdmin(caller domain.Occupant) func(context.Context, repository.Repos, *domain.Claim) error {
	return func(ctx context.Context, tx repository.Repos, c *domain.Claim) error {
		if domain.SameOccupant(c.Occupant, caller) {
			return nil
		}
		return access.Require(ctx, tx.Access(), c.EventID, caller)
	}
}

// throttle fails open when the limiter itself is unavailable.
func (s *Service) throttle(ctx context.Context, caller domain.Occupant) error {
	if s.limiter == nil {
		return nil
	}

	d, err := s.limiter.Allow(ctx, caller.Key())
	if err != nil {
		s.fx.Logger().Warn("rate limiter unavailable", "error", err)
		return nil
	}

	if !d.Allowed {
		return RateLimitedError{RetryAfter: d.RetryAfter}
	}

	return nil
}

func claimEvent(c *domain.Claim, from domain.ClaimStatus, actor *int64, at time.Time) domain.ClaimEvent {
	return domain.ClaimEvent{
		ClaimID:    c.ID,
		TimeslotID: c.TimeslotID,
		EventID:    c.EventID,
		From:       from,
		To:         c.Status,
		Occupant:   domain.RefOf(c.Occupant),
		ActorID:    actor,
		At:         at,
	}
}

func mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return err
}
