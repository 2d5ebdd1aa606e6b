package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/repository"
)

type claimView view

func (c *claimView) lock() func() { return view(*c).lock() }

func (c *claimView) withEvent(cl domain.Claim) *domain.Claim {
	out := copyClaim(cl)
	if ts, ok := c.s.st.timeslots[cl.TimeslotID]; ok {
		out.EventID = ts.EventID
	}
	return &out
}

func (c *claimView) Get(_ context.Context, id uuid.UUID) (*domain.Claim, error) {
	defer c.lock()()

	cl, ok := c.s.st.claims[id]
	if !ok {
		return nil, notFound("memory.ClaimRepo.Get")
	}
	return c.withEvent(cl), nil
}

func (c *claimView) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	return c.Get(ctx, id)
}

// each visits claims in insertion order.
func (c *claimView) each(fn func(cl domain.Claim) bool) {
	for _, id := range c.s.st.order {
		if !fn(c.s.st.claims[id]) {
			return
		}
	}
}

func (c *claimView) Occupying(_ context.Context, timeslotID uuid.UUID) (*domain.Claim, error) {
	defer c.lock()()

	var found *domain.Claim
	c.each(func(cl domain.Claim) bool {
		if cl.TimeslotID == timeslotID && cl.Status.Occupies() {
			found = c.withEvent(cl)
			return false
		}
		return true
	})
	if found == nil {
		return nil, notFound("memory.ClaimRepo.Occupying")
	}
	return found, nil
}

func (c *claimView) OpenByOccupant(_ context.Context, timeslotID uuid.UUID, o domain.Occupant) (*domain.Claim, error) {
	defer c.lock()()

	var found *domain.Claim
	c.each(func(cl domain.Claim) bool {
		if cl.TimeslotID == timeslotID && cl.Status.Open() && domain.SameOccupant(cl.Occupant, o) {
			found = c.withEvent(cl)
			return false
		}
		return true
	})
	if found == nil {
		return nil, notFound("memory.ClaimRepo.OpenByOccupant")
	}
	return found, nil
}

func (c *claimView) MaxWaitlistPosition(_ context.Context, timeslotID uuid.UUID) (int, error) {
	defer c.lock()()

	top := 0
	c.each(func(cl domain.Claim) bool {
		if cl.TimeslotID == timeslotID && cl.Status == domain.ClaimWaitlist &&
			cl.WaitlistPosition != nil && *cl.WaitlistPosition > top {
			top = *cl.WaitlistPosition
		}
		return true
	})
	return top, nil
}

func (c *claimView) NextWaitlisted(_ context.Context, timeslotID uuid.UUID) (*domain.Claim, error) {
	defer c.lock()()

	var best *domain.Claim
	c.each(func(cl domain.Claim) bool {
		if cl.TimeslotID != timeslotID || cl.Status != domain.ClaimWaitlist || cl.WaitlistPosition == nil {
			return true
		}
		if best == nil || *cl.WaitlistPosition < *best.WaitlistPosition {
			best = c.withEvent(cl)
		}
		return true
	})
	if best == nil {
		return nil, notFound("memory.ClaimRepo.NextWaitlisted")
	}
	return best, nil
}

// checkConstraints mirrors the partial unique indexes and CHECKs of the
// timeslot_claims table.
func (c *claimView) checkConstraints(op string, cl *domain.Claim) error {
	if _, ok := c.s.st.timeslots[cl.TimeslotID]; !ok {
		return notFound(op)
	}
	if err := domain.ValidateOccupant(cl.Occupant); err != nil {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}
	if (cl.Status == domain.ClaimOffered) != (cl.OfferExpiresAt != nil) ||
		(cl.Status == domain.ClaimWaitlist) != (cl.WaitlistPosition != nil) {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	var conflict bool
	c.each(func(other domain.Claim) bool {
		if other.ID == cl.ID || other.TimeslotID != cl.TimeslotID {
			return true
		}
		if cl.Status.Occupies() && other.Status.Occupies() {
			conflict = true
		}
		if cl.Status == domain.ClaimWaitlist && other.Status == domain.ClaimWaitlist &&
			*other.WaitlistPosition == *cl.WaitlistPosition {
			conflict = true
		}
		return !conflict
	})
	if conflict {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}
	return nil
}

func (c *claimView) Insert(_ context.Context, cl *domain.Claim) error {
	const op = "memory.ClaimRepo.Insert"
	defer c.lock()()

	if _, ok := c.s.st.claims[cl.ID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}
	if err := c.checkConstraints(op, cl); err != nil {
		return err
	}
	if id, ok := domain.MemberID(cl.Occupant); ok {
		if _, known := c.s.st.noShows[id]; !known {
			return notFound(op)
		}
	}

	c.s.st.claims[cl.ID] = copyClaim(*cl)
	c.s.st.order = append(c.s.st.order, cl.ID)
	return nil
}

func (c *claimView) Update(_ context.Context, cl *domain.Claim) error {
	const op = "memory.ClaimRepo.Update"
	defer c.lock()()

	cur, ok := c.s.st.claims[cl.ID]
	if !ok {
		return notFound(op)
	}
	if err := c.checkConstraints(op, cl); err != nil {
		return err
	}

	cur.Status = cl.Status
	cur.OfferExpiresAt = cl.OfferExpiresAt
	cur.WaitlistPosition = cl.WaitlistPosition
	cur.UpdatedAt = cl.UpdatedAt
	cur.UpdatedBy = cl.UpdatedBy
	c.s.st.claims[cl.ID] = copyClaim(cur)
	return nil
}

func (c *claimView) Delete(_ context.Context, id uuid.UUID) error {
	defer c.lock()()

	if _, ok := c.s.st.claims[id]; !ok {
		return notFound("memory.ClaimRepo.Delete")
	}
	delete(c.s.st.claims, id)
	for i, cid := range c.s.st.order {
		if cid == id {
			c.s.st.order = append(c.s.st.order[:i], c.s.st.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *claimView) ListByEvent(_ context.Context, eventID int64) ([]domain.Claim, error) {
	defer c.lock()()

	var out []domain.Claim
	c.each(func(cl domain.Claim) bool {
		if ts, ok := c.s.st.timeslots[cl.TimeslotID]; ok && ts.EventID == eventID {
			out = append(out, *c.withEvent(cl))
		}
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		return c.s.st.timeslots[out[i].TimeslotID].SlotIndex < c.s.st.timeslots[out[j].TimeslotID].SlotIndex
	})
	return out, nil
}

func (c *claimView) ListExpiredOffers(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	defer c.lock()()

	var expired []domain.Claim
	c.each(func(cl domain.Claim) bool {
		if cl.Status == domain.ClaimOffered && cl.OfferExpiresAt != nil && cl.OfferExpiresAt.Before(now) {
			expired = append(expired, cl)
		}
		return true
	})
	sort.SliceStable(expired, func(i, j int) bool {
		return expired[i].OfferExpiresAt.Before(*expired[j].OfferExpiresAt)
	})

	var out []uuid.UUID
	for _, cl := range expired {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, cl.ID)
	}
	return out, nil
}
