package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/repository"
)

type ClaimRepo struct {
	db DB
}

const claimSelect = `SELECT c.id, c.timeslot_id, t.event_id, c.member_id, c.guest_name,
	c.guest_verification_id, c.status, c.offer_expires_at, c.waitlist_position,
	c.claimed_at, c.updated_at, c.updated_by
	FROM timeslot_claims c
	JOIN timeslots t ON t.id = c.timeslot_id`

const nextWaitlistedSQL = claimSelect + ` WHERE c.timeslot_id = $1 AND c.status = 'waitlist'
	ORDER BY c.waitlist_position
	LIMIT 1
	FOR UPDATE OF c SKIP LOCKED`

func scanClaim(row pgx.Row) (*domain.Claim, error) {
	var (
		c         domain.Claim
		memberID  *int64
		guestName *string
		guestVID  *uuid.UUID
		status    string
	)

	if err := row.Scan(
		&c.ID, &c.TimeslotID, &c.EventID, &memberID, &guestName, &guestVID,
		&status, &c.OfferExpiresAt, &c.WaitlistPosition,
		&c.ClaimedAt, &c.UpdatedAt, &c.UpdatedBy,
	); err != nil {
		return nil, err
	}

	c.Status = domain.ClaimStatus(status)

	switch {
	case memberID != nil:
		c.Occupant = domain.Member{ID: *memberID}
	case guestVID != nil:
		g := domain.Guest{VerificationID: *guestVID}
		if guestName != nil {
			g.Name = *guestName
		}
		c.Occupant = g
	default:
		return nil, fmt.Errorf("claim %s has no occupant", c.ID)
	}

	return &c, nil
}

// occupantColumns splits an Occupant into the member_id, guest_name and
// guest_verification_id columns.
func occupantColumns(o domain.Occupant) (*int64, *string, *uuid.UUID) {
	switch x := o.(type) {
	case domain.Member:
		id := x.ID
		return &id, nil, nil
	case domain.Guest:
		name, vid := x.Name, x.VerificationID
		return nil, &name, &vid
	}
	return nil, nil, nil
}

func (r *ClaimRepo) queryOne(ctx context.Context, op, sql string, args ...any) (*domain.Claim, error) {
	c, err := scanClaim(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	return c, nil
}

func (r *ClaimRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	return r.queryOne(ctx, "postgres.ClaimRepo.Get",
		claimSelect+` WHERE c.id = $1`, id)
}

func (r *ClaimRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	return r.queryOne(ctx, "postgres.ClaimRepo.GetForUpdate",
		claimSelect+` WHERE c.id = $1 FOR UPDATE OF c`, id)
}

func (r *ClaimRepo) Occupying(ctx context.Context, timeslotID uuid.UUID) (*domain.Claim, error) {
	return r.queryOne(ctx, "postgres.ClaimRepo.Occupying",
		claimSelect+` WHERE c.timeslot_id = $1
		  AND c.status IN ('confirmed', 'offered', 'performed')`,
		timeslotID)
}

func (r *ClaimRepo) OpenByOccupant(
	ctx context.Context,
	timeslotID uuid.UUID,
	o domain.Occupant,
) (*domain.Claim, error) {
	memberID, _, guestVID := occupantColumns(o)

	return r.queryOne(ctx, "postgres.ClaimRepo.OpenByOccupant",
		claimSelect+` WHERE c.timeslot_id = $1
		  AND c.status IN ('confirmed', 'offered', 'waitlist')
		  AND (c.member_id = $2 OR c.guest_verification_id = $3)
		 LIMIT 1`,
		timeslotID, memberID, guestVID)
}

func (r *ClaimRepo) MaxWaitlistPosition(ctx context.Context, timeslotID uuid.UUID) (int, error) {
	const op = "postgres.ClaimRepo.MaxWaitlistPosition"

	var pos int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(waitlist_position), 0)
		 FROM timeslot_claims
		 WHERE timeslot_id = $1 AND status = 'waitlist'`,
		timeslotID,
	).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return pos, nil
}

// NextWaitlisted locks the head of the waitlist. Rows held by a concurrent
// promotion are skipped instead of waited on.
func (r *ClaimRepo) NextWaitlisted(ctx context.Context, timeslotID uuid.UUID) (*domain.Claim, error) {
	return r.queryOne(ctx, "postgres.ClaimRepo.NextWaitlisted", nextWaitlistedSQL, timeslotID)
}

func (r *ClaimRepo) Insert(ctx context.Context, c *domain.Claim) error {
	const op = "postgres.ClaimRepo.Insert"

	memberID, guestName, guestVID := occupantColumns(c.Occupant)

	if _, err := r.db.Exec(ctx,
		`INSERT INTO timeslot_claims(
		    id, timeslot_id, member_id, guest_name, guest_verification_id,
		    status, offer_expires_at, waitlist_position, claimed_at, updated_at, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.TimeslotID, memberID, guestName, guestVID,
		string(c.Status), c.OfferExpiresAt, c.WaitlistPosition,
		c.ClaimedAt, c.UpdatedAt, c.UpdatedBy,
	); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Update writes the mutable state of a claim. Occupant and timeslot never change.
func (r *ClaimRepo) Update(ctx context.Context, c *domain.Claim) error {
	const op = "postgres.ClaimRepo.Update"

	tag, err := r.db.Exec(ctx,
		`UPDATE timeslot_claims
		 SET status = $2, offer_expires_at = $3, waitlist_position = $4,
		     updated_at = $5, updated_by = $6
		 WHERE id = $1`,
		c.ID, string(c.Status), c.OfferExpiresAt, c.WaitlistPosition,
		c.UpdatedAt, c.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *ClaimRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.ClaimRepo.Delete"

	tag, err := r.db.Exec(ctx, `DELETE FROM timeslot_claims WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *ClaimRepo) ListByEvent(ctx context.Context, eventID int64) ([]domain.Claim, error) {
	const op = "postgres.ClaimRepo.ListByEvent"

	rows, err := r.db.Query(ctx,
		claimSelect+` WHERE t.event_id = $1
		 ORDER BY t.slot_index, c.claimed_at`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// ListExpiredOffers returns offered claims whose window closed before now,
// oldest first. Rows are not locked; callers re-check under lock.
func (r *ClaimRepo) ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	const op = "postgres.ClaimRepo.ListExpiredOffers"

	rows, err := r.db.Query(ctx,
		`SELECT id FROM timeslot_claims
		 WHERE status = 'offered' AND offer_expires_at < $1
		 ORDER BY offer_expires_at
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

var _ repository.ClaimRepo = (*ClaimRepo)(nil)
