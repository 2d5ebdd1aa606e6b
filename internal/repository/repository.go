package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/openmic/internal/domain"
)

type EventRepo interface {
	GetConfig(ctx context.Context, eventID int64) (*domain.EventConfig, error)
}

type TimeslotRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Timeslot, error)
	// Lock takes an exclusive row lock on the timeslot, waiting for it.
	Lock(ctx context.Context, id uuid.UUID) (*domain.Timeslot, error)
	// TryLock takes an exclusive row lock without waiting. ok is false when
	// another transaction already holds it.
	TryLock(ctx context.Context, id uuid.UUID) (ts *domain.Timeslot, ok bool, err error)
	ListByEvent(ctx context.Context, eventID int64) ([]domain.Timeslot, error)
	DeleteByEvent(ctx context.Context, eventID int64) (int64, error)
	BatchCreate(ctx context.Context, slots []domain.Timeslot) error
}

type ClaimRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Claim, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Claim, error)
	// Occupying returns the claim currently holding the timeslot or ErrNotFound.
	Occupying(ctx context.Context, timeslotID uuid.UUID) (*domain.Claim, error)
	// OpenByOccupant returns the occupant's confirmed, offered or waitlisted
	// claim on the timeslot or ErrNotFound.
	OpenByOccupant(ctx context.Context, timeslotID uuid.UUID, o domain.Occupant) (*domain.Claim, error)
	MaxWaitlistPosition(ctx context.Context, timeslotID uuid.UUID) (int, error)
	// NextWaitlisted locks the lowest-positioned waitlisted claim, skipping rows
	// locked by other transactions. ErrNotFound when none is available.
	NextWaitlisted(ctx context.Context, timeslotID uuid.UUID) (*domain.Claim, error)
	Insert(ctx context.Context, c *domain.Claim) error
	Update(ctx context.Context, c *domain.Claim) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByEvent(ctx context.Context, eventID int64) ([]domain.Claim, error)
	ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type LineupRepo interface {
	// Get returns ErrNotFound when the event has no lineup row yet.
	Get(ctx context.Context, eventID int64) (*domain.LineupState, error)
	Upsert(ctx context.Context, st *domain.LineupState) error
}

type MemberRepo interface {
	// IncrementNoShow atomically bumps the member's no-show counter and
	// returns the new value.
	IncrementNoShow(ctx context.Context, memberID int64) (int64, error)
	NoShowCount(ctx context.Context, memberID int64) (int64, error)
}

// AccessRepo answers whether a member administers an event: its host, an
// accepted co-host, or a site administrator.
type AccessRepo interface {
	CanAdminister(ctx context.Context, eventID, memberID int64) (bool, error)
}

// Repos groups the repositories bound to one database handle.
type Repos interface {
	Events() EventRepo
	Timeslots() TimeslotRepo
	Claims() ClaimRepo
	Lineup() LineupRepo
	Members() MemberRepo
	Access() AccessRepo
}

// Store hands out repositories on the shared pool and runs transactions.
type Store interface {
	Repos
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error
}
