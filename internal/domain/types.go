package domain

import (
	"time"

	"github.com/google/uuid"
)

type ClaimStatus string

const (
	ClaimConfirmed ClaimStatus = "confirmed"
	ClaimOffered   ClaimStatus = "offered"
	ClaimWaitlist  ClaimStatus = "waitlist"
	ClaimCancelled ClaimStatus = "cancelled"
	ClaimNoShow    ClaimStatus = "no_show"
	ClaimPerformed ClaimStatus = "performed"
)

// Occupies reports whether a claim in this status holds the timeslot.
// At most one claim per timeslot may be in an occupying status.
func (s ClaimStatus) Occupies() bool {
	switch s {
	case ClaimConfirmed, ClaimOffered, ClaimPerformed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed, with the
// exception of performed -> no_show corrections.
func (s ClaimStatus) Terminal() bool {
	switch s {
	case ClaimCancelled, ClaimNoShow, ClaimPerformed:
		return true
	}
	return false
}

// Open reports whether the claim still participates in the slot, either as
// the occupant or in the queue.
func (s ClaimStatus) Open() bool {
	switch s {
	case ClaimConfirmed, ClaimOffered, ClaimWaitlist:
		return true
	}
	return false
}

func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimConfirmed, ClaimOffered, ClaimWaitlist,
		ClaimCancelled, ClaimNoShow, ClaimPerformed:
		return true
	}
	return false
}

// EventConfig is the read-only slice of an event this service works with.
type EventConfig struct {
	ID                     int64      `json:"id"`
	HostID                 int64      `json:"host_id"`
	StartsAt               *time.Time `json:"starts_at,omitempty"`
	TotalSlots             int        `json:"total_slots"`
	SlotDurationMinutes    int        `json:"slot_duration_minutes"`
	SlotOfferWindowMinutes int        `json:"slot_offer_window_minutes"`
	IsPublished            bool       `json:"is_published"`
}

func (e EventConfig) HasStartTime() bool {
	return e.StartsAt != nil
}

type Timeslot struct {
	ID                 uuid.UUID `json:"id"`
	EventID            int64     `json:"event_id"`
	SlotIndex          int       `json:"slot_index"`
	StartOffsetMinutes *int      `json:"start_offset_minutes"`
	DurationMinutes    int       `json:"duration_minutes"`
}

type Claim struct {
	ID               uuid.UUID   `json:"id"`
	TimeslotID       uuid.UUID   `json:"timeslot_id"`
	EventID          int64       `json:"event_id"`
	Occupant         Occupant    `json:"-"`
	Status           ClaimStatus `json:"status"`
	OfferExpiresAt   *time.Time  `json:"offer_expires_at,omitempty"`
	WaitlistPosition *int        `json:"waitlist_position,omitempty"`
	ClaimedAt        time.Time   `json:"claimed_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	UpdatedBy        *int64      `json:"updated_by,omitempty"`
}

// OfferExpired reports whether an offered claim can no longer be accepted at now.
func (c Claim) OfferExpired(now time.Time) bool {
	return c.Status == ClaimOffered && c.OfferExpiresAt != nil && now.After(*c.OfferExpiresAt)
}

// LineupState points at the timeslot currently on stage.
type LineupState struct {
	EventID              int64      `json:"event_id"`
	NowPlayingTimeslotID *uuid.UUID `json:"now_playing_timeslot_id"`
	UpdatedBy            *int64     `json:"updated_by,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// SlotView is one row of the public slot board.
type SlotView struct {
	Timeslot       Timeslot     `json:"timeslot"`
	Occupant       *OccupantRef `json:"occupant,omitempty"`
	Status         ClaimStatus  `json:"status,omitempty"`
	OfferExpiresAt *time.Time   `json:"offer_expires_at,omitempty"`
	WaitlistLength int          `json:"waitlist_length"`
}

// Promotion is the result of a successful waitlist promotion.
type Promotion struct {
	ClaimID        uuid.UUID `json:"claim_id"`
	TimeslotID     uuid.UUID `json:"timeslot_id"`
	OfferExpiresAt time.Time `json:"offer_expires_at"`
}

// ClaimEvent describes a committed claim transition for notification sinks.
type ClaimEvent struct {
	ClaimID    uuid.UUID   `json:"claim_id"`
	TimeslotID uuid.UUID   `json:"timeslot_id"`
	EventID    int64       `json:"event_id"`
	From       ClaimStatus `json:"from,omitempty"`
	To         ClaimStatus `json:"to"`
	Occupant   OccupantRef `json:"occupant"`
	ActorID    *int64      `json:"actor_id,omitempty"`
	At         time.Time   `json:"at"`
}
