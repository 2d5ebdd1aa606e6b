package httpgin

import (
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/openmic/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type ClaimResponse struct {
	ID               uuid.UUID          `json:"id"`
	TimeslotID       uuid.UUID          `json:"timeslot_id"`
	EventID          int64              `json:"event_id"`
	Occupant         domain.OccupantRef `json:"occupant"`
	Status           domain.ClaimStatus `json:"status"`
	OfferExpiresAt   *time.Time         `json:"offer_expires_at,omitempty"`
	WaitlistPosition *int               `json:"waitlist_position,omitempty"`
	ClaimedAt        time.Time          `json:"claimed_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	UpdatedBy        *int64             `json:"updated_by,omitempty"`
}

func toClaimResponse(c *domain.Claim) ClaimResponse {
	return ClaimResponse{
		ID:               c.ID,
		TimeslotID:       c.TimeslotID,
		EventID:          c.EventID,
		Occupant:         domain.RefOf(c.Occupant),
		Status:           c.Status,
		OfferExpiresAt:   c.OfferExpiresAt,
		WaitlistPosition: c.WaitlistPosition,
		ClaimedAt:        c.ClaimedAt,
		UpdatedAt:        c.UpdatedAt,
		UpdatedBy:        c.UpdatedBy,
	}
}

// TransitionResponse is returned by transitions that may release the slot.
type TransitionResponse struct {
	Claim     ClaimResponse     `json:"claim"`
	Promotion *domain.Promotion `json:"promotion,omitempty"`
}

type PromoteResponse struct {
	Promotion *domain.Promotion `json:"promotion"`
}

type RegenerateResponse struct {
	Timeslots []domain.Timeslot `json:"timeslots"`
}

type SetLineupRequest struct {
	// Null clears the now-playing pointer.
	TimeslotID *string `json:"timeslot_id" binding:"omitempty,uuid"`
}
