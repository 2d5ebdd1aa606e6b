package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrSlotUnavailable   = errors.New("timeslot unavailable")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyClaimed    = errors.New("occupant already holds a claim on this timeslot")
	ErrEventNotPublished = errors.New("event is not published")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Unwrap() error { return ErrValidation }

type TransitionError struct {
	ClaimID uuid.UUID
	From    ClaimStatus
	To      ClaimStatus
	Reason  string
}

func (e TransitionError) Error() string {
	msg := fmt.Sprintf("claim %s: cannot move from %s to %s", e.ClaimID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e TransitionError) Unwrap() error { return ErrInvalidTransition }
