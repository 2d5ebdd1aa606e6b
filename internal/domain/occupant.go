package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// Occupant is either a Member or a Guest. The unexported marker method keeps
// the set of implementations closed to this package.
type Occupant interface {
	occupant()
	// Key is a stable identifier usable for rate limiting and logging.
	Key() string
}

// Member is a registered, verified member.
type Member struct {
	ID int64
}

// Guest is an unregistered performer whose contact was verified by the
// identity provider. VerificationID references that external record; the
// contact itself never enters this service.
type Guest struct {
	Name           string
	VerificationID uuid.UUID
}

func (Member) occupant() {}
func (Guest) occupant()  {}

func (m Member) Key() string { return "member:" + strconv.FormatInt(m.ID, 10) }
func (g Guest) Key() string  { return "guest:" + g.VerificationID.String() }

// SameOccupant reports whether a and b identify the same performer.
func SameOccupant(a, b Occupant) bool {
	switch x := a.(type) {
	case Member:
		y, ok := b.(Member)
		return ok && x.ID == y.ID
	case Guest:
		y, ok := b.(Guest)
		return ok && x.VerificationID == y.VerificationID
	}
	return false
}

// MemberID returns the member id of o, or false for guests.
func MemberID(o Occupant) (int64, bool) {
	if m, ok := o.(Member); ok {
		return m.ID, true
	}
	return 0, false
}

// ActorID is the audit value written to updated_by for a transition made by o.
// Guests have no durable identity, so they are recorded as nil.
func ActorID(o Occupant) *int64 {
	if id, ok := MemberID(o); ok {
		return &id
	}
	return nil
}

// OccupantRef is the public projection of an Occupant.
type OccupantRef struct {
	Kind     string `json:"kind"`
	MemberID int64  `json:"member_id,omitempty"`
	Name     string `json:"name,omitempty"`
}

func RefOf(o Occupant) OccupantRef {
	switch x := o.(type) {
	case Member:
		return OccupantRef{Kind: "member", MemberID: x.ID}
	case Guest:
		return OccupantRef{Kind: "guest", Name: x.Name}
	}
	return OccupantRef{}
}

// ValidateOccupant checks the identity payload before any claim is written.
func ValidateOccupant(o Occupant) error {
	switch x := o.(type) {
	case Member:
		if x.ID <= 0 {
			return ValidationError{Field: "member_id", Reason: "must be positive"}
		}
		return nil
	case Guest:
		if x.Name == "" {
			return ValidationError{Field: "guest_name", Reason: "required"}
		}
		if x.VerificationID == uuid.Nil {
			return ValidationError{Field: "guest_verification_id", Reason: "required"}
		}
		return nil
	case nil:
		return ValidationError{Field: "occupant", Reason: "required"}
	}
	return ValidationError{Field: "occupant", Reason: "unknown kind"}
}
