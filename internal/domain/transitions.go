package domain

var transitions = map[ClaimStatus][]ClaimStatus{
	ClaimConfirmed: {ClaimCancelled, ClaimNoShow, ClaimPerformed},
	ClaimOffered:   {ClaimConfirmed, ClaimCancelled},
	ClaimWaitlist:  {ClaimOffered, ClaimCancelled},
	// no_show after performed is a host correction.
	ClaimPerformed: {ClaimNoShow},
}

// CanTransition reports whether the claim state machine allows from -> to.
func CanTransition(from, to ClaimStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// FreesSlot reports whether moving from -> to releases the timeslot so the
// waitlist should be promoted.
func FreesSlot(from, to ClaimStatus) bool {
	return from.Occupies() && !to.Occupies()
}
