package domain

// ============================================================
// Actor — the authenticated caller, taken from the identity provider token
// ============================================================

// Actor is the user performing an operation.
type Actor struct {
	ID          string   `json:"id"`
	TherapistID string   `json:"therapistId,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Reviewer    bool     `json:"reviewer"`
}

// CanReview reports the reviewer capability (approve / reject).
func (a Actor) CanReview() bool {
	return a.Reviewer
}

// Owns reports whether the actor created the entry or is its therapist.
func (a Actor) Owns(e *BillingEntry) bool {
	if a.ID != "" && e.CreatedBy == a.ID {
		return true
	}
	return a.TherapistID != "" && e.TherapistID == a.TherapistID
}

// HasAnyRole reports whether one of the actor's roles is in set.
func (a Actor) HasAnyRole(set []string) bool {
	for _, r := range a.Roles {
		for _, s := range set {
			if r == s {
				return true
			}
		}
	}
	return false
}
