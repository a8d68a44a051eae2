package domain

import (
	"strings"
	"time"
)

// ============================================================
// Status workflow
//
//	DRAFT --create--> SUBMITTED --approve--> APPROVED
//	                      |  \
//	                      |   --reject--> REJECTED
//	                      <------edit--------+
// ============================================================

// Trigger is an action that may move an entry between statuses.
type Trigger string

const (
	TriggerCreate  Trigger = "create"
	TriggerEdit    Trigger = "edit"
	TriggerApprove Trigger = "approve"
	TriggerReject  Trigger = "reject"
)

var transitions = map[EntryStatus]map[Trigger]EntryStatus{
	StatusDraft: {
		TriggerCreate: StatusSubmitted,
		TriggerEdit:   StatusDraft,
	},
	StatusSubmitted: {
		TriggerEdit:    StatusSubmitted,
		TriggerApprove: StatusApproved,
		TriggerReject:  StatusRejected,
	},
	StatusRejected: {
		TriggerEdit: StatusSubmitted,
	},
	StatusApproved: {},
}

// NextStatus returns the status reached by firing t from `from`.
func NextStatus(from EntryStatus, t Trigger) (EntryStatus, error) {
	to, ok := transitions[from][t]
	if !ok {
		return from, &ErrInvalidTransition{From: from, Trigger: t}
	}
	return to, nil
}

// CanFire reports whether t is permitted from the entry's current status.
func (e *BillingEntry) CanFire(t Trigger) bool {
	_, err := NextStatus(e.Status, t)
	return err == nil
}

// Fire moves the entry along the workflow. The entry is unchanged on error.
func (e *BillingEntry) Fire(t Trigger) error {
	next, err := NextStatus(e.Status, t)
	if err != nil {
		return err
	}
	e.Status = next
	return nil
}

// MarkSubmitted records the first successful create call.
func (e *BillingEntry) MarkSubmitted() error {
	return e.Fire(TriggerCreate)
}

// ApplyEdit replaces the editable fields with a resolved payload. Editing a
// REJECTED entry resubmits it and starts a new review cycle.
func (e *BillingEntry) ApplyEdit(r *ResolvedEntry) error {
	prev := e.Status
	if err := e.Fire(TriggerEdit); err != nil {
		return err
	}
	e.apply(r)
	if prev == StatusRejected {
		e.clearReview()
	}
	return nil
}

// Approve is reserved to reviewers and only valid from SUBMITTED.
func (e *BillingEntry) Approve(actor Actor, now time.Time) error {
	if !actor.CanReview() {
		return &ErrForbidden{Action: "approve billing entry"}
	}
	if err := e.Fire(TriggerApprove); err != nil {
		return err
	}
	e.markReviewed(actor, now)
	return nil
}

// Reject is reserved to reviewers and only valid from SUBMITTED.
// The reason is optional.
func (e *BillingEntry) Reject(actor Actor, reason string, now time.Time) error {
	if !actor.CanReview() {
		return &ErrForbidden{Action: "reject billing entry"}
	}
	if err := e.Fire(TriggerReject); err != nil {
		return err
	}
	e.markReviewed(actor, now)
	e.RejectionReason = strings.TrimSpace(reason)
	return nil
}

// CheckEdit reports whether actor may edit the entry in its current status.
func (e *BillingEntry) CheckEdit(actor Actor) error {
	if !actor.Owns(e) {
		return &ErrForbidden{Action: "edit billing entry owned by another user"}
	}
	if !e.CanFire(TriggerEdit) {
		return &ErrInvalidTransition{From: e.Status, Trigger: TriggerEdit}
	}
	return nil
}

// CheckDelete allows deleting DRAFT or SUBMITTED entries by their owner.
func (e *BillingEntry) CheckDelete(actor Actor) error {
	if !actor.Owns(e) {
		return &ErrForbidden{Action: "delete billing entry owned by another user"}
	}
	if e.Status != StatusDraft && e.Status != StatusSubmitted {
		return &ErrInvalidTransition{From: e.Status, Trigger: "delete"}
	}
	return nil
}

func (e *BillingEntry) markReviewed(actor Actor, now time.Time) {
	at := now
	e.ReviewedBy = actor.ID
	e.ReviewedAt = &at
}

func (e *BillingEntry) clearReview() {
	e.RejectionReason = ""
	e.ReviewedBy = ""
	e.ReviewedAt = nil
}
