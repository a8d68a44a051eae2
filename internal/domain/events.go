package domain

import "time"

// EventType names something observable that happened in the ledger.
type EventType string

const (
	EventEntryCreated   EventType = "entry.created"
	EventEntryUpdated   EventType = "entry.updated"
	EventEntryDeleted   EventType = "entry.deleted"
	EventEntryApproved  EventType = "entry.approved"
	EventEntryRejected  EventType = "entry.rejected"
	EventEntryStale     EventType = "entry.stale"
	EventListUnexpected EventType = "list.unexpected_shape"
	EventListFailed     EventType = "list.failed"
	EventDraftSubmitted EventType = "draft.submitted"
	EventDraftFailed    EventType = "draft.submit_failed"
)

// Event is emitted to an observer instead of a global bus, so callers and
// tests decide where audit information goes.
type Event struct {
	Type      EventType         `json:"type"`
	EntryID   string            `json:"entryId,omitempty"`
	ActorID   string            `json:"actorId,omitempty"`
	Status    EntryStatus       `json:"status,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, entryID, actorID string) Event {
	return Event{Type: t, EntryID: entryID, ActorID: actorID, Timestamp: time.Now()}
}
