package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Lançamentos (Billing Entries)
// ============================================================

func init() {
	// The clinic API and the UI exchange money as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// EntryStatus is the lifecycle status of a billing entry.
type EntryStatus string

const (
	StatusDraft     EntryStatus = "DRAFT"
	StatusSubmitted EntryStatus = "SUBMITTED"
	StatusApproved  EntryStatus = "APPROVED"
	StatusRejected  EntryStatus = "REJECTED"
)

// IsValid reports whether s is a known status.
func (s EntryStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s EntryStatus) IsTerminal() bool {
	return s == StatusApproved
}

// ActivityType classifies the work billed by an entry.
type ActivityType string

const (
	ActivityOfficeSession       ActivityType = "sessao_consultorio"
	ActivityHomecare            ActivityType = "sessao_homecare"
	ActivityMaterialDevelopment ActivityType = "desenvolvimento_material"
	ActivitySupervisionGiven    ActivityType = "supervisao_realizada"
	ActivitySupervisionReceived ActivityType = "supervisao_recebida"
	ActivityMeeting             ActivityType = "reuniao"
)

var activityLabels = map[ActivityType]string{
	ActivityOfficeSession:       "Sessão em consultório",
	ActivityHomecare:            "Sessão homecare",
	ActivityMaterialDevelopment: "Desenvolvimento de material",
	ActivitySupervisionGiven:    "Supervisão realizada",
	ActivitySupervisionReceived: "Supervisão recebida",
	ActivityMeeting:             "Reunião",
}

// IsValid reports whether a is a known activity type.
func (a ActivityType) IsValid() bool {
	_, ok := activityLabels[a]
	return ok
}

// Label returns the display label, or the raw value for unknown types.
func (a ActivityType) Label() string {
	if l, ok := activityLabels[a]; ok {
		return l
	}
	return string(a)
}

// Date is a calendar date (YYYY-MM-DD) with no time zone.
type Date string

const dateLayout = "2006-01-02"

// Valid reports whether d is a well-formed calendar date.
func (d Date) Valid() bool {
	_, err := time.Parse(dateLayout, string(d))
	return err == nil
}

// Time returns d at midnight UTC.
func (d Date) Time() (time.Time, error) {
	return time.Parse(dateLayout, string(d))
}

// Attachment references a file held by the document storage service.
// Name is the user-assigned display name, independent of the original filename.
type Attachment struct {
	FileID string `json:"fileId" validate:"required"`
	Name   string `json:"name" validate:"required,max=200"`
}

// BillingEntry is one billable unit of therapist time plus associated cost.
type BillingEntry struct {
	ID          string `json:"id,omitempty"`
	TherapistID string `json:"therapistId"`
	ClientID    string `json:"clientId"`

	// Display fields denormalized by the clinic API for listings.
	TherapistName      string `json:"therapistName,omitempty"`
	ClientName         string `json:"clientName,omitempty"`
	ClientEmail        string `json:"clientEmail,omitempty"`
	ClientPhone        string `json:"clientPhone,omitempty"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`

	Date            Date         `json:"date"`
	StartTime       string       `json:"startTime,omitempty"`
	EndTime         string       `json:"endTime,omitempty"`
	DurationMinutes int          `json:"durationMinutes"`
	DurationSource  DurationKind `json:"durationSource,omitempty"`

	ActivityType  ActivityType    `json:"activityType,omitempty"`
	HourlyRate    decimal.Decimal `json:"hourlyRate"`
	HasTravelCost bool            `json:"hasTravelCost"`
	TravelCost    decimal.Decimal `json:"travelCost"`
	Total         decimal.Decimal `json:"total"`

	Notes       string       `json:"notes,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	Status          EntryStatus `json:"status"`
	RejectionReason string      `json:"rejectionReason,omitempty"`
	ReviewedBy      string      `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time  `json:"reviewedAt,omitempty"`

	CreatedBy string     `json:"createdBy,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// EntryPayload is the editable part of an entry, as sent by the UI on
// create and update. Computed and server-assigned fields are absent.
type EntryPayload struct {
	TherapistID    string          `json:"therapistId" validate:"required"`
	ClientID       string          `json:"clientId" validate:"required"`
	Date           Date            `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime      string          `json:"startTime,omitempty" validate:"omitempty,datetime=15:04"`
	EndTime        string          `json:"endTime,omitempty" validate:"omitempty,datetime=15:04"`
	DurationPreset *int            `json:"durationPreset,omitempty"`
	DurationCustom *int            `json:"durationCustom,omitempty"`
	ActivityType   ActivityType    `json:"activityType,omitempty" validate:"omitempty,activity"`
	HourlyRate     decimal.Decimal `json:"hourlyRate"`
	HasTravelCost  bool            `json:"hasTravelCost"`
	TravelCost     decimal.Decimal `json:"travelCost"`
	Notes          string          `json:"notes,omitempty" validate:"max=2000"`
	Attachments    []Attachment    `json:"attachments,omitempty" validate:"dive"`
}

// ResolvedEntry is a payload that passed validation, with its duration
// source and total computed.
type ResolvedEntry struct {
	Payload         EntryPayload
	Duration        DurationSource
	DurationMinutes int
	Total           decimal.Decimal
}

// NewEntry builds a DRAFT entry owned by createdBy from a resolved payload.
func NewEntry(r *ResolvedEntry, createdBy string) *BillingEntry {
	e := &BillingEntry{Status: StatusDraft, CreatedBy: createdBy}
	e.apply(r)
	return e
}

// Payload returns the editable fields of e. The duration source is
// preserved so a round trip resolves to the same variant.
func (e *BillingEntry) Payload() EntryPayload {
	p := EntryPayload{
		TherapistID:   e.TherapistID,
		ClientID:      e.ClientID,
		Date:          e.Date,
		ActivityType:  e.ActivityType,
		HourlyRate:    e.HourlyRate,
		HasTravelCost: e.HasTravelCost,
		TravelCost:    e.TravelCost,
		Notes:         e.Notes,
		Attachments:   append([]Attachment(nil), e.Attachments...),
	}
	minutes := e.DurationMinutes
	switch e.DurationSource {
	case DurationRange:
		p.StartTime, p.EndTime = e.StartTime, e.EndTime
	case DurationPreset:
		p.DurationPreset = &minutes
	default:
		if e.StartTime != "" && e.EndTime != "" {
			p.StartTime, p.EndTime = e.StartTime, e.EndTime
		} else {
			p.DurationCustom = &minutes
		}
	}
	return p
}

func (e *BillingEntry) apply(r *ResolvedEntry) {
	p := r.Payload
	e.TherapistID = p.TherapistID
	e.ClientID = p.ClientID
	e.Date = p.Date
	e.ActivityType = p.ActivityType
	e.HourlyRate = p.HourlyRate
	e.HasTravelCost = p.HasTravelCost
	e.TravelCost = p.TravelCost
	e.Notes = p.Notes
	e.Attachments = append([]Attachment(nil), p.Attachments...)

	e.DurationMinutes = r.DurationMinutes
	e.DurationSource = r.Duration.Kind()
	e.StartTime, e.EndTime = "", ""
	if rng, ok := r.Duration.(FromRange); ok {
		e.StartTime, e.EndTime = rng.Start.String(), rng.End.String()
	}
	e.Total = r.Total
}

// TherapistRate is the configured hourly rate of a therapist. HourlyRate is
// null when none is configured.
type TherapistRate struct {
	TherapistID string              `json:"therapistId"`
	HourlyRate  decimal.NullDecimal `json:"hourlyRate"`
}
