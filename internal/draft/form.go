// Package draft holds in-progress billing entries between the moment a form
// is opened and the moment the clinic API confirms it was saved.
package draft

import (
	"github.com/shopspring/decimal"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

// Form is the editable part of an entry as the user sees it. Attachments are
// tracked separately by the controller.
type Form struct {
	TherapistID    string              `json:"therapistId"`
	ClientID       string              `json:"clientId"`
	Date           domain.Date         `json:"date"`
	StartTime      string              `json:"startTime"`
	EndTime        string              `json:"endTime"`
	DurationPreset *int                `json:"durationPreset,omitempty"`
	DurationCustom *int                `json:"durationCustom,omitempty"`
	ActivityType   domain.ActivityType `json:"activityType"`
	HourlyRate     decimal.Decimal     `json:"hourlyRate"`
	HasTravelCost  bool                `json:"hasTravelCost"`
	TravelCost     decimal.Decimal     `json:"travelCost"`
	Notes          string              `json:"notes"`
}

// Patch is a partial form update. Nil fields are left untouched; a zero
// preset or custom duration clears that source.
type Patch struct {
	TherapistID    *string              `json:"therapistId"`
	ClientID       *string              `json:"clientId"`
	Date           *domain.Date         `json:"date"`
	StartTime      *string              `json:"startTime"`
	EndTime        *string              `json:"endTime"`
	DurationPreset *int                 `json:"durationPreset"`
	DurationCustom *int                 `json:"durationCustom"`
	ActivityType   *domain.ActivityType `json:"activityType"`
	HourlyRate     *decimal.Decimal     `json:"hourlyRate"`
	Notes          *string              `json:"notes"`
}

func formOf(e *domain.BillingEntry) Form {
	p := e.Payload()
	return Form{
		TherapistID:    p.TherapistID,
		ClientID:       p.ClientID,
		Date:           p.Date,
		StartTime:      p.StartTime,
		EndTime:        p.EndTime,
		DurationPreset: p.DurationPreset,
		DurationCustom: p.DurationCustom,
		ActivityType:   p.ActivityType,
		HourlyRate:     p.HourlyRate,
		HasTravelCost:  p.HasTravelCost,
		TravelCost:     p.TravelCost,
		Notes:          p.Notes,
	}
}

func (f Form) apply(p Patch) Form {
	if p.TherapistID != nil {
		f.TherapistID = *p.TherapistID
	}
	if p.ClientID != nil {
		f.ClientID = *p.ClientID
	}
	if p.Date != nil {
		f.Date = *p.Date
	}
	if p.StartTime != nil {
		f.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		f.EndTime = *p.EndTime
	}
	if p.DurationPreset != nil {
		f.DurationPreset = optional(*p.DurationPreset)
	}
	if p.DurationCustom != nil {
		f.DurationCustom = optional(*p.DurationCustom)
	}
	if p.ActivityType != nil {
		f.ActivityType = *p.ActivityType
	}
	if p.HourlyRate != nil {
		f.HourlyRate = *p.HourlyRate
	}
	if p.Notes != nil {
		f.Notes = *p.Notes
	}
	return f
}

func optional(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func (f Form) payload(attachments []domain.Attachment) domain.EntryPayload {
	return domain.EntryPayload{
		TherapistID:    f.TherapistID,
		ClientID:       f.ClientID,
		Date:           f.Date,
		StartTime:      f.StartTime,
		EndTime:        f.EndTime,
		DurationPreset: f.DurationPreset,
		DurationCustom: f.DurationCustom,
		ActivityType:   f.ActivityType,
		HourlyRate:     f.HourlyRate,
		HasTravelCost:  f.HasTravelCost,
		TravelCost:     f.TravelCost,
		Notes:          f.Notes,
		Attachments:    attachments,
	}
}

func (f Form) equal(o Form) bool {
	return f.TherapistID == o.TherapistID &&
		f.ClientID == o.ClientID &&
		f.Date == o.Date &&
		f.StartTime == o.StartTime &&
		f.EndTime == o.EndTime &&
		intEqual(f.DurationPreset, o.DurationPreset) &&
		intEqual(f.DurationCustom, o.DurationCustom) &&
		f.ActivityType == o.ActivityType &&
		f.HourlyRate.Equal(o.HourlyRate) &&
		f.HasTravelCost == o.HasTravelCost &&
		f.TravelCost.Equal(o.TravelCost) &&
		f.Notes == o.Notes
}

func intEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
