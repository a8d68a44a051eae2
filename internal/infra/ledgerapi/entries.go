package ledgerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

// ============================================================
// Lançamentos — /faturamento/lancamentos
// ============================================================

const entriesPath = "/faturamento/lancamentos"

func entryPath(id string) string {
	return entriesPath + "/" + url.PathEscape(id)
}

// entryBody is the create/update payload: every editable field plus the
// locally computed duration and total. Server-assigned fields are omitted.
type entryBody struct {
	TherapistID     string              `json:"therapistId"`
	ClientID        string              `json:"clientId"`
	Date            domain.Date         `json:"date"`
	StartTime       string              `json:"startTime,omitempty"`
	EndTime         string              `json:"endTime,omitempty"`
	DurationMinutes int                 `json:"durationMinutes"`
	DurationSource  domain.DurationKind `json:"durationSource,omitempty"`
	ActivityType    domain.ActivityType `json:"activityType,omitempty"`
	HourlyRate      decimal.Decimal     `json:"hourlyRate"`
	HasTravelCost   bool                `json:"hasTravelCost"`
	TravelCost      decimal.Decimal     `json:"travelCost"`
	Total           decimal.Decimal     `json:"total"`
	Notes           string              `json:"notes,omitempty"`
	Attachments     []domain.Attachment `json:"attachments"`
	Status          domain.EntryStatus  `json:"status"`
}

func toBody(e *domain.BillingEntry) entryBody {
	attachments := e.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	return entryBody{
		TherapistID:     e.TherapistID,
		ClientID:        e.ClientID,
		Date:            e.Date,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		DurationMinutes: e.DurationMinutes,
		DurationSource:  e.DurationSource,
		ActivityType:    e.ActivityType,
		HourlyRate:      e.HourlyRate,
		HasTravelCost:   e.HasTravelCost,
		TravelCost:      e.TravelCost,
		Total:           e.Total,
		Notes:           e.Notes,
		Attachments:     attachments,
		Status:          e.Status,
	}
}

func decodeEntry(body []byte, op string) (*domain.BillingEntry, error) {
	var e domain.BillingEntry
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, &domain.ErrExternalService{Service: serviceName + "/" + op, Err: fmt.Errorf("decode entry: %w", err)}
	}
	return &e, nil
}

// ListEntries returns the raw list body (implements port.EntryLister).
func (c *Client) ListEntries(ctx context.Context, params url.Values) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "ClinicAPI.ListEntries")
	defer span.End()

	return c.call(ctx, "list", request{method: http.MethodGet, path: entriesPath, query: params})
}

// GetEntry fetches one entry.
func (c *Client) GetEntry(ctx context.Context, id string) (*domain.BillingEntry, error) {
	ctx, span := tracer.Start(ctx, "ClinicAPI.GetEntry")
	defer span.End()
	span.SetAttributes(attribute.String("entry.id", id))

	body, err := c.call(ctx, "get", request{method: http.MethodGet, path: entryPath(id)})
	if err != nil {
		return nil, notFound(err, "billing entry", id)
	}
	return decodeEntry(body, "get")
}

// CreateEntry persists a new entry and returns it with its assigned id.
func (c *Client) CreateEntry(ctx context.Context, e *domain.BillingEntry) (*domain.BillingEntry, error) {
	ctx, span := tracer.Start(ctx, "ClinicAPI.CreateEntry")
	defer span.End()

	req, err := jsonRequest(http.MethodPost, entriesPath, toBody(e))
	if err != nil {
		return nil, err
	}
	body, err := c.call(ctx, "create", req)
	if err != nil {
		return nil, err
	}
	return decodeEntry(body, "create")
}

// UpdateEntry replaces the editable fields of an existing entry.
func (c *Client) UpdateEntry(ctx context.Context, e *domain.BillingEntry) (*domain.BillingEntry, error) {
	ctx, span := tracer.Start(ctx, "ClinicAPI.UpdateEntry")
	defer span.End()
	span.SetAttributes(attribute.String("entry.id", e.ID))

	req, err := jsonRequest(http.MethodPut, entryPath(e.ID), toBody(e))
	if err != nil {
		return nil, err
	}
	body, err := c.call(ctx, "update", req)
	if err != nil {
		return nil, notFound(err, "billing entry", e.ID)
	}
	return decodeEntry(body, "update")
}

// DeleteEntry removes an entry.
func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "ClinicAPI.DeleteEntry")
	defer span.End()
	span.SetAttributes(attribute.String("entry.id", id))

	_, err := c.call(ctx, "delete", request{method: http.MethodDelete, path: entryPath(id)})
	return notFound(err, "billing entry", id)
}

// SubmitReview sends a reviewer decision (implements port.ReviewGateway).
func (c *Client) SubmitReview(ctx context.Context, entryID string, review domain.Review) (*domain.BillingEntry, error) {
	ctx, span := tracer.Start(ctx, "ClinicAPI.SubmitReview")
	defer span.End()
	span.SetAttributes(
		attribute.String("entry.id", entryID),
		attribute.String("review.decision", string(review.Decision)),
	)

	req, err := jsonRequest(http.MethodPost, entryPath(entryID)+"/revisao", review)
	if err != nil {
		return nil, err
	}
	body, err := c.call(ctx, "review", req)
	if err != nil {
		return nil, notFound(err, "billing entry", entryID)
	}
	return decodeEntry(body, "review")
}
