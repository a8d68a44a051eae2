package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/listing"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/service"
)

// ============================================================
// Lançamentos — /v1/billing/entries
// ============================================================

type listResponse struct {
	domain.Page[domain.BillingEntry]
	Error string `json:"error,omitempty"`
}

var entrySchema = listing.EntrySchema()

func parseListFilter(r *http.Request) (domain.ListFilter, error) {
	q := r.URL.Query()
	sort, err := domain.ParseSort(q.Get("sort"))
	if err != nil {
		return domain.ListFilter{}, err
	}
	if !sort.IsZero() && !entrySchema.CanSort(sort.Field) {
		return domain.ListFilter{}, &domain.ErrValidation{Field: "sort", Message: "campo de ordenação desconhecido"}
	}
	f := domain.ListFilter{
		Query:        strings.TrimSpace(q.Get("q")),
		TherapistID:  q.Get("therapistId"),
		ClientID:     q.Get("clientId"),
		ActivityType: domain.ActivityType(q.Get("activityType")),
		Status:       domain.EntryStatus(strings.ToUpper(q.Get("status"))),
		DateFrom:     domain.Date(q.Get("from")),
		DateTo:       domain.Date(q.Get("to")),
		Sort:         sort,
	}
	if f.Status != "" && !f.Status.IsValid() {
		return f, &domain.ErrValidation{Field: "status", Message: "status desconhecido"}
	}
	if f.DateFrom != "" && !f.DateFrom.Valid() {
		return f, &domain.ErrValidation{Field: "from", Message: "formato inválido"}
	}
	if f.DateTo != "" && !f.DateTo.Valid() {
		return f, &domain.ErrValidation{Field: "to", Message: "formato inválido"}
	}
	f.Page, f.PageSize = parsePagination(r)
	return f, nil
}

// listEntriesHandler never fails on a degraded listing: the page is empty and
// the error is reported inline.
func listEntriesHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/billing/entries")
		defer span.End()

		f, err := parseListFilter(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		page, err := svc.List(ctx, ActorFromContext(ctx), f)
		resp := listResponse{Page: page}
		if err != nil {
			logger.Warn("listing degraded", zap.Error(err))
			resp.Error = userMessage(err)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getEntryHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/billing/entries/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("entry.id", id))

		e, err := svc.Get(ctx, ActorFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func createEntryHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/billing/entries")
		defer span.End()

		var p domain.EntryPayload
		if err := decodeJSON(r, &p); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.Create(ctx, ActorFromContext(ctx), p)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func updateEntryHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/billing/entries/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("entry.id", id))

		var p domain.EntryPayload
		if err := decodeJSON(r, &p); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.Update(ctx, ActorFromContext(ctx), id, p)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func deleteEntryHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/billing/entries/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("entry.id", id))

		if err := svc.Delete(ctx, ActorFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func approveEntryHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/billing/entries/{id}/approve")
		defer span.End()

		e, err := svc.Approve(ctx, ActorFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func rejectEntryHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/billing/entries/{id}/reject")
		defer span.End()

		// The reason is optional, so is the body.
		var req struct {
			Reason string `json:"reason"`
		}
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}

		e, err := svc.Reject(ctx, ActorFromContext(ctx), chi.URLParam(r, "id"), req.Reason)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func previewHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/billing/preview")
		defer span.End()

		var p domain.EntryPayload
		if err := decodeJSON(r, &p); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		preview, err := svc.Preview(ctx, p)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

func therapistRateHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/therapists/{therapistId}/rate")
		defer span.End()

		rate, err := svc.TherapistRate(ctx, ActorFromContext(ctx), chi.URLParam(r, "therapistId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rate)
	}
}
