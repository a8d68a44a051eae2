package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/draft"
)

// ============================================================
// Rascunhos — /v1/billing/drafts
// ============================================================

func openDraftHandler(reg *draft.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/billing/drafts")
		defer span.End()

		var req struct {
			EntryID     string `json:"entryId"`
			TherapistID string `json:"therapistId"`
		}
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}

		actor := ActorFromContext(ctx)
		var (
			c   *draft.Controller
			err error
		)
		if req.EntryID != "" {
			c, err = reg.Edit(ctx, actor, req.EntryID)
		} else {
			c, err = reg.Open(ctx, actor, req.TherapistID)
		}
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, c.State())
	}
}

// withDraft resolves {draftId} for the authenticated actor.
func withDraft(reg *draft.Registry, logger *zap.Logger, fn func(w http.ResponseWriter, r *http.Request, c *draft.Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := reg.Get(ActorFromContext(r.Context()), chi.URLParam(r, "draftId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		fn(w, r, c)
	}
}

func getDraftHandler(reg *draft.Registry, logger *zap.Logger) http.HandlerFunc {
	return withDraft(reg, logger, func(w http.ResponseWriter, r *http.Request, c *draft.Controller) {
		writeJSON(w, http.StatusOK, c.State())
	})
}

func patchDraftHandler(reg *draft.Registry, logger *zap.Logger) http.HandlerFunc {
	return withDraft(reg, logger, func(w http.ResponseWriter, r *http.Request, c *draft.Controller) {
		var p draft.Patch
		if err := decodeJSON(r, &p); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := c.Update(p); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, c.State())
	})
}

func setTravelHandler(reg *draft.Registry, logger *zap.Logger) http.HandlerFunc {
	return withDraft(reg, logger, func(w http.ResponseWriter, r *http.Request, c *draft.Controller) {
		var req struct {
			HasTravelCost bool            `json:"hasTravelCost"`
			TravelCost    decimal.Decimal `json:"travelCost"`
		}
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := c.SetTravel(req.HasTravelCost, req.TravelCost); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, c.State())
	})
}

func addAttachmentHandler(reg *draft.Registry, maxBytes int64, logger *zap.Logger) http.HandlerFunc {
	return withDraft(reg, logger, func(w http.ResponseWriter, r *http.Request, c *draft.Controller) {
		_, span := tracer.Start(r.Context(), "POST /v1/billing/drafts/{draftId}/attachments")
		defer span.End()

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "arquivo muito grande")
				return
			}
			handleServiceError(w, &domain.ErrValidation{Field: "file", Message: "multipart inválido"}, logger)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, hdr, err := r.FormFile("file")
		if err != nil {
			handleServiceError(w, &domain.ErrValidation{Field: "file", Message: "campo obrigatório"}, logger)
			return
		}
		defer file.Close()
		if hdr.Size > maxBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "arquivo muito grande")
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("file.size", len(data)))

		att, err := c.AddAttachment(hdr.Filename, hdr.Header.Get("Content-Type"), data)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if name := r.FormValue("displayName"); name != "" {
			if err := c.RenameAttachment(att.ID, name); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}
		writeJSON(w, http.StatusCreated, c.State())
	})
}

func renameAttachmentHandler(reg *draft.Registry, logger *zap.Logger) http.HandlerFunc {
	return withDraft(reg, logger, func(w http.ResponseWriter, r *http.Request, c *draft.Controller) {
		var req struct {
			DisplayName string `json:"displayName"`
		}
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := c.RenameAttachment(chi.URLParam(r, "attachmentId"), req.DisplayName); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, c.State())
	})
}

func removeAttachmentHandler(reg *draft.Registry, logger *zap.Logger) http.HandlerFunc {
	return withDraft(reg, logger, func(w http.ResponseWriter, r *http.Request, c *draft.Controller) {
		if err := c.RemoveAttachment(chi.URLParam(r, "attachmentId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, c.State())
	})
}

func submitDraftHandler(reg *draft.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/billing/drafts/{draftId}/submit")
		defer span.End()

		id := chi.URLParam(r, "draftId")
		span.SetAttributes(attribute.String("draft.id", id))

		e, err := reg.Submit(ctx, ActorFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func discardDraftHandler(reg *draft.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
		if err := reg.Discard(ActorFromContext(r.Context()), chi.URLParam(r, "draftId"), confirmed); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
