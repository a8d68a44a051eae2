package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/debounce"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/port"
)

// ============================================================
// Documentos — /v1/attachments/{fileId}/{access}
// ============================================================

// openAttachmentHandler redirects to the storage URL of a file. Repeated
// clicks on the same attachment by the same user within the throttle
// interval are answered with 429; other attachments are unaffected.
func openAttachmentHandler(files port.FileStorage, throttle *debounce.KeyedThrottle, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/attachments/{fileId}/{access}")
		defer span.End()

		fileID := chi.URLParam(r, "fileId")
		access := domain.FileAccess(chi.URLParam(r, "access"))
		span.SetAttributes(
			attribute.String("file.id", fileID),
			attribute.String("file.access", string(access)),
		)

		if !access.IsValid() {
			writeError(w, http.StatusNotFound, "modo de acesso desconhecido")
			return
		}

		actor := ActorFromContext(r.Context())
		if !throttle.Allow(actor.ID + "|" + fileID) {
			logger.Debug("duplicate attachment click suppressed",
				zap.String("actor_id", actor.ID),
				zap.String("file_id", fileID),
			)
			writeError(w, http.StatusTooManyRequests, "aguarde antes de abrir o arquivo novamente")
			return
		}

		http.Redirect(w, r, files.FileURL(fileID, access), http.StatusFound)
	}
}
