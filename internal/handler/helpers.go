package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/draft"
)

// ============================================================
// Shared helper functions
// ============================================================

const genericUpstreamMessage = "falha na comunicação com o servidor"

// errorResponse is the single error shape of the API. Fields lists every
// violated field of a rejected payload; CurrentStatus and Current tell the
// UI what to refresh after a status conflict.
type errorResponse struct {
	Error         string               `json:"error"`
	Fields        []domain.FieldError  `json:"fields,omitempty"`
	CurrentStatus domain.EntryStatus   `json:"currentStatus,omitempty"`
	Current       *domain.BillingEntry `json:"current,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
	}
	return nil
}

func parsePagination(r *http.Request) (page, pageSize int) {
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("pageSize"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 {
			pageSize = ps
		}
	}
	return
}

// userMessage is the text shown to the user for a failed call: the clinic
// API's own message when it sent one, else a generic one.
func userMessage(err error) string {
	var upstream *domain.ErrUpstream
	if errors.As(err, &upstream) && upstream.Message != "" {
		return upstream.Message
	}
	var open *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var external *domain.ErrExternalService
	if errors.As(err, &open) || errors.As(err, &timeout) || errors.As(err, &external) {
		return genericUpstreamMessage
	}
	return err.Error()
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var violations domain.ValidationErrors
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var stale *domain.ErrStaleEntry
	var transition *domain.ErrInvalidTransition
	var conflict *domain.ErrConflict
	var upstream *domain.ErrUpstream
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &violations):
		logger.Debug("validation errors", zap.Int("fields", len(violations)))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "dados inválidos", Fields: violations})
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  err.Error(),
			Fields: []domain.FieldError{{Field: validation.Field, Message: validation.Message}},
		})
	case errors.As(err, &stale):
		logger.Warn("stale entry", zap.String("entry_id", stale.ID), zap.Error(err))
		resp := errorResponse{Error: userMessage(err), Current: stale.Current}
		if stale.Current != nil {
			resp.CurrentStatus = stale.Current.Status
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.As(err, &transition):
		logger.Debug("invalid transition", zap.String("error", err.Error()))
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), CurrentStatus: transition.From})
	case errors.Is(err, draft.ErrUnsavedChanges), errors.Is(err, draft.ErrSubmitInProgress):
		logger.Debug("draft conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, draft.ErrAttachmentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, genericUpstreamMessage)
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, genericUpstreamMessage)
	case errors.As(err, &upstream):
		status := http.StatusBadGateway
		if upstream.Permanent() {
			status = http.StatusUnprocessableEntity
		}
		logger.Warn("clinic api refused request", zap.Int("upstream_status", upstream.Status), zap.Error(err))
		writeError(w, status, userMessage(err))
	case errors.As(err, &external):
		logger.Error("external service error", zap.Error(err))
		writeError(w, http.StatusBadGateway, genericUpstreamMessage)
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
