package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/service"
)

// ============================================================
// Busca — /v1/billing/search
// ============================================================

type searchResponse struct {
	*service.SearchResult
	Error string `json:"error,omitempty"`
}

// typeSearchHandler schedules a search-as-you-type query. The other list
// parameters are read from the query string, the typed text from the body.
func typeSearchHandler(search *service.SearchSessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/billing/search")
		defer span.End()

		f, err := parseListFilter(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req struct {
			Query string `json:"q"`
		}
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		search.Type(ActorFromContext(ctx), req.Query, f)
		w.WriteHeader(http.StatusAccepted)
	}
}

func latestSearchHandler(search *service.SearchSessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := search.Latest(ActorFromContext(r.Context()))
		if res == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		resp := searchResponse{SearchResult: res}
		if res.Err != nil {
			resp.Error = userMessage(res.Err)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelSearchHandler(search *service.SearchSessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		search.Cancel(ActorFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}
}
