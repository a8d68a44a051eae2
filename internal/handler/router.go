package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/draft"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/debounce"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/observability"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/port"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/service"
)

var tracer = otel.Tracer("handler")

// RouterDeps are the collaborators behind the HTTP surface. Without a
// Verifier the /v1 routes answer 503.
type RouterDeps struct {
	Ledger         *service.LedgerService
	Search         *service.SearchSessions
	Drafts         *draft.Registry
	Files          port.FileStorage
	Verifier       *TokenVerifier
	Breaker        *gobreaker.CircuitBreaker
	Metrics        *observability.Metrics
	Throttle       *debounce.KeyedThrottle
	MaxUploadBytes int64
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(deps RouterDeps, logger *zap.Logger) http.Handler {
	if deps.Throttle == nil {
		deps.Throttle = debounce.NewKeyedThrottle(time.Second)
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 10 << 20
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(deps.Breaker))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if deps.Verifier == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "auth not configured: JWT_SECRET missing")
			}))
			return
		}
		r.Use(JWTAuthMiddleware(deps.Verifier, logger))

		// =============================================
		// 1. Lançamentos
		// =============================================
		r.Get("/billing/entries", listEntriesHandler(deps.Ledger, logger))
		r.Post("/billing/entries", createEntryHandler(deps.Ledger, logger))
		r.Get("/billing/entries/{id}", getEntryHandler(deps.Ledger, logger))
		r.Put("/billing/entries/{id}", updateEntryHandler(deps.Ledger, logger))
		r.Delete("/billing/entries/{id}", deleteEntryHandler(deps.Ledger, logger))

		r.Post("/billing/search", typeSearchHandler(deps.Search, logger))
		r.Get("/billing/search", latestSearchHandler(deps.Search))
		r.Delete("/billing/search", cancelSearchHandler(deps.Search))

		// =============================================
		// 2. Revisão (reviewers only)
		// =============================================
		r.Post("/billing/entries/{id}/approve", approveEntryHandler(deps.Ledger, logger))
		r.Post("/billing/entries/{id}/reject", rejectEntryHandler(deps.Ledger, logger))

		// =============================================
		// 3. Cálculo & valor-hora
		// =============================================
		r.Post("/billing/preview", previewHandler(deps.Ledger, logger))
		r.Get("/therapists/{therapistId}/rate", therapistRateHandler(deps.Ledger, logger))

		// =============================================
		// 4. Rascunhos
		// =============================================
		r.Post("/billing/drafts", openDraftHandler(deps.Drafts, logger))
		r.Get("/billing/drafts/{draftId}", getDraftHandler(deps.Drafts, logger))
		r.Patch("/billing/drafts/{draftId}", patchDraftHandler(deps.Drafts, logger))
		r.Delete("/billing/drafts/{draftId}", discardDraftHandler(deps.Drafts, logger))
		r.Put("/billing/drafts/{draftId}/travel", setTravelHandler(deps.Drafts, logger))
		r.Post("/billing/drafts/{draftId}/attachments", addAttachmentHandler(deps.Drafts, deps.MaxUploadBytes, logger))
		r.Patch("/billing/drafts/{draftId}/attachments/{attachmentId}", renameAttachmentHandler(deps.Drafts, logger))
		r.Delete("/billing/drafts/{draftId}/attachments/{attachmentId}", removeAttachmentHandler(deps.Drafts, logger))
		r.Post("/billing/drafts/{draftId}/submit", submitDraftHandler(deps.Drafts, logger))

		// =============================================
		// 5. Documentos
		// =============================================
		r.Get("/attachments/{fileId}/{access}", openAttachmentHandler(deps.Files, deps.Throttle, logger))

		// =============================================
		// 6. Métricas
		// =============================================
		r.Get("/metrics/listing", listingMetricsHandler(deps.Metrics))
	})

	return r
}

// ============================================================
// Métricas & Health
// ============================================================

func healthzHandler(breaker *gobreaker.CircuitBreaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "bfa-api", Status: "healthy", LastChecked: now},
		}

		if breaker != nil {
			state := breaker.State()
			status := "healthy"
			switch state {
			case gobreaker.StateHalfOpen:
				status = "degraded"
			case gobreaker.StateOpen:
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: breaker.Name(), Status: status, Breaker: state.String(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func listingMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.ListingSnapshot())
	}
}
