package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/config"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/draft"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/handler"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/cache"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/debounce"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/ledgerapi"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/observability"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/listing"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("ledger_api_url", cfg.LedgerAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("draft_ttl", cfg.DraftTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Strings("list_remote_params", cfg.ListRemoteParams),
		zap.Strings("reviewer_roles", cfg.ReviewerRoles),
		zap.Duration("search_debounce", cfg.SearchDebounce),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "clinica-faturamento-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics & events ---
	metrics := observability.NewMetrics()
	events := observability.NewEventLogger(logger)

	// --- Cache ---
	rateCache := cache.New[domain.TherapistRate](cfg.CacheTTL)
	defer rateCache.Close()
	draftCache := cache.NewSliding[*draft.Controller](cfg.DraftTTL)
	defer draftCache.Close()
	searchCache := cache.NewSliding[*service.SearchSession](cfg.DraftTTL)
	defer searchCache.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("clinic-api", logger)

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	clinic := ledgerapi.NewClient(httpClient, cfg.LedgerAPIURL, cfg.LedgerAPIToken, cb, resilienceCfg, logger)

	lister := listing.NewAdapter(
		listing.FromLister(clinic),
		listing.EntrySchema(),
		listing.Options{
			Capabilities:    listing.ParseCapabilities(cfg.ListRemoteParams),
			DefaultPageSize: cfg.DefaultPageSize,
			MaxPageSize:     cfg.MaxPageSize,
			Observer:        events,
			Recorder:        metrics,
		},
		logger,
	)

	// --- Services ---
	ledgerSvc := service.NewLedgerService(lister, clinic, clinic, clinic, rateCache, events, metrics, logger)
	searches := service.NewSearchSessions(lister, searchCache, cfg.SearchDebounce, logger)

	drafts := draft.NewRegistry(draftCache, ledgerSvc, draft.Deps{
		Files:    clinic,
		Observer: events,
		Recorder: metrics,
		Logger:   logger,
	})

	var verifier *handler.TokenVerifier
	if cfg.JWTSecret != "" {
		verifier = handler.NewTokenVerifier(cfg.JWTSecret, cfg.ReviewerRoles)
	} else {
		logger.Warn("JWT_SECRET not set, /v1 routes unavailable")
	}

	// --- Router ---
	router := handler.NewRouter(handler.RouterDeps{
		Ledger:         ledgerSvc,
		Search:         searches,
		Drafts:         drafts,
		Files:          clinic,
		Verifier:       verifier,
		Breaker:        cb,
		Metrics:        metrics,
		Throttle:       debounce.NewKeyedThrottle(cfg.AttachmentThrottle),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
