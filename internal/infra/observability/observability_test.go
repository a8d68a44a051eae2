package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

func TestListingSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordListShape("legacy")
	m.RecordListShape("legacy")
	m.RecordListShape("legacy")
	m.RecordListShape("paged")
	m.RecordListFailure()

	snap := m.ListingSnapshot()
	if snap.LegacyResponses != 3 || snap.PagedResponses != 1 || snap.UnknownResponses != 0 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.ListFailures != 1 {
		t.Errorf("expected 1 failure, got %d", snap.ListFailures)
	}
	if snap.LegacyRatio != 0.75 {
		t.Errorf("expected ratio 0.75, got %v", snap.LegacyRatio)
	}
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordListShape("paged")
	if got := b.ListingSnapshot().PagedResponses; got != 0 {
		t.Errorf("registries leak between instances: %d", got)
	}
}

func TestEventLogger_LevelsByType(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	el := NewEventLogger(zap.New(core))

	el.Observe(context.Background(), domain.NewEvent(domain.EventEntryApproved, "e-1", "m-1"))
	el.Observe(context.Background(), domain.NewEvent(domain.EventListUnexpected, "", ""))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["entry_id"] != "e-1" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("expected warn for unexpected shape, got %v", entries[1].Level)
	}
}

func TestZapLoggerMiddleware_LogsRoutePattern(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	r := chi.NewRouter()
	r.Use(ZapLoggerMiddleware(zap.New(core)))
	r.Get("/entries/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/entries/42", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("expected warn for 404, got %v", entries[0].Level)
	}
	if got := entries[0].ContextMap()["route"]; got != "/entries/{id}" {
		t.Errorf("expected route pattern, got %v", got)
	}
}

func TestNewLogger_FallsBackToInfo(t *testing.T) {
	l := NewLogger("verbose")
	if l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled for unknown level")
	}
	if !l.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be enabled")
	}
}
