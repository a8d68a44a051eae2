package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	listShapes      *prometheus.CounterVec
	listFailures    prometheus.Counter
	transitions     *prometheus.CounterVec
	draftSubmits    *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		listShapes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_shape_total",
				Help: "List responses by detected shape (legacy, paged, unknown).",
			},
			[]string{"shape"},
		),
		listFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "listing_failures_total",
				Help: "List requests that failed before a body was received.",
			},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transitions_total",
				Help: "Entry workflow triggers by outcome.",
			},
			[]string{"trigger", "outcome"},
		),
		draftSubmits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_draft_submits_total",
				Help: "Draft submissions by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordListShape counts a list response by shape.
func (m *Metrics) RecordListShape(shape string) {
	m.listShapes.WithLabelValues(shape).Inc()
}

// RecordListFailure counts a list request that did not produce a body.
func (m *Metrics) RecordListFailure() {
	m.listFailures.Inc()
}

// RecordTransition counts a workflow trigger; outcome is "ok", "rejected" or "stale".
func (m *Metrics) RecordTransition(trigger, outcome string) {
	m.transitions.WithLabelValues(trigger, outcome).Inc()
}

// RecordDraftSubmit counts a draft submission by outcome.
func (m *Metrics) RecordDraftSubmit(outcome string) {
	m.draftSubmits.WithLabelValues(outcome).Inc()
}

// ListingSnapshot returns the shape counters for GET /v1/metrics/listing.
func (m *Metrics) ListingSnapshot() *domain.ListingMetrics {
	legacy := getCounterValue(m.listShapes, "legacy")
	paged := getCounterValue(m.listShapes, "paged")
	unknown := getCounterValue(m.listShapes, "unknown")

	ratio := float64(0)
	if total := legacy + paged + unknown; total > 0 {
		ratio = legacy / total
	}

	return &domain.ListingMetrics{
		LegacyResponses:  int64(legacy),
		PagedResponses:   int64(paged),
		UnknownResponses: int64(unknown),
		ListFailures:     int64(readCounter(m.listFailures)),
		LegacyRatio:      ratio,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return readCounter(cv.WithLabelValues(label))
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
