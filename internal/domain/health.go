package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an upstream dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Breaker     string `json:"breaker,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// ListingMetrics is returned by GET /v1/metrics/listing. It tells how far
// the clinic API has migrated from the legacy list shape.
type ListingMetrics struct {
	LegacyResponses  int64   `json:"legacyResponses"`
	PagedResponses   int64   `json:"pagedResponses"`
	UnknownResponses int64   `json:"unknownResponses"`
	ListFailures     int64   `json:"listFailures"`
	LegacyRatio      float64 `json:"legacyRatio"`
}
