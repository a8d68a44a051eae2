package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Clinic API
	LedgerAPIURL   string
	LedgerAPIToken string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration
	DraftTTL time.Duration

	// Observability
	OTLPEndpoint string

	// JWT issued by the identity provider
	JWTSecret     string
	ReviewerRoles []string

	// Listing
	ListRemoteParams []string // query, filters, sort, paging
	DefaultPageSize  int
	MaxPageSize      int
	SearchDebounce   time.Duration

	// Attachments
	AttachmentThrottle time.Duration
	MaxUploadBytes     int64
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		LedgerAPIURL:   strings.TrimRight(getEnv("LEDGER_API_URL", "http://localhost:3333/api"), "/"),
		LedgerAPIToken: getEnv("LEDGER_API_TOKEN", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),
		DraftTTL: getEnvDuration("DRAFT_TTL", 2*time.Hour),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		ReviewerRoles: getEnvList("REVIEWER_ROLES", []string{"manager", "admin", "reviewer"}),

		ListRemoteParams: getEnvList("LIST_REMOTE_PARAMS", []string{"query", "filters", "sort", "paging"}),
		DefaultPageSize:  getEnvInt("DEFAULT_PAGE_SIZE", 10),
		MaxPageSize:      getEnvInt("MAX_PAGE_SIZE", 100),
		SearchDebounce:   getEnvDuration("SEARCH_DEBOUNCE", 300*time.Millisecond),

		AttachmentThrottle: getEnvDuration("ATTACHMENT_THROTTLE", time.Second),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList reads a comma-separated list, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
