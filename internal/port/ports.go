// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

// EntryLister fetches the raw list response. The body is returned undecoded
// because its shape depends on which contract the clinic API currently serves.
type EntryLister interface {
	ListEntries(ctx context.Context, params url.Values) ([]byte, error)
}

// EntryStore persists billing entries in the clinic API.
type EntryStore interface {
	GetEntry(ctx context.Context, id string) (*domain.BillingEntry, error)
	CreateEntry(ctx context.Context, e *domain.BillingEntry) (*domain.BillingEntry, error)
	UpdateEntry(ctx context.Context, e *domain.BillingEntry) (*domain.BillingEntry, error)
	DeleteEntry(ctx context.Context, id string) error
}

// ReviewGateway applies a reviewer decision to a SUBMITTED entry.
type ReviewGateway interface {
	SubmitReview(ctx context.Context, entryID string, review domain.Review) (*domain.BillingEntry, error)
}

// FileStorage stores attachment blobs and builds their access URLs.
type FileStorage interface {
	Upload(ctx context.Context, f domain.FileUpload) (fileID string, err error)
	FileURL(fileID string, access domain.FileAccess) string
}

// RateLookup resolves a therapist's configured hourly rate.
// ok is false when the therapist has no rate configured.
type RateLookup interface {
	HourlyRate(ctx context.Context, therapistID string) (rate decimal.Decimal, ok bool, err error)
}

// EventObserver receives ledger events. Implementations must not block.
type EventObserver interface {
	Observe(ctx context.Context, ev domain.Event)
}

// ObserverFunc adapts a function to EventObserver.
type ObserverFunc func(ctx context.Context, ev domain.Event)

func (f ObserverFunc) Observe(ctx context.Context, ev domain.Event) { f(ctx, ev) }

// NopObserver discards every event.
var NopObserver EventObserver = ObserverFunc(func(context.Context, domain.Event) {})

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// EvictingCache is a Cache that reports the entries it drops on expiry.
type EvictingCache[T any] interface {
	Cache[T]
	OnEvict(fn func(key string, value T))
}
