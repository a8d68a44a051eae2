package listing

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/debounce"
)

// DefaultSearchDelay is the quiet period before a typed query is sent.
const DefaultSearchDelay = 300 * time.Millisecond

// LiveSearch runs search-as-you-type over an Adapter. Only the result of the
// latest query is delivered; responses to superseded queries are dropped, and
// nothing is delivered after Close.
type LiveSearch[T any] struct {
	ctx      context.Context
	adapter  *Adapter[T]
	deb      *debounce.Debouncer
	onResult func(domain.ListFilter, domain.Page[T], error)

	mu     sync.Mutex
	base   domain.ListFilter
	gen    uint64
	closed bool
}

// NewLiveSearch creates a live search. onResult receives the filter that
// produced the page; it is called from a background goroutine and must not
// call back into the LiveSearch.
func NewLiveSearch[T any](ctx context.Context, adapter *Adapter[T], base domain.ListFilter, delay time.Duration, onResult func(domain.ListFilter, domain.Page[T], error)) *LiveSearch[T] {
	if delay <= 0 {
		delay = DefaultSearchDelay
	}
	return &LiveSearch[T]{
		ctx:      ctx,
		adapter:  adapter,
		deb:      debounce.New(delay),
		onResult: onResult,
		base:     base,
	}
}

// Type records a new query; it is sent once typing pauses. A new query
// always restarts at page 1.
func (s *LiveSearch[T]) Type(query string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	f := s.base
	f.Query = query
	f.Page = 1
	s.base = f
	s.mu.Unlock()

	s.deb.Trigger(func() { s.run(gen, f) })
}

// Cancel drops the pending query and any response still in flight.
func (s *LiveSearch[T]) Cancel() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	s.deb.Cancel()
}

// Close cancels everything and stops delivering results for good.
func (s *LiveSearch[T]) Close() {
	s.mu.Lock()
	s.gen++
	s.closed = true
	s.mu.Unlock()
	s.deb.Stop()
}

func (s *LiveSearch[T]) run(gen uint64, f domain.ListFilter) {
	page, err := s.adapter.List(s.ctx, f)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	s.onResult(f, page, err)
}
