package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/listing"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/port"
)

// SearchResult is the last page a live search delivered.
type SearchResult struct {
	Seq   uint64                           `json:"seq"`
	Query string                           `json:"query"`
	Page  domain.Page[domain.BillingEntry] `json:"page"`
	Err   error                            `json:"-"`
}

// SearchSession is one actor's search-as-you-type state.
type SearchSession struct {
	live *listing.LiveSearch[domain.BillingEntry]
	base domain.ListFilter

	mu     sync.Mutex
	seq    uint64
	result *SearchResult
}

// Close stops the session's pending query for good.
func (s *SearchSession) Close() { s.live.Close() }

func (s *SearchSession) deliver(f domain.ListFilter, page domain.Page[domain.BillingEntry], err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.result = &SearchResult{Seq: s.seq, Query: f.Query, Page: page, Err: err}
}

// SearchSessions keeps one live search per actor. Typing only schedules a
// query; the page is fetched once typing pauses and read back with Latest.
type SearchSessions struct {
	lister *listing.Adapter[domain.BillingEntry]

	mu       sync.Mutex // guards session lookup and replacement
	sessions port.Cache[*SearchSession]
	delay    time.Duration
	logger   *zap.Logger
}

// NewSearchSessions creates the session store. Idle sessions expire with the
// cache; a cache that reports evictions gets its expired sessions closed.
func NewSearchSessions(lister *listing.Adapter[domain.BillingEntry], sessions port.Cache[*SearchSession], delay time.Duration, logger *zap.Logger) *SearchSessions {
	s := &SearchSessions{lister: lister, sessions: sessions, delay: delay, logger: logger}
	if ev, ok := sessions.(port.EvictingCache[*SearchSession]); ok {
		ev.OnEvict(func(actorID string, sess *SearchSession) {
			sess.Close()
			logger.Debug("search session expired", zap.String("actor_id", actorID))
		})
	}
	return s
}

// Type records the actor's query. base carries the other filters and the
// sort; changing them starts a fresh session. An actor who can see nothing
// gets an empty result at once.
func (s *SearchSessions) Type(actor domain.Actor, query string, base domain.ListFilter) {
	query = strings.TrimSpace(query)
	base.Query, base.Page = "", 1
	base, ok := scopeFilter(actor, base)

	sess := s.session(actor, base)
	if !ok {
		f := base.Normalize(listing.DefaultPageSize, 0)
		f.Query = query
		sess.deliver(f, domain.EmptyPage[domain.BillingEntry](f.PageSize), nil)
		return
	}
	sess.live.Type(query)
}

// Latest returns the newest delivered result, or nil when none arrived yet.
func (s *SearchSessions) Latest(actor domain.Actor) *SearchResult {
	sess, ok := s.sessions.Get(actor.ID)
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.result
}

// Cancel drops the actor's pending query and closes the session.
func (s *SearchSessions) Cancel(actor domain.Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(actor.ID)
	if !ok {
		return
	}
	sess.Close()
	s.sessions.Delete(actor.ID)
}

func (s *SearchSessions) session(actor domain.Actor, base domain.ListFilter) *SearchSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions.Get(actor.ID); ok {
		if sess.base == base {
			return sess
		}
		sess.Close()
	}
	sess := &SearchSession{base: base}
	// Queries outlive the request that typed them.
	sess.live = listing.NewLiveSearch(context.Background(), s.lister, base, s.delay, sess.deliver)
	s.sessions.Set(actor.ID, sess)
	s.logger.Debug("search session opened", zap.String("actor_id", actor.ID))
	return sess
}
