package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/observability"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/listing"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/port"
)

var ledgerTracer = otel.Tracer("service/ledger")

// LedgerService applies the billing-entry rules on top of the clinic API:
// lifecycle checks happen here, persistence happens remotely.
type LedgerService struct {
	lister    *listing.Adapter[domain.BillingEntry]
	store     port.EntryStore
	reviews   port.ReviewGateway
	rates     port.RateLookup
	rateCache port.Cache[domain.TherapistRate]
	observer  port.EventObserver
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewLedgerService creates a LedgerService. observer may be nil.
func NewLedgerService(
	lister *listing.Adapter[domain.BillingEntry],
	store port.EntryStore,
	reviews port.ReviewGateway,
	rates port.RateLookup,
	rateCache port.Cache[domain.TherapistRate],
	observer port.EventObserver,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LedgerService {
	if observer == nil {
		observer = port.NopObserver
	}
	return &LedgerService{
		lister:    lister,
		store:     store,
		reviews:   reviews,
		rates:     rates,
		rateCache: rateCache,
		observer:  observer,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================
// Queries
// ============================================================

// List returns one page of entries. Callers without the reviewer capability
// only ever see their own therapist's entries. On a degraded listing the
// page is empty but usable and err describes the failure.
func (s *LedgerService) List(ctx context.Context, actor domain.Actor, f domain.ListFilter) (domain.Page[domain.BillingEntry], error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.List")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("ledger_list", time.Since(start)) }()

	f, ok := scopeFilter(actor, f)
	if !ok {
		f = f.Normalize(listing.DefaultPageSize, 0)
		return domain.EmptyPage[domain.BillingEntry](f.PageSize), nil
	}
	span.SetAttributes(attribute.String("list.query", f.Query))

	return s.lister.List(ctx, f)
}

// Get returns a single entry the actor is allowed to see.
func (s *LedgerService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.BillingEntry, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("entry.id", id))

	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanReview() && !actor.Owns(e) {
		return nil, &domain.ErrForbidden{Action: "view billing entry owned by another user"}
	}
	return e, nil
}

// Preview computes the live total of a payload being edited.
func (s *LedgerService) Preview(ctx context.Context, p domain.EntryPayload) (*domain.Preview, error) {
	_, span := ledgerTracer.Start(ctx, "LedgerService.Preview")
	defer span.End()

	return domain.PreviewTotal(p)
}

// TherapistRate returns the configured hourly rate of a therapist. Rates are
// cached; a therapist without a rate yields a null HourlyRate.
func (s *LedgerService) TherapistRate(ctx context.Context, actor domain.Actor, therapistID string) (*domain.TherapistRate, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.TherapistRate")
	defer span.End()
	span.SetAttributes(attribute.String("therapist.id", therapistID))

	if therapistID == "" {
		return nil, &domain.ErrValidation{Field: "therapistId", Message: "campo obrigatório"}
	}
	if !actor.CanReview() && actor.TherapistID != therapistID {
		return nil, &domain.ErrForbidden{Action: "read another therapist's rate"}
	}

	if cached, ok := s.rateCache.Get(therapistID); ok {
		s.metrics.IncrCacheHit("rate")
		return &cached, nil
	}
	s.metrics.IncrCacheMiss("rate")

	rate, ok, err := s.rates.HourlyRate(ctx, therapistID)
	if err != nil {
		s.metrics.IncrExternalError("clinic-api")
		s.logger.Error("failed to fetch hourly rate", zap.String("therapist_id", therapistID), zap.Error(err))
		return nil, err
	}

	out := domain.TherapistRate{TherapistID: therapistID}
	out.HourlyRate.Decimal, out.HourlyRate.Valid = rate, ok
	s.rateCache.Set(therapistID, out)
	return &out, nil
}

// ============================================================
// Mutations
// ============================================================

// Create validates the payload, computes duration and total and persists a
// new entry. The first successful create moves it to SUBMITTED.
func (s *LedgerService) Create(ctx context.Context, actor domain.Actor, p domain.EntryPayload) (*domain.BillingEntry, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Create")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("ledger_create", time.Since(start)) }()

	if p.TherapistID == "" && !actor.CanReview() {
		p.TherapistID = actor.TherapistID
	}
	if !actor.CanReview() && p.TherapistID != actor.TherapistID {
		s.metrics.RecordTransition(string(domain.TriggerCreate), "rejected")
		return nil, &domain.ErrForbidden{Action: "create billing entry for another therapist"}
	}

	resolved, err := p.Resolve()
	if err != nil {
		s.metrics.RecordTransition(string(domain.TriggerCreate), "invalid")
		return nil, err
	}

	e := domain.NewEntry(resolved, actor.ID)
	if err := e.MarkSubmitted(); err != nil {
		return nil, err
	}

	saved, err := s.store.CreateEntry(ctx, e)
	if err != nil {
		s.metrics.RecordTransition(string(domain.TriggerCreate), "error")
		s.logger.Error("failed to create billing entry",
			zap.String("actor_id", actor.ID),
			zap.String("therapist_id", e.TherapistID),
			zap.Error(err),
		)
		return nil, err
	}
	if saved.Status == "" {
		saved.Status = e.Status
	}

	s.metrics.RecordTransition(string(domain.TriggerCreate), "ok")
	s.emit(ctx, domain.EventEntryCreated, saved, actor)
	s.logger.Info("billing entry created",
		zap.String("entry_id", saved.ID),
		zap.String("therapist_id", saved.TherapistID),
		zap.String("total", saved.Total.StringFixed(2)),
	)
	return saved, nil
}

// Update replaces the editable fields of an entry. APPROVED entries are
// read-only; editing a REJECTED entry resubmits it.
func (s *LedgerService) Update(ctx context.Context, actor domain.Actor, id string, p domain.EntryPayload) (*domain.BillingEntry, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("entry.id", id))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("ledger_update", time.Since(start)) }()

	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.CheckEdit(actor); err != nil {
		s.metrics.RecordTransition(string(domain.TriggerEdit), "rejected")
		return nil, err
	}
	if p.TherapistID == "" {
		p.TherapistID = e.TherapistID
	}
	if !actor.CanReview() && p.TherapistID != e.TherapistID {
		s.metrics.RecordTransition(string(domain.TriggerEdit), "rejected")
		return nil, &domain.ErrForbidden{Action: "move billing entry to another therapist"}
	}

	resolved, err := p.Resolve()
	if err != nil {
		s.metrics.RecordTransition(string(domain.TriggerEdit), "invalid")
		return nil, err
	}

	loaded := e.Status
	if err := e.ApplyEdit(resolved); err != nil {
		return nil, err
	}

	saved, err := s.store.UpdateEntry(ctx, e)
	if err != nil {
		return nil, s.remoteRejected(ctx, domain.TriggerEdit, id, loaded, actor, err)
	}

	s.metrics.RecordTransition(string(domain.TriggerEdit), "ok")
	s.emit(ctx, domain.EventEntryUpdated, saved, actor)
	return saved, nil
}

// Delete removes a DRAFT or SUBMITTED entry.
func (s *LedgerService) Delete(ctx context.Context, actor domain.Actor, id string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("entry.id", id))

	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := e.CheckDelete(actor); err != nil {
		s.metrics.RecordTransition("delete", "rejected")
		return err
	}

	if err := s.store.DeleteEntry(ctx, id); err != nil {
		return s.remoteRejected(ctx, "delete", id, e.Status, actor, err)
	}

	s.metrics.RecordTransition("delete", "ok")
	s.emit(ctx, domain.EventEntryDeleted, e, actor)
	s.logger.Info("billing entry deleted", zap.String("entry_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// ============================================================
// Review
// ============================================================

// Approve moves a SUBMITTED entry to APPROVED. Reviewers only.
func (s *LedgerService) Approve(ctx context.Context, actor domain.Actor, id string) (*domain.BillingEntry, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Approve")
	defer span.End()
	span.SetAttributes(attribute.String("entry.id", id))

	return s.review(ctx, actor, id, domain.TriggerApprove, func(e *domain.BillingEntry) error {
		return e.Approve(actor, s.now())
	})
}

// Reject moves a SUBMITTED entry to REJECTED with an optional reason.
// Reviewers only.
func (s *LedgerService) Reject(ctx context.Context, actor domain.Actor, id, reason string) (*domain.BillingEntry, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Reject")
	defer span.End()
	span.SetAttributes(attribute.String("entry.id", id))

	return s.review(ctx, actor, id, domain.TriggerReject, func(e *domain.BillingEntry) error {
		return e.Reject(actor, reason, s.now())
	})
}

func (s *LedgerService) review(ctx context.Context, actor domain.Actor, id string, t domain.Trigger, decide func(*domain.BillingEntry) error) (*domain.BillingEntry, error) {
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("ledger_review", time.Since(start)) }()

	// Checked before the read so non-reviewers learn nothing about the entry.
	if !actor.CanReview() {
		s.metrics.RecordTransition(string(t), "rejected")
		return nil, &domain.ErrForbidden{Action: string(t) + " billing entry"}
	}

	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	loaded := e.Status
	if err := decide(e); err != nil {
		s.metrics.RecordTransition(string(t), "rejected")
		return nil, err
	}

	saved, err := s.reviews.SubmitReview(ctx, id, domain.ReviewOf(e))
	if err != nil {
		return nil, s.remoteRejected(ctx, t, id, loaded, actor, err)
	}
	if saved.Status == "" {
		saved.Status = e.Status
	}

	s.metrics.RecordTransition(string(t), "ok")
	ev := domain.EventEntryApproved
	if t == domain.TriggerReject {
		ev = domain.EventEntryRejected
	}
	s.emit(ctx, ev, saved, actor)
	s.logger.Info("billing entry reviewed",
		zap.String("entry_id", id),
		zap.String("decision", string(saved.Status)),
		zap.String("reviewer_id", actor.ID),
	)
	return saved, nil
}

// ============================================================
// Helpers
// ============================================================

// scopeFilter pins a non-reviewer's listing to their own therapist. It
// reports false when the actor can see nothing at all.
func scopeFilter(actor domain.Actor, f domain.ListFilter) (domain.ListFilter, bool) {
	if actor.CanReview() {
		return f, true
	}
	if actor.TherapistID == "" {
		return f, false
	}
	f.TherapistID = actor.TherapistID
	return f, true
}

// remoteRejected handles a mutation the clinic API refused after the local
// checks allowed it. A 409, or a 422 while the entry's status moved since it
// was loaded, means the local copy was stale: the entry is re-read and
// returned inside *domain.ErrStaleEntry so the caller can refresh.
func (s *LedgerService) remoteRejected(ctx context.Context, t domain.Trigger, id string, loaded domain.EntryStatus, actor domain.Actor, err error) error {
	var up *domain.ErrUpstream
	if !errors.As(err, &up) || (up.Status != http.StatusConflict && up.Status != http.StatusUnprocessableEntity) {
		s.metrics.RecordTransition(string(t), "error")
		s.logger.Error("billing entry mutation failed",
			zap.String("entry_id", id),
			zap.String("trigger", string(t)),
			zap.Error(err),
		)
		return err
	}

	fresh, getErr := s.store.GetEntry(ctx, id)
	if getErr != nil {
		s.logger.Warn("failed to re-read entry after remote rejection", zap.String("entry_id", id), zap.Error(getErr))
		fresh = nil
	}
	if up.Status == http.StatusUnprocessableEntity && (fresh == nil || fresh.Status == loaded) {
		s.metrics.RecordTransition(string(t), "invalid")
		return err
	}

	s.metrics.RecordTransition(string(t), "stale")
	ev := domain.NewEvent(domain.EventEntryStale, id, actor.ID)
	ev.Detail = up.Message
	ev.Attrs = map[string]string{"trigger": string(t), "loaded": string(loaded)}
	if fresh != nil {
		ev.Status = fresh.Status
	}
	s.observer.Observe(ctx, ev)
	return &domain.ErrStaleEntry{ID: id, Current: fresh, Err: err}
}

func (s *LedgerService) emit(ctx context.Context, t domain.EventType, e *domain.BillingEntry, actor domain.Actor) {
	ev := domain.NewEvent(t, e.ID, actor.ID)
	ev.Status = e.Status
	s.observer.Observe(ctx, ev)
}
