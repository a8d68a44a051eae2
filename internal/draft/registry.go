package draft

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/port"
)

// Ledger is what the registry needs from the ledger service.
type Ledger interface {
	Saver
	Get(ctx context.Context, actor domain.Actor, id string) (*domain.BillingEntry, error)
	TherapistRate(ctx context.Context, actor domain.Actor, therapistID string) (*domain.TherapistRate, error)
}

// Registry keeps the open drafts of this instance, keyed by draft id.
// Drafts expire after a period without access.
type Registry struct {
	drafts port.Cache[*Controller]
	ledger Ledger
	deps   Deps
	logger *zap.Logger
}

// NewRegistry creates a registry. deps.Saver defaults to ledger.
func NewRegistry(drafts port.Cache[*Controller], ledger Ledger, deps Deps) *Registry {
	if deps.Saver == nil {
		deps.Saver = ledger
	}
	deps = deps.withDefaults()
	return &Registry{drafts: drafts, ledger: ledger, deps: deps, logger: deps.Logger}
}

// Open starts a blank draft. therapistID defaults to the actor's own; the
// therapist's configured rate pre-fills the form when it can be read.
func (r *Registry) Open(ctx context.Context, actor domain.Actor, therapistID string) (*Controller, error) {
	ctx, span := tracer.Start(ctx, "Registry.Open")
	defer span.End()

	if therapistID == "" {
		therapistID = actor.TherapistID
	}
	if !actor.CanReview() && therapistID != actor.TherapistID {
		return nil, &domain.ErrForbidden{Action: "open draft for another therapist"}
	}

	var rate decimal.NullDecimal
	if therapistID != "" {
		tr, err := r.ledger.TherapistRate(ctx, actor, therapistID)
		if err != nil {
			r.logger.Warn("rate pre-fill unavailable", zap.String("therapist_id", therapistID), zap.Error(err))
		} else {
			rate = tr.HourlyRate
		}
	}

	c := New(actor, therapistID, rate, r.deps)
	r.drafts.Set(c.ID(), c)
	return c, nil
}

// Edit opens a draft over an existing entry.
func (r *Registry) Edit(ctx context.Context, actor domain.Actor, entryID string) (*Controller, error) {
	ctx, span := tracer.Start(ctx, "Registry.Edit")
	defer span.End()

	e, err := r.ledger.Get(ctx, actor, entryID)
	if err != nil {
		return nil, err
	}
	c, err := Load(actor, e, r.deps)
	if err != nil {
		return nil, err
	}
	r.drafts.Set(c.ID(), c)
	return c, nil
}

// Get returns the actor's draft with the given id.
func (r *Registry) Get(actor domain.Actor, id string) (*Controller, error) {
	c, ok := r.drafts.Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "draft", ID: id}
	}
	if c.Owner().ID != actor.ID {
		return nil, &domain.ErrForbidden{Action: "access draft opened by another user"}
	}
	return c, nil
}

// Submit saves the draft and closes it on success. A failed submit keeps the
// draft open for retry.
func (r *Registry) Submit(ctx context.Context, actor domain.Actor, id string) (*domain.BillingEntry, error) {
	c, err := r.Get(actor, id)
	if err != nil {
		return nil, err
	}
	saved, err := c.Submit(ctx)
	if err != nil {
		return nil, err
	}
	r.drafts.Delete(id)
	return saved, nil
}

// Discard cancels and closes the draft. A dirty draft needs confirmed=true.
func (r *Registry) Discard(actor domain.Actor, id string, confirmed bool) error {
	c, err := r.Get(actor, id)
	if err != nil {
		return err
	}
	if err := c.Cancel(confirmed); err != nil {
		return err
	}
	r.drafts.Delete(id)
	return nil
}
