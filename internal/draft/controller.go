package draft

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/port"
)

var tracer = otel.Tracer("draft")

var (
	// ErrSubmitInProgress is returned while a submit of the same draft is in flight.
	ErrSubmitInProgress = errors.New("draft: submit already in progress")
	// ErrUnsavedChanges is returned by Cancel when the draft is dirty and the
	// caller did not confirm.
	ErrUnsavedChanges = errors.New("draft: unsaved changes")
	// ErrAttachmentNotFound is returned for an unknown attachment id.
	ErrAttachmentNotFound = errors.New("draft: attachment not found")
)

// Saver persists a validated payload.
type Saver interface {
	Create(ctx context.Context, actor domain.Actor, p domain.EntryPayload) (*domain.BillingEntry, error)
	Update(ctx context.Context, actor domain.Actor, id string, p domain.EntryPayload) (*domain.BillingEntry, error)
}

// Recorder counts submit outcomes.
type Recorder interface {
	RecordDraftSubmit(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDraftSubmit(string) {}

// Deps are the collaborators shared by every controller.
type Deps struct {
	Saver    Saver
	Files    port.FileStorage
	Observer port.EventObserver
	Recorder Recorder
	Logger   *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Observer == nil {
		d.Observer = port.NopObserver
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// PendingAttachment is a blob picked by the user but not uploaded yet. Its
// display name is editable and independent of the original file name.
// FileID is set once the upload succeeded, so a retried submit skips it.
type PendingAttachment struct {
	ID          string `json:"id"`
	FileName    string `json:"fileName"`
	DisplayName string `json:"displayName"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	FileID      string `json:"fileId,omitempty"`
	Data        []byte `json:"-"`
}

// State is a read-only snapshot of a controller.
type State struct {
	ID           string              `json:"id"`
	EntryID      string              `json:"entryId,omitempty"`
	Status       domain.EntryStatus  `json:"status"`
	Form         Form                `json:"form"`
	Attachments  []domain.Attachment `json:"attachments"`
	Pending      []PendingAttachment `json:"pending"`
	Dirty        bool                `json:"dirty"`
	Saving       bool                `json:"saving"`
	Preview      *domain.Preview     `json:"preview,omitempty"`
	PreviewError string              `json:"previewError,omitempty"`
}

// ============================================================
// Controller
// ============================================================

// Controller owns one in-progress entry: the form, its baseline (the initial
// or last persisted values), persisted and pending attachments, and the
// saving flag. It is safe for concurrent use; mutations are refused while a
// submit is in flight.
type Controller struct {
	mu sync.Mutex

	id       string
	owner    domain.Actor
	entryID  string
	status   domain.EntryStatus
	template Form

	form        Form
	baseline    Form
	attachments []domain.Attachment
	persisted   []domain.Attachment
	pending     []*PendingAttachment
	saving      bool

	deps Deps
}

// New opens a blank draft for owner. therapistID and rate pre-fill the form;
// a null rate leaves the hourly rate empty.
func New(owner domain.Actor, therapistID string, rate decimal.NullDecimal, deps Deps) *Controller {
	f := Form{TherapistID: therapistID}
	if rate.Valid {
		f.HourlyRate = rate.Decimal
	}
	return &Controller{
		id:       uuid.NewString(),
		owner:    owner,
		status:   domain.StatusDraft,
		template: f,
		form:     f,
		baseline: f,
		deps:     deps.withDefaults(),
	}
}

// Load opens an existing entry for editing. APPROVED entries are read-only.
func Load(owner domain.Actor, e *domain.BillingEntry, deps Deps) (*Controller, error) {
	if err := e.CheckEdit(owner); err != nil {
		return nil, err
	}
	f := formOf(e)
	return &Controller{
		id:          uuid.NewString(),
		owner:       owner,
		entryID:     e.ID,
		status:      e.Status,
		template:    Form{TherapistID: e.TherapistID, HourlyRate: e.HourlyRate},
		form:        f,
		baseline:    f,
		attachments: slices.Clone(e.Attachments),
		persisted:   slices.Clone(e.Attachments),
		deps:        deps.withDefaults(),
	}, nil
}

// ID is the draft id.
func (c *Controller) ID() string { return c.id }

// Owner is the actor that opened the draft.
func (c *Controller) Owner() domain.Actor { return c.owner }

// Update applies a partial change to the form.
func (c *Controller) Update(p Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving {
		return ErrSubmitInProgress
	}
	c.form = c.form.apply(p)
	return nil
}

// SetTravel toggles the travel cost. Turning it off always zeroes the amount.
func (c *Controller) SetTravel(has bool, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving {
		return ErrSubmitInProgress
	}
	c.form.HasTravelCost = has
	if has {
		c.form.TravelCost = amount
	} else {
		c.form.TravelCost = decimal.Zero
	}
	return nil
}

// AddAttachment queues a blob for upload on the next submit. The display
// name defaults to the file name.
func (c *Controller) AddAttachment(fileName, contentType string, data []byte) (PendingAttachment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving {
		return PendingAttachment{}, ErrSubmitInProgress
	}
	p := &PendingAttachment{
		ID:          uuid.NewString(),
		FileName:    fileName,
		DisplayName: strings.TrimSpace(fileName),
		ContentType: contentType,
		Size:        len(data),
		Data:        data,
	}
	c.pending = append(c.pending, p)
	return *p, nil
}

// RenameAttachment changes the display name of a pending attachment (by its
// id) or of a persisted one (by its file id).
func (c *Controller) RenameAttachment(id, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving {
		return ErrSubmitInProgress
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return &domain.ErrValidation{Field: "name", Message: "campo obrigatório"}
	}
	for _, p := range c.pending {
		if p.ID == id {
			p.DisplayName = name
			return nil
		}
	}
	for i := range c.attachments {
		if c.attachments[i].FileID == id {
			c.attachments[i].Name = name
			return nil
		}
	}
	return ErrAttachmentNotFound
}

// RemoveAttachment drops a pending or persisted attachment.
func (c *Controller) RemoveAttachment(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving {
		return ErrSubmitInProgress
	}
	for i, p := range c.pending {
		if p.ID == id {
			c.pending = slices.Delete(c.pending, i, i+1)
			return nil
		}
	}
	for i := range c.attachments {
		if c.attachments[i].FileID == id {
			c.attachments = slices.Delete(c.attachments, i, i+1)
			return nil
		}
	}
	return ErrAttachmentNotFound
}

// Preview computes the live total of the current form.
func (c *Controller) Preview() (*domain.Preview, error) {
	c.mu.Lock()
	f := c.form
	c.mu.Unlock()
	return domain.PreviewTotal(f.payload(nil))
}

// Dirty reports whether the draft differs from its last persisted or
// initial values.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyLocked()
}

func (c *Controller) dirtyLocked() bool {
	return !c.form.equal(c.baseline) ||
		len(c.pending) > 0 ||
		!slices.Equal(c.attachments, c.persisted)
}

// State returns a snapshot for rendering.
func (c *Controller) State() State {
	c.mu.Lock()
	s := State{
		ID:          c.id,
		EntryID:     c.entryID,
		Status:      c.status,
		Form:        c.form,
		Attachments: slices.Clone(c.attachments),
		Pending:     make([]PendingAttachment, len(c.pending)),
		Dirty:       c.dirtyLocked(),
		Saving:      c.saving,
	}
	for i, p := range c.pending {
		s.Pending[i] = *p
	}
	c.mu.Unlock()

	if s.Attachments == nil {
		s.Attachments = []domain.Attachment{}
	}
	preview, err := domain.PreviewTotal(s.Form.payload(nil))
	if err != nil {
		s.PreviewError = err.Error()
	} else {
		s.Preview = preview
	}
	return s
}

// Cancel abandons the draft's changes. A dirty draft needs confirmed=true.
func (c *Controller) Cancel(confirmed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving {
		return ErrSubmitInProgress
	}
	if c.dirtyLocked() && !confirmed {
		return ErrUnsavedChanges
	}
	c.form = c.baseline
	c.attachments = slices.Clone(c.persisted)
	c.pending = nil
	return nil
}

// ============================================================
// Submit
// ============================================================

// Submit validates the draft, uploads pending attachments, then creates or
// updates the entry. Local state is cleared only after the clinic API
// confirmed the save; on any failure the form and attachments stay as they
// were, minus the uploads that already succeeded.
func (c *Controller) Submit(ctx context.Context) (*domain.BillingEntry, error) {
	ctx, span := tracer.Start(ctx, "Draft.Submit")
	defer span.End()

	c.mu.Lock()
	if c.saving {
		c.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	c.saving = true
	form := c.form
	entryID := c.entryID
	persisted := slices.Clone(c.attachments)
	pending := slices.Clone(c.pending)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.saving = false
		c.mu.Unlock()
	}()

	// Validate everything, pending attachment names included, before any
	// network call.
	candidate := slices.Clone(persisted)
	for _, p := range pending {
		candidate = append(candidate, domain.Attachment{FileID: "pending:" + p.ID, Name: p.DisplayName})
	}
	if _, err := form.payload(candidate).Resolve(); err != nil {
		c.deps.Recorder.RecordDraftSubmit("invalid")
		return nil, err
	}

	if err := c.upload(ctx, entryID, pending); err != nil {
		c.failed(ctx, entryID, "upload", err)
		return nil, err
	}

	atts := persisted
	for _, p := range pending {
		atts = append(atts, domain.Attachment{FileID: p.FileID, Name: p.DisplayName})
	}
	payload := form.payload(atts)

	var (
		saved *domain.BillingEntry
		err   error
	)
	if entryID == "" {
		saved, err = c.deps.Saver.Create(ctx, c.owner, payload)
	} else {
		saved, err = c.deps.Saver.Update(ctx, c.owner, entryID, payload)
	}
	if err != nil {
		c.failed(ctx, entryID, "save", err)
		return nil, err
	}

	c.mu.Lock()
	c.entryID = ""
	c.status = domain.StatusDraft
	c.form = c.template
	c.baseline = c.template
	c.attachments = nil
	c.persisted = nil
	c.pending = nil
	c.mu.Unlock()

	c.deps.Recorder.RecordDraftSubmit("ok")
	ev := domain.NewEvent(domain.EventDraftSubmitted, saved.ID, c.owner.ID)
	ev.Status = saved.Status
	ev.Attrs = map[string]string{"draft": c.id, "attachments": strconv.Itoa(len(atts))}
	c.deps.Observer.Observe(ctx, ev)
	return saved, nil
}

// upload sends every pending blob that has no file id yet, concurrently.
func (c *Controller) upload(ctx context.Context, entryID string, pending []*PendingAttachment) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pending {
		c.mu.Lock()
		done := p.FileID != ""
		c.mu.Unlock()
		if done {
			continue
		}

		p := p
		g.Go(func() error {
			id, err := c.deps.Files.Upload(gctx, domain.FileUpload{
				FileName:    p.FileName,
				ContentType: p.ContentType,
				Data:        p.Data,
				OwnerType:   domain.OwnerTypeBillingEntry,
				OwnerID:     entryID,
				Category:    domain.CategoryBillingProof,
				Description: p.DisplayName,
			})
			if err != nil {
				return err
			}
			c.mu.Lock()
			p.FileID = id
			c.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (c *Controller) failed(ctx context.Context, entryID, stage string, err error) {
	c.deps.Recorder.RecordDraftSubmit("error")
	c.deps.Logger.Warn("draft submit failed",
		zap.String("draft_id", c.id),
		zap.String("entry_id", entryID),
		zap.String("stage", stage),
		zap.Error(err),
	)
	ev := domain.NewEvent(domain.EventDraftFailed, entryID, c.owner.ID)
	ev.Detail = err.Error()
	ev.Attrs = map[string]string{"draft": c.id, "stage": stage}
	c.deps.Observer.Observe(ctx, ev)
}
