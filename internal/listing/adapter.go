package listing

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/port"
)

var tracer = otel.Tracer("listing")

// Source fetches the raw list body for a set of query params.
type Source interface {
	Fetch(ctx context.Context, params url.Values) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, params url.Values) ([]byte, error)

func (f SourceFunc) Fetch(ctx context.Context, params url.Values) ([]byte, error) {
	return f(ctx, params)
}

// FromLister reads entries through the clinic API's list port.
func FromLister(l port.EntryLister) Source {
	return SourceFunc(l.ListEntries)
}

// Recorder counts list outcomes. observability.Metrics implements it.
type Recorder interface {
	RecordListShape(shape string)
	RecordListFailure()
}

type nopRecorder struct{}

func (nopRecorder) RecordListShape(string) {}
func (nopRecorder) RecordListFailure()     {}

// ============================================================
// Capabilities — which params the remote endpoint understands
// ============================================================

// Capabilities lists the parameter groups sent to the list endpoint. The
// legacy endpoint only reads the free-text query and ignores the rest, and
// local filtering, sorting and slicing are idempotent, so sending everything
// is safe for both shapes.
type Capabilities struct {
	Query   bool
	Filters bool
	Sort    bool
	Paging  bool
}

// AllParams sends every parameter group. It is the default.
var AllParams = Capabilities{Query: true, Filters: true, Sort: true, Paging: true}

// QueryOnly sends the free-text query alone.
var QueryOnly = Capabilities{Query: true}

// ParseCapabilities reads a list such as "query,filters,sort,paging".
// Unknown names are ignored; an empty list means AllParams.
func ParseCapabilities(names []string) Capabilities {
	if len(names) == 0 {
		return AllParams
	}
	var c Capabilities
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "query", "q":
			c.Query = true
		case "filters":
			c.Filters = true
		case "sort":
			c.Sort = true
		case "paging", "page":
			c.Paging = true
		}
	}
	return c
}

// Params encodes the parts of f the remote accepts.
func (c Capabilities) Params(f domain.ListFilter) url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	if c.Query {
		set("q", f.Query)
	}
	if c.Filters {
		set("therapistId", f.TherapistID)
		set("clientId", f.ClientID)
		set("activityType", string(f.ActivityType))
		set("status", string(f.Status))
		set("from", string(f.DateFrom))
		set("to", string(f.DateTo))
	}
	if c.Sort {
		set("sort", f.Sort.String())
	}
	if c.Paging {
		v.Set("page", strconv.Itoa(f.Page))
		v.Set("pageSize", strconv.Itoa(f.PageSize))
	}
	return v
}

// ============================================================
// Adapter
// ============================================================

// Options configures an Adapter. Zero values pick sensible defaults.
type Options struct {
	Capabilities    Capabilities
	DefaultPageSize int
	MaxPageSize     int
	Observer        port.EventObserver
	Recorder        Recorder
}

// Adapter presents one paginated contract over both list response shapes.
type Adapter[T any] struct {
	source   Source
	schema   Schema[T]
	caps     Capabilities
	defSize  int
	maxSize  int
	observer port.EventObserver
	recorder Recorder
	logger   *zap.Logger
}

// NewAdapter creates a list adapter for records described by schema.
func NewAdapter[T any](source Source, schema Schema[T], opts Options, logger *zap.Logger) *Adapter[T] {
	a := &Adapter[T]{
		source:   source,
		schema:   schema,
		caps:     opts.Capabilities,
		defSize:  opts.DefaultPageSize,
		maxSize:  opts.MaxPageSize,
		observer: opts.Observer,
		recorder: opts.Recorder,
		logger:   logger,
	}
	if a.caps == (Capabilities{}) {
		a.caps = AllParams
	}
	if a.defSize <= 0 {
		a.defSize = DefaultPageSize
	}
	if a.observer == nil {
		a.observer = port.NopObserver
	}
	if a.recorder == nil {
		a.recorder = nopRecorder{}
	}
	return a
}

// List fetches and normalizes one page. On a transport failure it returns an
// empty, usable page together with the error so the caller can render both.
func (a *Adapter[T]) List(ctx context.Context, f domain.ListFilter) (domain.Page[T], error) {
	ctx, span := tracer.Start(ctx, "Listing.List")
	defer span.End()

	f = f.Normalize(a.defSize, a.maxSize)

	body, err := a.source.Fetch(ctx, a.caps.Params(f))
	if err == nil && a.caps != AllParams {
		body, err = a.refetchIfPaged(ctx, body, f)
	}
	if err != nil {
		a.recorder.RecordListFailure()
		a.logger.Warn("list request failed", zap.Error(err))
		ev := domain.NewEvent(domain.EventListFailed, "", "")
		ev.Detail = err.Error()
		a.observer.Observe(ctx, ev)
		span.RecordError(err)
		return domain.EmptyPage[T](f.PageSize), err
	}

	resp := Decode[T](body)
	shape := resp.Shape()
	span.SetAttributes(attribute.String("list.shape", string(shape)))
	a.recorder.RecordListShape(string(shape))

	if u, ok := resp.(UnknownListResult); ok {
		a.logger.Warn("unexpected list response shape",
			zap.String("reason", u.Reason),
			zap.Int("bytes", len(body)),
		)
		ev := domain.NewEvent(domain.EventListUnexpected, "", "")
		ev.Detail = u.Reason
		a.observer.Observe(ctx, ev)
	}

	page := Normalize(a.schema, resp, f)
	a.logger.Debug("list normalized",
		zap.String("shape", string(shape)),
		zap.Int("total", page.Total),
		zap.Int("page", page.Page),
	)
	return page, nil
}

// refetchIfPaged repeats the request with every param when a server that
// paginates answered for a different page than asked. A paged envelope is
// passed through as is, so the narrowed request would show the wrong rows.
func (a *Adapter[T]) refetchIfPaged(ctx context.Context, body []byte, f domain.ListFilter) ([]byte, error) {
	p, ok := Decode[T](body).(PagedListResult[T])
	if !ok {
		return body, nil
	}
	if (p.Page == 0 || p.Page == f.Page) && (p.PageSize == 0 || p.PageSize == f.PageSize) {
		return body, nil
	}
	a.logger.Warn("paged list answered another page, retrying with all params",
		zap.Int("requested_page", f.Page),
		zap.Int("requested_page_size", f.PageSize),
		zap.Int("answered_page", p.Page),
		zap.Int("answered_page_size", p.PageSize),
	)
	return a.source.Fetch(ctx, AllParams.Params(f))
}
