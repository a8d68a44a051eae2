package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

// fixture holds 25 entries: 15 whose client is a "Silva" (one spelled in
// capitals), stored in scrambled order.
func fixture() []domain.BillingEntry {
	silva := []string{
		"Helena SILVA", "Caio Silva", "Ígor Silva", "Ana Silva", "Fernanda Silva",
		"Davi Silva", "Álvaro Silva", "Gabriel Silva", "Beatriz Silva", "Elisa Silva",
		"Débora Silva", "Bruno Silva", "Fábio Silva", "Carla Silva", "Eduardo Silva",
	}
	others := []string{
		"João Souza", "Marina Costa", "Pedro Alves", "Renata Lima", "Tiago Rocha",
		"Paula Dias", "Rafael Nunes", "Sofia Melo", "Lucas Pires", "Vera Campos",
	}

	var out []domain.BillingEntry
	for i, name := range append(silva, others...) {
		out = append(out, domain.BillingEntry{
			ID:            fmt.Sprintf("e-%02d", i+1),
			TherapistID:   "t-1",
			ClientID:      fmt.Sprintf("c-%02d", i+1),
			ClientName:    name,
			TherapistName: "Dra. Marta",
			ClientEmail:   fmt.Sprintf("cliente%02d@example.com", i+1),
			Date:          domain.Date(fmt.Sprintf("2024-03-%02d", i+1)),
			ActivityType:  domain.ActivityOfficeSession,
			Total:         decimal.NewFromInt(int64(100 + i)),
			Status:        domain.StatusSubmitted,
		})
	}
	return out
}

func ids(items []domain.BillingEntry) []string {
	out := make([]string, 0, len(items))
	for _, e := range items {
		out = append(out, e.ID)
	}
	return out
}

func byName(all []domain.BillingEntry, names ...string) []domain.BillingEntry {
	var out []domain.BillingEntry
	for _, n := range names {
		for _, e := range all {
			if e.ClientName == n {
				out = append(out, e)
			}
		}
	}
	return out
}

type fakeSource struct {
	mu     sync.Mutex
	body   []byte
	err    error
	delay  time.Duration
	params []url.Values
}

func (f *fakeSource) Fetch(ctx context.Context, params url.Values) ([]byte, error) {
	f.mu.Lock()
	f.params = append(f.params, params)
	body, err, delay := f.body, f.err, f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return body, err
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.params)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordedEvents) Observe(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordedEvents) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type countingRecorder struct {
	shapes   map[string]int
	failures int
}

func (c *countingRecorder) RecordListShape(shape string) {
	if c.shapes == nil {
		c.shapes = map[string]int{}
	}
	c.shapes[shape]++
}

func (c *countingRecorder) RecordListFailure() { c.failures++ }

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newAdapter(src Source, obs *recordedEvents, rec Recorder) *Adapter[domain.BillingEntry] {
	opts := Options{DefaultPageSize: 10, MaxPageSize: 100, Recorder: rec}
	if obs != nil {
		opts.Observer = obs
	}
	return NewAdapter[domain.BillingEntry](src, EntrySchema(), opts, zap.NewNop())
}

// ============================================================
// Shape equivalence
// ============================================================

func TestAdapter_LegacyAndPagedAgree(t *testing.T) {
	all := fixture()
	sort, err := domain.ParseSort("nome_asc")
	require.NoError(t, err)
	filter := domain.ListFilter{Query: "silva", Page: 2, PageSize: 10, Sort: sort}

	legacy := &fakeSource{body: mustJSON(t, all)}
	legacyPage, err := newAdapter(legacy, nil, nil).List(context.Background(), filter)
	require.NoError(t, err)

	serverPage := byName(all, "Fábio Silva", "Fernanda Silva", "Gabriel Silva", "Helena SILVA", "Ígor Silva")
	paged := &fakeSource{body: mustJSON(t, map[string]any{
		"items":      serverPage,
		"total":      15,
		"page":       2,
		"pageSize":   10,
		"totalPages": 2,
	})}
	pagedPage, err := newAdapter(paged, nil, nil).List(context.Background(), filter)
	require.NoError(t, err)

	assert.Equal(t, ids(serverPage), ids(legacyPage.Items))
	assert.Equal(t, ids(pagedPage.Items), ids(legacyPage.Items))
	assert.Equal(t, 15, legacyPage.Total)
	assert.Equal(t, pagedPage.Total, legacyPage.Total)
	assert.Equal(t, 2, legacyPage.TotalPages)
	assert.Equal(t, 2, legacyPage.Page)
}

func TestAdapter_LegacyFirstPageIsCollated(t *testing.T) {
	all := fixture()
	filter := domain.ListFilter{Query: "SILVA", Page: 1, PageSize: 3, Sort: domain.SortSpec{Field: "nome"}}

	page, err := newAdapter(&fakeSource{body: mustJSON(t, all)}, nil, nil).List(context.Background(), filter)
	require.NoError(t, err)

	want := byName(all, "Álvaro Silva", "Ana Silva", "Beatriz Silva")
	assert.Equal(t, ids(want), ids(page.Items))
	assert.Equal(t, 5, page.TotalPages)
}

func TestAdapter_EmptyQueryKeepsOrder(t *testing.T) {
	all := fixture()
	src := &fakeSource{body: mustJSON(t, all)}
	a := newAdapter(src, nil, nil)

	unfiltered, err := a.List(context.Background(), domain.ListFilter{PageSize: 100})
	require.NoError(t, err)
	blank, err := a.List(context.Background(), domain.ListFilter{Query: "   ", PageSize: 100})
	require.NoError(t, err)

	assert.Equal(t, ids(all), ids(unfiltered.Items))
	assert.Equal(t, ids(unfiltered.Items), ids(blank.Items))
	assert.Equal(t, 25, blank.Total)
}

func TestAdapter_LegacyStructuredFilters(t *testing.T) {
	all := fixture()
	all[3].Status = domain.StatusApproved
	all[4].Status = domain.StatusApproved

	page, err := newAdapter(&fakeSource{body: mustJSON(t, all)}, nil, nil).List(context.Background(), domain.ListFilter{
		Status:   domain.StatusApproved,
		DateFrom: "2024-03-05",
		DateTo:   "2024-03-31",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e-05"}, ids(page.Items))
	assert.Equal(t, 1, page.Total)
}

func TestAdapter_SearchMatchesAnyField(t *testing.T) {
	all := fixture()
	all[20].ClientEmail = "contato.silva@example.com"

	page, err := newAdapter(&fakeSource{body: mustJSON(t, all)}, nil, nil).List(context.Background(), domain.ListFilter{
		Query:    "silva",
		PageSize: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, 16, page.Total)
	assert.Contains(t, ids(page.Items), "e-21")
}

func TestAdapter_SearchIsAccentSensitive(t *testing.T) {
	all := fixture()
	page, err := newAdapter(&fakeSource{body: mustJSON(t, all)}, nil, nil).List(context.Background(), domain.ListFilter{
		Query: "joao",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestSchema_NullsSortLast(t *testing.T) {
	entries := []domain.BillingEntry{
		{ID: "a", TherapistName: "Bia"},
		{ID: "b"},
		{ID: "c", TherapistName: "Ana"},
		{ID: "d"},
	}
	s := EntrySchema()

	asc := append([]domain.BillingEntry(nil), entries...)
	s.sort(asc, domain.SortSpec{Field: "terapeuta"})
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(asc))

	desc := append([]domain.BillingEntry(nil), entries...)
	s.sort(desc, domain.SortSpec{Field: "therapist", Desc: true})
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids(desc))
}

func TestSchema_SortByTotalDesc(t *testing.T) {
	all := fixture()[:4]
	s := EntrySchema()
	s.sort(all, domain.SortSpec{Field: "total", Desc: true})
	assert.Equal(t, []string{"e-04", "e-03", "e-02", "e-01"}, ids(all))
}

func TestSchema_CanSort(t *testing.T) {
	s := EntrySchema()
	for _, field := range []string{"nome", "client", "data", "total", "status", "atividade"} {
		assert.True(t, s.CanSort(field), field)
	}
	assert.False(t, s.CanSort("nmoe"))
	assert.False(t, s.CanSort(""))
}

// ============================================================
// Unexpected shapes and failures
// ============================================================

func TestAdapter_UnexpectedShapeIsEmpty(t *testing.T) {
	for _, body := range []string{`null`, `{"foo": 1}`, `{"items": [], "page": 1}`, `[1, 2]`, ``, `"oops"`} {
		t.Run(body, func(t *testing.T) {
			obs := &recordedEvents{}
			rec := &countingRecorder{}
			page, err := newAdapter(&fakeSource{body: []byte(body)}, obs, rec).List(context.Background(), domain.ListFilter{PageSize: 20})

			require.NoError(t, err)
			assert.Equal(t, domain.Page[domain.BillingEntry]{Items: []domain.BillingEntry{}, Page: 1, PageSize: 20}, page)
			assert.Equal(t, []domain.EventType{domain.EventListUnexpected}, obs.types())
			assert.Equal(t, 1, rec.shapes["unknown"])
		})
	}
}

func TestAdapter_TransportErrorDegrades(t *testing.T) {
	obs := &recordedEvents{}
	rec := &countingRecorder{}
	boom := errors.New("connection refused")

	page, err := newAdapter(&fakeSource{err: boom}, obs, rec).List(context.Background(), domain.ListFilter{})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, []domain.EventType{domain.EventListFailed}, obs.types())
	assert.Equal(t, 1, rec.failures)
}

func TestAdapter_PagedFillsMissingFields(t *testing.T) {
	body := `{"items": [{"id": "e-1"}], "total": 31}`
	page, err := newAdapter(&fakeSource{body: []byte(body)}, nil, nil).List(context.Background(), domain.ListFilter{Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, 4, page.TotalPages)
	assert.Equal(t, 31, page.Total)
}

func TestAdapter_SendsAllParamsByDefault(t *testing.T) {
	src := &fakeSource{body: []byte(`[]`)}
	filter := domain.ListFilter{Query: "ana", Status: domain.StatusSubmitted, Page: 2, Sort: domain.SortSpec{Field: "date", Desc: true}}

	_, err := newAdapter(src, nil, nil).List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, url.Values{
		"q":        {"ana"},
		"status":   {"SUBMITTED"},
		"sort":     {"date_desc"},
		"page":     {"2"},
		"pageSize": {"10"},
	}, src.params[0])

	narrow := NewAdapter[domain.BillingEntry](src, EntrySchema(), Options{
		Capabilities: ParseCapabilities([]string{"query"}),
	}, zap.NewNop())
	_, err = narrow.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, url.Values{"q": {"ana"}}, src.params[1])
}

// paginatingBackend serves the fixture the way each endpoint generation
// does: legacy returns every row, paged slices on the page params it
// receives and falls back to its own defaults when they are missing.
func paginatingBackend(t *testing.T, paged bool, seen *[]url.Values) SourceFunc {
	t.Helper()
	all := fixture()
	return func(_ context.Context, params url.Values) ([]byte, error) {
		*seen = append(*seen, params)
		if !paged {
			return mustJSON(t, all), nil
		}
		page, size := 1, 20
		if v, err := strconv.Atoi(params.Get("page")); err == nil {
			page = v
		}
		if v, err := strconv.Atoi(params.Get("pageSize")); err == nil {
			size = v
		}
		start := min((page-1)*size, len(all))
		end := min(start+size, len(all))
		return mustJSON(t, map[string]any{
			"items":      all[start:end],
			"total":      len(all),
			"page":       page,
			"pageSize":   size,
			"totalPages": domain.TotalPages(len(all), size),
		}), nil
	}
}

func TestAdapter_SamePageAcrossBackendMigration(t *testing.T) {
	filter := domain.ListFilter{Page: 2, PageSize: 10, Sort: domain.SortSpec{Field: "date"}}
	want := []string{"e-11", "e-12", "e-13", "e-14", "e-15", "e-16", "e-17", "e-18", "e-19", "e-20"}

	for _, paged := range []bool{false, true} {
		var seen []url.Values
		page, err := newAdapter(paginatingBackend(t, paged, &seen), nil, nil).List(context.Background(), filter)
		require.NoError(t, err)
		assert.Equal(t, want, ids(page.Items), "paged=%v", paged)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 10, page.PageSize)
		assert.Equal(t, 25, page.Total)
		assert.Equal(t, 3, page.TotalPages)
		assert.Len(t, seen, 1)
	}
}

func TestAdapter_NarrowParamsRetryOnWrongPage(t *testing.T) {
	var seen []url.Values
	a := NewAdapter[domain.BillingEntry](paginatingBackend(t, true, &seen), EntrySchema(), Options{
		Capabilities: QueryOnly,
	}, zap.NewNop())

	page, err := a.List(context.Background(), domain.ListFilter{Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Empty(t, seen[0].Get("page"))
	assert.Equal(t, "2", seen[1].Get("page"))
	assert.Equal(t, "10", seen[1].Get("pageSize"))
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, "e-11", page.Items[0].ID)

	// A paged answer for the requested page is taken as is.
	seen = nil
	_, err = a.List(context.Background(), domain.ListFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, seen, 1)
}

func TestDecode_Discriminator(t *testing.T) {
	assert.Equal(t, ShapeLegacy, Decode[domain.BillingEntry]([]byte(" \n[]")).Shape())
	assert.Equal(t, ShapePaged, Decode[domain.BillingEntry]([]byte(`{"items": [], "total": 0}`)).Shape())
	assert.Equal(t, ShapeUnknown, Decode[domain.BillingEntry]([]byte(`{"items": null, "total": 0}`)).Shape())
	assert.Equal(t, ShapeUnknown, Decode[domain.BillingEntry]([]byte(`{"items": [], "total": "3"}`)).Shape())
}

// ============================================================
// Live search
// ============================================================

func TestLiveSearch_DeliversOnlyLatestQuery(t *testing.T) {
	src := &fakeSource{body: mustJSON(t, fixture())}
	a := newAdapter(src, nil, nil)

	var mu sync.Mutex
	var got []domain.Page[domain.BillingEntry]
	ls := NewLiveSearch(context.Background(), a, domain.ListFilter{PageSize: 50}, 20*time.Millisecond, func(_ domain.ListFilter, p domain.Page[domain.BillingEntry], err error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p)
	})
	defer ls.Close()

	for _, q := range []string{"s", "si", "sil", "silva"} {
		ls.Type(q)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 15, got[0].Total)
	mu.Unlock()
	assert.Equal(t, 1, src.calls())
}

func TestLiveSearch_CancelAndCloseNeverDeliver(t *testing.T) {
	src := &fakeSource{body: mustJSON(t, fixture()), delay: 30 * time.Millisecond}
	a := newAdapter(src, nil, nil)

	var mu sync.Mutex
	delivered := 0
	ls := NewLiveSearch(context.Background(), a, domain.ListFilter{}, 10*time.Millisecond, func(domain.ListFilter, domain.Page[domain.BillingEntry], error) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	ls.Type("ana")
	ls.Cancel()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, src.calls(), "canceled query must not reach the source")

	ls.Type("bruno")
	assert.Eventually(t, func() bool { return src.calls() == 1 }, time.Second, 2*time.Millisecond)
	ls.Close()
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, delivered, "response arriving after Close is dropped")
	mu.Unlock()

	ls.Type("carla")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, src.calls())
}
