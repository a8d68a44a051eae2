package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/draft"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/handler"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/cache"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/debounce"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/ledgerapi"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/observability"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/listing"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/service"
)

const testSecret = "test-secret"

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(handler.RouterDeps{Metrics: observability.NewMetrics()}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(handler.RouterDeps{Metrics: observability.NewMetrics()}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := handler.NewRouter(handler.RouterDeps{Metrics: observability.NewMetrics()}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestV1WithoutVerifier(t *testing.T) {
	router := handler.NewRouter(handler.RouterDeps{Metrics: observability.NewMetrics()}, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/billing/entries", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

// ============================================================
// Full stack against a fake clinic API
// ============================================================

type clinicAPI struct {
	mu             sync.Mutex
	status         domain.EntryStatus
	reviewConflict bool
	created        []map[string]any
	uploads        int
}

func (c *clinicAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/faturamento/lancamentos", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"e-1","therapistId":"t-1","clientName":"Ana Silva","date":"2024-03-10","status":"SUBMITTED","total":150},
			{"id":"e-2","therapistId":"t-2","clientName":"Bruno Souza","date":"2024-03-11","status":"APPROVED","total":90}
		]`))
	})
	mux.HandleFunc("GET /api/faturamento/lancamentos/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "e-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		c.mu.Lock()
		status := c.status
		c.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"id": "e-1", "therapistId": "t-1", "clientId": "c-1", "date": "2024-03-10",
			"durationMinutes": 90, "durationSource": "preset", "hourlyRate": 100, "total": 150,
			"status": status, "createdBy": "u-1",
		})
	})
	mux.HandleFunc("POST /api/faturamento/lancamentos", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.created = append(c.created, body)
		c.mu.Unlock()
		body["id"] = "e-9"
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("POST /api/faturamento/lancamentos/{id}/revisao", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.reviewConflict {
			c.status = domain.StatusApproved
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"Lançamento já revisado"}`))
			return
		}
		var rev domain.Review
		json.NewDecoder(r.Body).Decode(&rev)
		c.status = rev.Decision
		json.NewEncoder(w).Encode(map[string]any{"id": "e-1", "status": rev.Decision})
	})
	mux.HandleFunc("POST /api/documentos/upload", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.uploads++
		c.mu.Unlock()
		w.Write([]byte(`{"fileId":"f-77"}`))
	})
	mux.HandleFunc("GET /api/terapeutas/{id}/valor-hora", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"valorHora":100}`))
	})
	return mux
}

type stack struct {
	router  http.Handler
	api     *clinicAPI
	metrics *observability.Metrics
}

func newStack(t *testing.T) *stack {
	t.Helper()
	api := &clinicAPI{status: domain.StatusSubmitted}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	breaker := resilience.NewCircuitBreaker("clinic-api", logger)
	client := ledgerapi.NewClient(srv.Client(), srv.URL+"/api", "svc", breaker,
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 4}, logger)

	adapter := listing.NewAdapter(listing.FromLister(client), listing.EntrySchema(),
		listing.Options{Recorder: metrics}, logger)

	rates := cache.New[domain.TherapistRate](time.Minute)
	drafts := cache.NewSliding[*draft.Controller](time.Minute)
	t.Cleanup(rates.Close)
	t.Cleanup(drafts.Close)

	ledger := service.NewLedgerService(adapter, client, client, client, rates, nil, metrics, logger)
	searches := cache.NewSliding[*service.SearchSession](time.Minute)
	t.Cleanup(searches.Close)
	registry := draft.NewRegistry(drafts, ledger, draft.Deps{Files: client, Recorder: metrics, Logger: logger})

	router := handler.NewRouter(handler.RouterDeps{
		Ledger:   ledger,
		Search:   service.NewSearchSessions(adapter, searches, 10*time.Millisecond, logger),
		Drafts:   registry,
		Files:    client,
		Verifier: handler.NewTokenVerifier(testSecret, []string{"manager"}),
		Breaker:  breaker,
		Metrics:  metrics,
		Throttle: debounce.NewKeyedThrottle(time.Minute),
	}, logger)

	return &stack{router: router, api: api, metrics: metrics}
}

func token(t *testing.T, sub, therapistID string, roles ...string) string {
	t.Helper()
	claims := handler.Claims{
		TherapistID: therapistID,
		Roles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func (s *stack) do(t *testing.T, method, path, tok string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *stack) doJSON(t *testing.T, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return s.do(t, method, path, tok, r, "application/json")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestMissingToken(t *testing.T) {
	s := newStack(t)
	rec := s.doJSON(t, http.MethodGet, "/v1/billing/entries", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestListEntries_ScopedAndCounted(t *testing.T) {
	s := newStack(t)

	rec := s.doJSON(t, http.MethodGet, "/v1/billing/entries?sort=recent", token(t, "u-1", "t-1"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var page struct {
		Items []domain.BillingEntry `json:"items"`
		Total int                   `json:"total"`
		Error string                `json:"error"`
	}
	decode(t, rec, &page)
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].ID != "e-1" {
		t.Errorf("expected only e-1 for therapist t-1, got %+v", page)
	}

	rec = s.doJSON(t, http.MethodGet, "/v1/metrics/listing", token(t, "u-1", "t-1"), "")
	var snap domain.ListingMetrics
	decode(t, rec, &snap)
	if snap.LegacyResponses != 1 {
		t.Errorf("expected 1 legacy response, got %d", snap.LegacyResponses)
	}
}

func TestListEntries_BadSort(t *testing.T) {
	s := newStack(t)
	rec := s.doJSON(t, http.MethodGet, "/v1/billing/entries?sort=nome%20asc", token(t, "m-1", "", "manager"), "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestListEntries_UnknownSortField(t *testing.T) {
	s := newStack(t)
	tok := token(t, "m-1", "", "manager")

	rec := s.doJSON(t, http.MethodGet, "/v1/billing/entries?sort=nmoe_asc", tok, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Fields []domain.FieldError `json:"fields"`
	}
	decode(t, rec, &body)
	if len(body.Fields) != 1 || body.Fields[0].Field != "sort" {
		t.Errorf("expected sort field error, got %+v", body.Fields)
	}

	for _, sort := range []string{"nome_asc", "recent", "total_desc", "terapeuta"} {
		if rec := s.doJSON(t, http.MethodGet, "/v1/billing/entries?sort="+sort, tok, ""); rec.Code != http.StatusOK {
			t.Errorf("sort=%s: expected 200, got %d", sort, rec.Code)
		}
	}

	if rec := s.doJSON(t, http.MethodPost, "/v1/billing/search?q=ana&sort=nmoe", tok, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("search: expected 400, got %d", rec.Code)
	}
}

func TestLiveSearch(t *testing.T) {
	s := newStack(t)
	tok := token(t, "m-1", "", "manager")

	if rec := s.doJSON(t, http.MethodGet, "/v1/billing/search", tok, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 before any query, got %d", rec.Code)
	}
	for _, q := range []string{"b", "bru", "bruno"} {
		if rec := s.doJSON(t, http.MethodPost, "/v1/billing/search", tok, `{"q":"`+q+`"}`); rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
	}

	var rec *httptest.ResponseRecorder
	deadline := time.Now().Add(time.Second)
	for {
		rec = s.doJSON(t, http.MethodGet, "/v1/billing/search", tok, "")
		if rec.Code == http.StatusOK || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected a result, got %d", rec.Code)
	}
	var res struct {
		Query string `json:"query"`
		Page  struct {
			Items []domain.BillingEntry `json:"items"`
		} `json:"page"`
	}
	decode(t, rec, &res)
	if res.Query != "bruno" || len(res.Page.Items) != 1 || res.Page.Items[0].ID != "e-2" {
		t.Errorf("unexpected search result %+v", res)
	}

	if rec := s.doJSON(t, http.MethodDelete, "/v1/billing/search", tok, ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 on cancel, got %d", rec.Code)
	}
}

func TestCreateEntry_InvalidListsAllFields(t *testing.T) {
	s := newStack(t)
	rec := s.doJSON(t, http.MethodPost, "/v1/billing/entries", token(t, "u-1", "t-1"), `{"hasTravelCost":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp struct {
		Fields []domain.FieldError `json:"fields"`
	}
	decode(t, rec, &resp)
	got := map[string]bool{}
	for _, f := range resp.Fields {
		got[f.Field] = true
	}
	for _, want := range []string{"clientId", "date", "durationMinutes", "travelCost"} {
		if !got[want] {
			t.Errorf("expected violation on %s, got %+v", want, resp.Fields)
		}
	}
	if len(s.api.created) != 0 {
		t.Error("invalid payload must not reach the clinic API")
	}
}

func TestCreateEntry(t *testing.T) {
	s := newStack(t)
	body := `{"clientId":"c-1","date":"2024-03-12","startTime":"14:00","endTime":"15:30",
		"hourlyRate":100,"hasTravelCost":true,"travelCost":15}`
	rec := s.doJSON(t, http.MethodPost, "/v1/billing/entries", token(t, "u-1", "t-1"), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if len(s.api.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(s.api.created))
	}
	sent := s.api.created[0]
	if sent["total"] != float64(165) || sent["status"] != "SUBMITTED" || sent["therapistId"] != "t-1" {
		t.Errorf("unexpected payload sent upstream: %v", sent)
	}
}

func TestApprove_NonReviewerForbidden(t *testing.T) {
	s := newStack(t)
	rec := s.doJSON(t, http.MethodPost, "/v1/billing/entries/e-1/approve", token(t, "u-1", "t-1"), "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestReject_ByManager(t *testing.T) {
	s := newStack(t)
	rec := s.doJSON(t, http.MethodPost, "/v1/billing/entries/e-1/reject", token(t, "m-1", "", "manager"), `{"reason":"missing client"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var e domain.BillingEntry
	decode(t, rec, &e)
	if e.Status != domain.StatusRejected {
		t.Errorf("expected REJECTED, got %s", e.Status)
	}
}

func TestApprove_StaleReturnsCurrentStatus(t *testing.T) {
	s := newStack(t)
	s.api.reviewConflict = true

	rec := s.doJSON(t, http.MethodPost, "/v1/billing/entries/e-1/approve", token(t, "m-1", "", "manager"), "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Error         string             `json:"error"`
		CurrentStatus domain.EntryStatus `json:"currentStatus"`
	}
	decode(t, rec, &resp)
	if resp.CurrentStatus != domain.StatusApproved {
		t.Errorf("expected currentStatus APPROVED, got %q", resp.CurrentStatus)
	}
	if resp.Error != "Lançamento já revisado" {
		t.Errorf("expected upstream message, got %q", resp.Error)
	}
}

func TestEditApprovedEntry_Conflict(t *testing.T) {
	s := newStack(t)
	s.api.status = domain.StatusApproved

	body := `{"clientId":"c-1","date":"2024-03-12","durationPreset":60,"hourlyRate":100}`
	rec := s.doJSON(t, http.MethodPut, "/v1/billing/entries/e-1", token(t, "u-1", "t-1"), body)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", rec.Code, rec.Body)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	s := newStack(t)
	rec := s.doJSON(t, http.MethodGet, "/v1/billing/entries/missing", token(t, "m-1", "", "manager"), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAttachmentRedirectIsThrottled(t *testing.T) {
	s := newStack(t)
	tok := token(t, "u-1", "t-1")

	rec := s.doJSON(t, http.MethodGet, "/v1/attachments/f-1/view", tok, "")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasSuffix(loc, "/api/documentos/f-1/view") {
		t.Errorf("unexpected redirect %q", loc)
	}

	if rec := s.doJSON(t, http.MethodGet, "/v1/attachments/f-1/view", tok, ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 on duplicate click, got %d", rec.Code)
	}
	if rec := s.doJSON(t, http.MethodGet, "/v1/attachments/f-2/download", tok, ""); rec.Code != http.StatusFound {
		t.Errorf("other attachment must not be throttled, got %d", rec.Code)
	}
	if rec := s.doJSON(t, http.MethodGet, "/v1/attachments/f-3/print", tok, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown access mode, got %d", rec.Code)
	}
}

func TestDraftFlow(t *testing.T) {
	s := newStack(t)
	tok := token(t, "u-1", "t-1")

	rec := s.doJSON(t, http.MethodPost, "/v1/billing/drafts", tok, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("open: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var st draft.State
	decode(t, rec, &st)
	if st.Form.HourlyRate.String() != "100" {
		t.Errorf("expected pre-filled rate 100, got %s", st.Form.HourlyRate)
	}
	base := "/v1/billing/drafts/" + st.ID

	rec = s.doJSON(t, http.MethodPatch, base, tok, `{"clientId":"c-1","date":"2024-03-12","durationPreset":90}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	decode(t, rec, &st)
	if st.Preview == nil || st.Preview.Total.StringFixed(2) != "150.00" {
		t.Errorf("expected preview total 150.00, got %+v", st.Preview)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "scan.pdf")
	fw.Write([]byte("%PDF-1.4"))
	mw.WriteField("displayName", "Recibo")
	mw.Close()
	rec = s.do(t, http.MethodPost, base+"/attachments", tok, &buf, mw.FormDataContentType())
	if rec.Code != http.StatusCreated {
		t.Fatalf("attach: expected 201, got %d: %s", rec.Code, rec.Body)
	}

	if rec := s.doJSON(t, http.MethodDelete, base, tok, ""); rec.Code != http.StatusConflict {
		t.Errorf("discard without confirm: expected 409, got %d", rec.Code)
	}

	other := token(t, "u-2", "t-2")
	if rec := s.doJSON(t, http.MethodGet, base, other, ""); rec.Code != http.StatusForbidden {
		t.Errorf("foreign draft: expected 403, got %d", rec.Code)
	}

	rec = s.doJSON(t, http.MethodPost, base+"/submit", tok, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if s.api.uploads != 1 {
		t.Errorf("expected 1 upload, got %d", s.api.uploads)
	}
	atts, _ := s.api.created[0]["attachments"].([]any)
	if len(atts) != 1 {
		t.Fatalf("expected 1 attachment sent, got %v", s.api.created[0]["attachments"])
	}
	if a := atts[0].(map[string]any); a["fileId"] != "f-77" || a["name"] != "Recibo" {
		t.Errorf("unexpected attachment %v", a)
	}

	if rec := s.doJSON(t, http.MethodGet, base, tok, ""); rec.Code != http.StatusNotFound {
		t.Errorf("submitted draft should be closed, got %d", rec.Code)
	}
}
