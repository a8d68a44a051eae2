// Package ledgerapi is the HTTP client for the external clinic API: billing
// entries, reviewer actions, therapist rates and document storage.
package ledgerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/infra/resilience"
)

var tracer = otel.Tracer("ledgerapi")

const serviceName = "clinic-api"

// Client wraps HTTP calls to the clinic REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
	logger     *zap.Logger
}

// NewClient creates a clinic API client. token is sent as a bearer token
// when non-empty.
func NewClient(httpClient *http.Client, baseURL, token string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		cb:         cb,
		cfg:        cfg,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		logger:     logger,
	}
}

// request describes one HTTP exchange. body is kept as bytes so every retry
// sends it again from the start.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func jsonRequest(method, path string, v any) (request, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return request{}, fmt.Errorf("encoding %s %s: %w", method, path, err)
	}
	return request{method: method, path: path, body: b, contentType: "application/json"}, nil
}

// call runs req through the bulkhead, circuit breaker and retry policy and
// returns the response body of a 2xx answer.
func (c *Client) call(ctx context.Context, op string, req request) ([]byte, error) {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrTimeout{Operation: op}
	}
	defer c.bulkhead.Release()

	var body []byte
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var doErr error
			body, doErr = c.do(ctx, req)
			return doErr
		})
	})
	if err != nil {
		return nil, c.wrapError(op, err)
	}
	return body, nil
}

// do executes a single attempt.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var reader io.Reader
	if r.body != nil {
		reader = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, reader)
	if err != nil {
		c.logger.Error("clinic-api: failed to create request",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err),
		)
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("clinic-api: request failed",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("clinic-api: non-2xx response",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(body)),
		)
		return nil, &domain.ErrUpstream{Status: resp.StatusCode, Message: upstreamMessage(body, resp.StatusCode)}
	}

	c.logger.Debug("clinic-api: request OK",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
	)
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return body, nil
}

func (c *Client) wrapError(op string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: serviceName}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: op}
	}
	return &domain.ErrExternalService{Service: serviceName + "/" + op, Err: err}
}

// upstreamMessage extracts the user-facing text of an error body: "message"
// (a string or a list of strings) or "error", else a generic status message.
func upstreamMessage(body []byte, status int) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := rawText(payload.Message); msg != "" {
			return msg
		}
		if msg := rawText(payload.Error); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("falha na comunicação com o servidor (status %d)", status)
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.TrimSpace(strings.Join(list, "; "))
	}
	return ""
}

// notFound turns a 404 from the clinic API into domain.ErrNotFound.
func notFound(err error, resource, id string) error {
	var up *domain.ErrUpstream
	if errors.As(err, &up) && up.Status == http.StatusNotFound {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return err
}
