package ledgerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

// ============================================================
// Documentos & Terapeutas
// ============================================================

// Upload sends a blob to the document storage service and returns its file id
// (implements port.FileStorage).
func (c *Client) Upload(ctx context.Context, f domain.FileUpload) (string, error) {
	ctx, span := tracer.Start(ctx, "ClinicAPI.Upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("file.name", f.FileName),
		attribute.Int("file.size", len(f.Data)),
	)

	body, contentType, err := multipartBody(f)
	if err != nil {
		return "", fmt.Errorf("building upload body: %w", err)
	}

	resp, err := c.call(ctx, "upload", request{
		method:      http.MethodPost,
		path:        "/documentos/upload",
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		ID     string `json:"id"`
		FileID string `json:"fileId"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", &domain.ErrExternalService{Service: serviceName + "/upload", Err: fmt.Errorf("decode upload: %w", err)}
	}
	if out.FileID != "" {
		return out.FileID, nil
	}
	if out.ID != "" {
		return out.ID, nil
	}
	return "", &domain.ErrExternalService{Service: serviceName + "/upload", Err: errors.New("upload answered without a file id")}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func multipartBody(f domain.FileUpload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"ownerType", f.OwnerType},
		{"ownerId", f.OwnerID},
		{"category", f.Category},
		{"description", f.Description},
	}
	for _, fld := range fields {
		if fld.value == "" {
			continue
		}
		if err := w.WriteField(fld.name, fld.value); err != nil {
			return nil, "", err
		}
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(f.FileName)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// FileURL builds the view or download URL of a stored file.
func (c *Client) FileURL(fileID string, access domain.FileAccess) string {
	return fmt.Sprintf("%s/documentos/%s/%s", c.baseURL, url.PathEscape(fileID), access)
}

// HourlyRate returns the therapist's configured rate (implements
// port.RateLookup). A therapist without a rate is not an error.
func (c *Client) HourlyRate(ctx context.Context, therapistID string) (decimal.Decimal, bool, error) {
	ctx, span := tracer.Start(ctx, "ClinicAPI.HourlyRate")
	defer span.End()
	span.SetAttributes(attribute.String("therapist.id", therapistID))

	body, err := c.call(ctx, "rate", request{
		method: http.MethodGet,
		path:   "/terapeutas/" + url.PathEscape(therapistID) + "/valor-hora",
	})
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(notFound(err, "therapist", therapistID), &nf) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}

	var out struct {
		ValorHora  decimal.NullDecimal `json:"valorHora"`
		HourlyRate decimal.NullDecimal `json:"hourlyRate"`
	}
	if len(body) == 0 {
		return decimal.Zero, false, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, false, &domain.ErrExternalService{Service: serviceName + "/rate", Err: fmt.Errorf("decode rate: %w", err)}
	}
	switch {
	case out.ValorHora.Valid:
		return out.ValorHora.Decimal, true, nil
	case out.HourlyRate.Valid:
		return out.HourlyRate.Decimal, true, nil
	}
	return decimal.Zero, false, nil
}
