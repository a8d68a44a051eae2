package listing

import (
	"bytes"
	"encoding/json"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

// PagedListResult is the envelope answered by the paginated endpoint. The
// server has already filtered, sorted and paginated it.
type PagedListResult[T any] struct {
	Items      []T
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

func (PagedListResult[T]) Shape() Shape { return ShapePaged }

type pagedEnvelope struct {
	Items      json.RawMessage `json:"items"`
	Total      *int            `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}

// decodePaged requires an items array alongside total; any other object is unknown.
func decodePaged[T any](body []byte) ListResponse[T] {
	var env pagedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return UnknownListResult{Reason: "malformed envelope: " + err.Error()}
	}
	raw := bytes.TrimLeft(env.Items, " \t\r\n")
	if len(raw) == 0 || raw[0] != '[' {
		return UnknownListResult{Reason: "object without items array"}
	}
	if env.Total == nil {
		return UnknownListResult{Reason: "object without total"}
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return UnknownListResult{Reason: "malformed items: " + err.Error()}
	}
	if items == nil {
		items = []T{}
	}

	return PagedListResult[T]{
		Items:      items,
		Total:      *env.Total,
		Page:       env.Page,
		PageSize:   env.PageSize,
		TotalPages: env.TotalPages,
	}
}

// normalize passes the envelope through, filling only fields the server omitted.
func (r PagedListResult[T]) normalize(f domain.ListFilter) domain.Page[T] {
	p := domain.Page[T]{
		Items:      r.Items,
		Total:      r.Total,
		Page:       r.Page,
		PageSize:   r.PageSize,
		TotalPages: r.TotalPages,
	}
	if p.Page == 0 {
		p.Page = f.Page
	}
	if p.PageSize == 0 {
		p.PageSize = f.PageSize
	}
	if p.TotalPages == 0 {
		p.TotalPages = domain.TotalPages(p.Total, p.PageSize)
	}
	return p
}
