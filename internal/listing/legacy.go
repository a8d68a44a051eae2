package listing

import (
	"encoding/json"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

// LegacyListResult is the bare array answered by the legacy endpoint: every
// record, unfiltered, unsorted and unpaginated.
type LegacyListResult[T any] struct {
	Items []T
}

func (LegacyListResult[T]) Shape() Shape { return ShapeLegacy }

func decodeLegacy[T any](body []byte) ListResponse[T] {
	var items []T
	if err := json.Unmarshal(body, &items); err != nil {
		return UnknownListResult{Reason: "malformed array: " + err.Error()}
	}
	if items == nil {
		items = []T{}
	}
	return LegacyListResult[T]{Items: items}
}

// apply emulates server-side filtering, sorting and pagination.
// total and totalPages count the filtered set, not the returned slice.
func (r LegacyListResult[T]) apply(schema Schema[T], f domain.ListFilter) domain.Page[T] {
	matched := schema.filter(r.Items, f)
	schema.sort(matched, f.Sort)

	total := len(matched)
	start := min((f.Page-1)*f.PageSize, total)
	end := min(start+f.PageSize, total)

	items := make([]T, end-start)
	copy(items, matched[start:end])

	return domain.Page[T]{
		Items:      items,
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: domain.TotalPages(total, f.PageSize),
	}
}
