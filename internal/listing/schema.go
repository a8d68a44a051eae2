// Package listing adapts the clinic API list endpoint, which answers either
// with a legacy bare array or with a paginated envelope, into one page type.
package listing

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

// SortKind selects how a sort field compares values.
type SortKind int

const (
	// SortText compares with pt-BR collation.
	SortText SortKind = iota
	// SortRaw compares bytes; used for ISO dates and enum codes.
	SortRaw
	// SortNumber compares decimals.
	SortNumber
)

// SortField extracts a comparable value from a record. An empty text or a
// false ok from Number is a null, and nulls sort last in both directions.
type SortField[T any] struct {
	Kind   SortKind
	Text   func(T) string
	Number func(T) (decimal.Decimal, bool)
}

// Schema describes a record type to the legacy code path.
type Schema[T any] struct {
	ID     func(T) string
	Search []func(T) string
	Sort   map[string]SortField[T]
	// Match applies the structured filters; nil accepts everything.
	Match func(T, domain.ListFilter) bool
}

// filter keeps the records matching the free-text query and the structured
// filters, preserving order. The query is case-insensitive and accent-sensitive.
func (s Schema[T]) filter(items []T, f domain.ListFilter) []T {
	q := strings.TrimSpace(f.Query)
	fold := cases.Fold()
	q = fold.String(q)

	out := make([]T, 0, len(items))
	for _, it := range items {
		if s.Match != nil && !s.Match(it, f) {
			continue
		}
		if q != "" && !s.matchesQuery(it, q, fold) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (s Schema[T]) matchesQuery(it T, foldedQuery string, fold cases.Caser) bool {
	for _, field := range s.Search {
		v := field(it)
		if v == "" {
			continue
		}
		if strings.Contains(fold.String(v), foldedQuery) {
			return true
		}
	}
	return false
}

// CanSort reports whether field names a sort key of the schema.
func (s Schema[T]) CanSort(field string) bool {
	_, ok := s.Sort[field]
	return ok
}

// sort orders items in place. Unknown fields leave the order untouched.
func (s Schema[T]) sort(items []T, spec domain.SortSpec) bool {
	if spec.IsZero() {
		return true
	}
	field, ok := s.Sort[spec.Field]
	if !ok {
		return false
	}

	var compare func(a, b T) (int, bool, bool)
	switch field.Kind {
	case SortNumber:
		compare = func(a, b T) (int, bool, bool) {
			va, okA := field.Number(a)
			vb, okB := field.Number(b)
			return va.Cmp(vb), !okA, !okB
		}
	case SortRaw:
		compare = func(a, b T) (int, bool, bool) {
			va, vb := field.Text(a), field.Text(b)
			return strings.Compare(va, vb), va == "", vb == ""
		}
	default:
		coll := collate.New(language.BrazilianPortuguese)
		compare = func(a, b T) (int, bool, bool) {
			va, vb := field.Text(a), field.Text(b)
			return coll.CompareString(va, vb), va == "", vb == ""
		}
	}

	slices.SortStableFunc(items, func(a, b T) int {
		c, nullA, nullB := compare(a, b)
		switch {
		case nullA && nullB:
			return 0
		case nullA:
			return 1
		case nullB:
			return -1
		}
		if spec.Desc {
			return -c
		}
		return c
	})
	return true
}

// ============================================================
// Billing entries
// ============================================================

// EntrySchema describes domain.BillingEntry. Sort fields accept both the
// Portuguese names used by the UI and their English aliases.
func EntrySchema() Schema[domain.BillingEntry] {
	client := SortField[domain.BillingEntry]{Kind: SortText, Text: func(e domain.BillingEntry) string { return e.ClientName }}
	therapist := SortField[domain.BillingEntry]{Kind: SortText, Text: func(e domain.BillingEntry) string { return e.TherapistName }}
	date := SortField[domain.BillingEntry]{Kind: SortRaw, Text: func(e domain.BillingEntry) string { return string(e.Date) }}
	activity := SortField[domain.BillingEntry]{Kind: SortText, Text: func(e domain.BillingEntry) string {
		if e.ActivityType == "" {
			return ""
		}
		return e.ActivityType.Label()
	}}

	return Schema[domain.BillingEntry]{
		ID: func(e domain.BillingEntry) string { return e.ID },
		Search: []func(domain.BillingEntry) string{
			func(e domain.BillingEntry) string { return e.ClientName },
			func(e domain.BillingEntry) string { return e.TherapistName },
			func(e domain.BillingEntry) string { return e.ClientEmail },
			func(e domain.BillingEntry) string { return e.ClientPhone },
			func(e domain.BillingEntry) string { return e.RegistrationNumber },
			func(e domain.BillingEntry) string { return string(e.ActivityType) },
			func(e domain.BillingEntry) string {
				if e.ActivityType == "" {
					return ""
				}
				return e.ActivityType.Label()
			},
		},
		Sort: map[string]SortField[domain.BillingEntry]{
			"nome":      client,
			"client":    client,
			"terapeuta": therapist,
			"therapist": therapist,
			"date":      date,
			"data":      date,
			"total": {Kind: SortNumber, Number: func(e domain.BillingEntry) (decimal.Decimal, bool) {
				return e.Total, true
			}},
			"status":    {Kind: SortRaw, Text: func(e domain.BillingEntry) string { return string(e.Status) }},
			"atividade": activity,
			"activity":  activity,
		},
		Match: matchEntry,
	}
}

func matchEntry(e domain.BillingEntry, f domain.ListFilter) bool {
	switch {
	case f.TherapistID != "" && e.TherapistID != f.TherapistID:
		return false
	case f.ClientID != "" && e.ClientID != f.ClientID:
		return false
	case f.ActivityType != "" && e.ActivityType != f.ActivityType:
		return false
	case f.Status != "" && e.Status != f.Status:
		return false
	case f.DateFrom != "" && e.Date < f.DateFrom:
		return false
	case f.DateTo != "" && e.Date > f.DateTo:
		return false
	}
	return true
}
