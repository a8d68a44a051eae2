package domain

import (
	"fmt"
	"strings"
)

// ============================================================
// Listing — filter, sort and page types shared by the list adapter
// ============================================================

// Sort aliases accepted from the UI.
const (
	SortRecent = "recent"
	SortOldest = "oldest"
)

// SortSpec orders a listing by one field.
type SortSpec struct {
	Field string
	Desc  bool
}

// IsZero reports whether no ordering was requested.
func (s SortSpec) IsZero() bool { return s.Field == "" }

// String renders the sort in the "<field>_<asc|desc>" form.
func (s SortSpec) String() string {
	if s.Field == "" {
		return ""
	}
	if s.Desc {
		return s.Field + "_desc"
	}
	return s.Field + "_asc"
}

// ParseSort accepts "recent", "oldest" or "<field>_<asc|desc>".
// A bare field name sorts ascending.
func ParseSort(raw string) (SortSpec, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return SortSpec{}, nil
	case SortRecent:
		return SortSpec{Field: "date", Desc: true}, nil
	case SortOldest:
		return SortSpec{Field: "date"}, nil
	}

	if i := strings.LastIndex(raw, "_"); i > 0 {
		switch raw[i+1:] {
		case "asc":
			return SortSpec{Field: raw[:i]}, nil
		case "desc":
			return SortSpec{Field: raw[:i], Desc: true}, nil
		}
	}
	if strings.ContainsAny(raw, " ,;") {
		return SortSpec{}, &ErrValidation{Field: "sort", Message: fmt.Sprintf("invalid sort %q", raw)}
	}
	return SortSpec{Field: raw}, nil
}

// ListFilter is what the UI asks of a listing.
type ListFilter struct {
	Query        string
	TherapistID  string
	ClientID     string
	ActivityType ActivityType
	Status       EntryStatus
	DateFrom     Date
	DateTo       Date
	Sort         SortSpec
	Page         int
	PageSize     int
}

// Normalize clamps paging into range, defaulting pageSize to def.
func (f ListFilter) Normalize(def, maxSize int) ListFilter {
	f.Query = strings.TrimSpace(f.Query)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = def
	}
	if maxSize > 0 && f.PageSize > maxSize {
		f.PageSize = maxSize
	}
	return f
}

// Page is the canonical paginated result handed to the UI.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// EmptyPage is the zero-row result for a page size.
func EmptyPage[T any](pageSize int) Page[T] {
	return Page[T]{Items: []T{}, Total: 0, Page: 1, PageSize: pageSize, TotalPages: 0}
}

// TotalPages is ceil(total/pageSize).
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
