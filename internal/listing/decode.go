package listing

import (
	"bytes"
	"fmt"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

// DefaultPageSize applies when the caller did not ask for a page size.
const DefaultPageSize = 10

// Shape names the contract a list response was recognised as.
type Shape string

const (
	ShapeLegacy  Shape = "legacy"
	ShapePaged   Shape = "paged"
	ShapeUnknown Shape = "unknown"
)

// ListResponse is exactly one of LegacyListResult, PagedListResult or
// UnknownListResult.
type ListResponse[T any] interface {
	Shape() Shape
}

// UnknownListResult is any body that is neither an array nor a paginated
// envelope. It normalizes to an empty page.
type UnknownListResult struct {
	Reason string
}

func (UnknownListResult) Shape() Shape { return ShapeUnknown }

// Decode classifies body with a single check on its first JSON token and
// parses it into the matching variant. It never fails: anything it cannot
// parse is an UnknownListResult.
func Decode[T any](body []byte) ListResponse[T] {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return UnknownListResult{Reason: "empty body"}
	}

	switch trimmed[0] {
	case '[':
		return decodeLegacy[T](trimmed)
	case '{':
		return decodePaged[T](trimmed)
	default:
		return UnknownListResult{Reason: fmt.Sprintf("unexpected leading token %q", firstToken(trimmed))}
	}
}

// Normalize turns any variant into the canonical page for the filter that
// produced it.
func Normalize[T any](schema Schema[T], resp ListResponse[T], f domain.ListFilter) domain.Page[T] {
	f = f.Normalize(DefaultPageSize, 0)
	switch r := resp.(type) {
	case LegacyListResult[T]:
		return r.apply(schema, f)
	case PagedListResult[T]:
		return r.normalize(f)
	default:
		return domain.EmptyPage[T](f.PageSize)
	}
}

func firstToken(b []byte) string {
	end := bytes.IndexAny(b, " \t\r\n,:")
	if end < 0 || end > 16 {
		end = min(len(b), 16)
	}
	return string(b[:end])
}
