// Package pagination parses list queries and builds page metadata.
package pagination

import (
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/templui/fileshare/internal/apperr"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	DefaultSort  = "-createdAt"
)

// Options bound what a listing accepts.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	SortFields   []string
}

// Sort is a single sort key.
type Sort struct {
	Field string
	Desc  bool
}

func (s Sort) String() string {
	if s.Desc {
		return "-" + s.Field
	}
	return s.Field
}

// Params is a validated, 1-indexed page request.
type Params struct {
	Page  int
	Limit int
	Sort  Sort
}

// Offset is the number of rows before the page. It saturates at MaxInt
// instead of wrapping, which still yields an empty page.
func (p Params) Offset() int {
	if p.Page < 1 || p.Limit < 1 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// Parse reads page, limit and sort from q. Missing values take defaults;
// a limit above the ceiling is clamped; anything else malformed is a
// validation error.
func Parse(q url.Values, opts Options) (Params, error) {
	var fields []apperr.FieldError

	page, err := positiveInt(q.Get("page"), DefaultPage)
	if err != nil {
		fields = append(fields, apperr.FieldError{Field: "page", Message: err.Error()})
	}

	limit, err := positiveInt(q.Get("limit"), opts.defaultLimit())
	if err != nil {
		fields = append(fields, apperr.FieldError{Field: "limit", Message: err.Error()})
	}

	sort, err := ParseSort(q.Get("sort"), opts.SortFields)
	if err != nil {
		fields = append(fields, apperr.FieldError{Field: "sort", Message: err.Error()})
	}

	limit = min(limit, opts.maxLimit())
	if len(fields) == 0 && page-1 > math.MaxInt/limit {
		fields = append(fields, apperr.FieldError{Field: "page", Message: "is out of range"})
	}

	if len(fields) > 0 {
		return Params{}, apperr.NewValidation("Invalid pagination parameters", fields...)
	}

	return Params{
		Page:  page,
		Limit: limit,
		Sort:  sort,
	}, nil
}

// ParseSort parses "field" or "-field". Empty input means DefaultSort.
func ParseSort(raw string, allowed []string) (Sort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultSort
	}

	s := Sort{Field: raw}
	if strings.HasPrefix(raw, "-") {
		s = Sort{Field: raw[1:], Desc: true}
	}

	if s.Field == "" {
		return Sort{}, fmt.Errorf("must name a field")
	}
	if len(allowed) > 0 && !slices.Contains(allowed, s.Field) {
		return Sort{}, fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}

	return s, nil
}

func (o Options) defaultLimit() int {
	if o.DefaultLimit > 0 {
		return o.DefaultLimit
	}
	return DefaultLimit
}

func (o Options) maxLimit() int {
	if o.MaxLimit > 0 {
		return o.MaxLimit
	}
	return MaxLimit
}

func positiveInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}
