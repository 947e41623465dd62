package resourcedb

import (
	"fmt"
	"time"

	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

// Limits of the canonical schema-field query grammar. Payload fields are never
// queryable; the grammar covers envelope fields only.
const (
	MaxFilterPredicates = 5
	MaxIDMembership     = 50
	MaxPageSize         = 1000
	DefaultPageSize     = 50
)

// CompareOp is a comparison operator over a timestamp field.
type CompareOp string

const (
	CompareEq  CompareOp = "eq"
	CompareGt  CompareOp = "gt"
	CompareGte CompareOp = "gte"
	CompareLt  CompareOp = "lt"
	CompareLte CompareOp = "lte"
)

// TimeComparison is one predicate against created_at or updated_at.
type TimeComparison struct {
	Op    CompareOp
	Value time.Time
}

func (c TimeComparison) valid() error {
	switch c.Op {
	case CompareEq, CompareGt, CompareGte, CompareLt, CompareLte:
		return nil
	}
	return &errors.Error{
		Code: errors.EInvalidQuery,
		Msg:  fmt.Sprintf("unknown comparison operator %q", c.Op),
	}
}

// ResourceFilter is the allowlisted filter a caller may apply to a listing.
// Type is required; everything else is optional.
type ResourceFilter struct {
	Type      TypePattern
	OwnerID   *string
	IDs       []string
	CreatedAt []TimeComparison
	UpdatedAt []TimeComparison
}

// Validate enforces the grammar limits: allowlisted fields only, at most
// MaxFilterPredicates predicates, id membership capped at MaxIDMembership.
func (f ResourceFilter) Validate() error {
	if _, err := ParseTypePattern(string(f.Type)); err != nil {
		return err
	}

	n := 1 // the type predicate itself
	if f.OwnerID != nil {
		n++
	}
	if len(f.IDs) > 0 {
		if len(f.IDs) > MaxIDMembership {
			return &errors.Error{
				Code: errors.EInvalidQuery,
				Msg:  fmt.Sprintf("id membership list exceeds %d entries", MaxIDMembership),
			}
		}
		n++
	}
	for _, c := range f.CreatedAt {
		if err := c.valid(); err != nil {
			return err
		}
		n++
	}
	for _, c := range f.UpdatedAt {
		if err := c.valid(); err != nil {
			return err
		}
		n++
	}
	if n > MaxFilterPredicates {
		return &errors.Error{
			Code: errors.EInvalidQuery,
			Msg:  fmt.Sprintf("filter exceeds %d predicates", MaxFilterPredicates),
		}
	}
	return nil
}

// Advanced reports whether the filter uses anything beyond the bare type
// predicate, which is what distinguishes a plain listing from a query the
// backend must declare the query capability for.
func (f ResourceFilter) Advanced() bool {
	return f.OwnerID != nil || len(f.IDs) > 0 || len(f.CreatedAt) > 0 || len(f.UpdatedAt) > 0
}

// SortField is an orderable envelope field. The resource id is always
// appended as a final tiebreaker and is not independently selectable.
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
)

// FindOptions carries ordering and pagination for a listing.
type FindOptions struct {
	SortBy     SortField
	Descending bool
	Limit      int
	Cursor     string
}

// Normalize validates the options and fills in defaults, returning the
// effective options a backend should honor.
func (o FindOptions) Normalize() (FindOptions, error) {
	switch o.SortBy {
	case "":
		o.SortBy = SortByCreatedAt
	case SortByCreatedAt, SortByUpdatedAt:
	default:
		return o, &errors.Error{
			Code: errors.EInvalidQuery,
			Msg:  fmt.Sprintf("cannot order by %q", o.SortBy),
		}
	}
	switch {
	case o.Limit < 0:
		return o, &errors.Error{
			Code: errors.EInvalidQuery,
			Msg:  "limit cannot be negative",
		}
	case o.Limit == 0:
		o.Limit = DefaultPageSize
	case o.Limit > MaxPageSize:
		return o, &errors.Error{
			Code: errors.EInvalidQuery,
			Msg:  fmt.Sprintf("limit exceeds maximum page size %d", MaxPageSize),
		}
	}
	return o, nil
}

// PageInfo describes the position of a page within a listing.
type PageInfo struct {
	Limit      int     `json:"limit"`
	NextCursor *string `json:"next_cursor"`
	PrevCursor *string `json:"prev_cursor"`
}

// ResourceList is the listing response envelope. Empty Items is a valid,
// non-error response.
type ResourceList struct {
	Items    []*Resource `json:"items"`
	PageInfo PageInfo    `json:"page_info"`
}
