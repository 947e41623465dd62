package resourcedb

import (
	"fmt"
	"strings"

	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

// Action is an operation type on a resource type.
type Action string

const (
	CreateAction Action = "create"
	ReadAction   Action = "read"
	UpdateAction Action = "update"
	DeleteAction Action = "delete"
)

const (
	// TypeSeparator joins the segments of a hierarchical type identifier.
	TypeSeparator = "."
	// WildcardMarker is the trailing match-any marker of a type pattern.
	WildcardMarker = "*"
)

// TypePattern is a type-scope pattern: either a concrete type identifier or a
// prefix followed by exactly one trailing wildcard marker. The wildcard is
// greedy: "a.b.*" matches "a.b.c" and "a.b.c.d" but not "a.b" itself.
type TypePattern string

// ParseTypePattern validates s as a type pattern. A wildcard anywhere but the
// trailing position is an error, never silently treated as a literal.
func ParseTypePattern(s string) (TypePattern, error) {
	if s == "" {
		return "", &errors.Error{
			Code: errors.EInvalid,
			Msg:  "type pattern cannot be empty",
		}
	}
	switch n := strings.Count(s, WildcardMarker); {
	case n == 0:
		return TypePattern(s), nil
	case n > 1:
		return "", invalidPatternError(s)
	}
	if !strings.HasSuffix(s, WildcardMarker) {
		return "", invalidPatternError(s)
	}
	// the marker must stand alone or follow a separator: "a.b*" would make
	// "a.b" and "a.bc" indistinguishable from "a.b.*" children
	if s != WildcardMarker && !strings.HasSuffix(s, TypeSeparator+WildcardMarker) {
		return "", invalidPatternError(s)
	}
	return TypePattern(s), nil
}

// MustTypePattern is ParseTypePattern for statically known patterns.
func MustTypePattern(s string) TypePattern {
	p, err := ParseTypePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

func invalidPatternError(s string) *errors.Error {
	return &errors.Error{
		Code: errors.EInvalid,
		Msg:  fmt.Sprintf("invalid type pattern %q: wildcard must be a single trailing segment", s),
	}
}

// IsWildcard reports whether the pattern carries the trailing match-any marker.
func (p TypePattern) IsWildcard() bool {
	return strings.HasSuffix(string(p), WildcardMarker)
}

// Prefix returns the pattern with the wildcard marker stripped. For a concrete
// pattern it returns the pattern itself.
func (p TypePattern) Prefix() string {
	return strings.TrimSuffix(string(p), WildcardMarker)
}

// Matches reports whether the concrete type identifier t is covered by p.
func (p TypePattern) Matches(t string) bool {
	if p.IsWildcard() {
		return strings.HasPrefix(t, p.Prefix())
	}
	return string(p) == t
}

// Intersect returns the pattern covering exactly the types matched by both p
// and q, and whether such a pattern exists.
func (p TypePattern) Intersect(q TypePattern) (TypePattern, bool) {
	switch {
	case !p.IsWildcard() && !q.IsWildcard():
		if p == q {
			return p, true
		}
		return "", false
	case !p.IsWildcard():
		if q.Matches(string(p)) {
			return p, true
		}
		return "", false
	case !q.IsWildcard():
		if p.Matches(string(q)) {
			return q, true
		}
		return "", false
	}
	// both wildcards: the narrower prefix wins when one contains the other
	if strings.HasPrefix(p.Prefix(), q.Prefix()) {
		return p, true
	}
	if strings.HasPrefix(q.Prefix(), p.Prefix()) {
		return q, true
	}
	return "", false
}

// Permission grants an action over the types covered by a pattern.
type Permission struct {
	Action      Action      `json:"action"`
	TypePattern TypePattern `json:"typePattern"`
}

func (p Permission) String() string {
	return fmt.Sprintf("%s:%s", p.Action, p.TypePattern)
}

// Valid rejects permissions with unknown actions or malformed patterns.
func (p Permission) Valid() error {
	switch p.Action {
	case CreateAction, ReadAction, UpdateAction, DeleteAction:
	default:
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  fmt.Sprintf("unknown action %q", p.Action),
		}
	}
	_, err := ParseTypePattern(string(p.TypePattern))
	return err
}

// PermissionSet is the full set of grants attached to an authorization.
type PermissionSet []Permission

// PatternsFor returns the patterns granting the given action.
func (ps PermissionSet) PatternsFor(action Action) []TypePattern {
	var out []TypePattern
	for _, p := range ps {
		if p.Action == action {
			out = append(out, p.TypePattern)
		}
	}
	return out
}

// Allows reports whether some grant for action covers the concrete type t.
func (ps PermissionSet) Allows(action Action, t string) bool {
	for _, p := range ps {
		if p.Action == action && p.TypePattern.Matches(t) {
			return true
		}
	}
	return false
}

// IntersectPatterns narrows the requested pattern by the granted ones,
// producing the effective pattern set a query may embed. An empty result means
// the caller has no visibility into any type the request named.
func IntersectPatterns(granted []TypePattern, requested TypePattern) []TypePattern {
	var out []TypePattern
	seen := make(map[TypePattern]struct{})
	for _, g := range granted {
		eff, ok := g.Intersect(requested)
		if !ok {
			continue
		}
		if _, dup := seen[eff]; dup {
			continue
		}
		seen[eff] = struct{}{}
		out = append(out, eff)
	}
	return out
}
