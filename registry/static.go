// Package registry provides type registry implementations. The registry of
// record is an external service; Static covers standalone deployments and the
// purge daemon, which only need a fixed set of type definitions loaded from
// configuration.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

var _ resourcedb.TypeRegistry = (*Static)(nil)

// Static is a read-only, in-memory type registry.
type Static struct {
	defs map[string]*resourcedb.TypeDefinition
}

// NewStatic builds a registry from the given definitions. Parent pointers
// must resolve within the set.
func NewStatic(defs []resourcedb.TypeDefinition) (*Static, error) {
	m := make(map[string]*resourcedb.TypeDefinition, len(defs))
	for i := range defs {
		def := defs[i]
		if def.ID == "" {
			return nil, &errors.Error{
				Code: errors.EInvalid,
				Msg:  "type definition without an id",
			}
		}
		if _, ok := m[def.ID]; ok {
			return nil, &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("duplicate type definition %q", def.ID),
			}
		}
		m[def.ID] = &def
	}
	for _, def := range m {
		if def.Parent == "" {
			continue
		}
		if _, ok := m[def.Parent]; !ok {
			return nil, &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("type %q references unknown parent %q", def.ID, def.Parent),
			}
		}
	}
	return &Static{defs: m}, nil
}

func (s *Static) ResolveType(ctx context.Context, typeID string) (*resourcedb.TypeDefinition, error) {
	def, ok := s.defs[typeID]
	if !ok {
		return nil, &errors.Error{
			Code: errors.ETypeNotFound,
			Msg:  fmt.Sprintf("resource type %q is not registered", typeID),
		}
	}
	return def, nil
}

func (s *Static) ListTypes(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(s.defs))
	for id := range s.defs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ValidatePayload accepts any well-formed JSON document. Schema enforcement
// belongs to the full registry service; the static registry only guards
// against payloads the store could not round-trip.
func (s *Static) ValidatePayload(ctx context.Context, typeID string, payload json.RawMessage) error {
	if _, err := s.ResolveType(ctx, typeID); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "payload is not valid JSON",
		}
	}
	return nil
}
