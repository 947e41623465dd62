// Package mock holds hand-written fakes of the store's collaborator
// interfaces for use in tests.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

// IDGenerator is a mock implementation of resourcedb.IDGenerator.
type IDGenerator struct {
	IDFn func() string
}

// ID generates an id from the mock function.
func (g IDGenerator) ID() string {
	return g.IDFn()
}

// NewIDGenerator is a simple way to create an immutable id generator.
func NewIDGenerator(s string) IDGenerator {
	return IDGenerator{
		IDFn: func() string { return s },
	}
}

// TypeRegistry is a mock implementation of resourcedb.TypeRegistry backed by
// an in-memory definition set.
type TypeRegistry struct {
	ResolveTypeFn     func(ctx context.Context, typeID string) (*resourcedb.TypeDefinition, error)
	ListTypesFn       func(ctx context.Context) ([]string, error)
	ValidatePayloadFn func(ctx context.Context, typeID string, payload json.RawMessage) error
}

var _ resourcedb.TypeRegistry = (*TypeRegistry)(nil)

func (r *TypeRegistry) ResolveType(ctx context.Context, typeID string) (*resourcedb.TypeDefinition, error) {
	return r.ResolveTypeFn(ctx, typeID)
}

func (r *TypeRegistry) ListTypes(ctx context.Context) ([]string, error) {
	return r.ListTypesFn(ctx)
}

func (r *TypeRegistry) ValidatePayload(ctx context.Context, typeID string, payload json.RawMessage) error {
	if r.ValidatePayloadFn == nil {
		return nil
	}
	return r.ValidatePayloadFn(ctx, typeID, payload)
}

// NewTypeRegistry returns a registry resolving exactly the given definitions,
// accepting any payload for them.
func NewTypeRegistry(defs ...resourcedb.TypeDefinition) *TypeRegistry {
	byID := make(map[string]resourcedb.TypeDefinition, len(defs))
	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}
	return &TypeRegistry{
		ResolveTypeFn: func(_ context.Context, typeID string) (*resourcedb.TypeDefinition, error) {
			d, ok := byID[typeID]
			if !ok {
				return nil, &errors.Error{
					Code: errors.ETypeNotFound,
					Msg:  "resource type is not registered",
				}
			}
			return &d, nil
		},
		ListTypesFn: func(context.Context) ([]string, error) {
			return ids, nil
		},
	}
}

// EmittedEvent is one recorded sink call.
type EmittedEvent struct {
	Kind         resourcedb.EventKind
	ResourceType string
	ResourceID   string
	Previous     json.RawMessage
	Current      json.RawMessage
}

// EventSink is a recording mock of resourcedb.EventSink.
type EventSink struct {
	mu     sync.Mutex
	Err    error
	Events []EmittedEvent
}

var _ resourcedb.EventSink = (*EventSink)(nil)

func (s *EventSink) Emit(ctx context.Context, kind resourcedb.EventKind, resourceType, resourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Events = append(s.Events, EmittedEvent{Kind: kind, ResourceType: resourceType, ResourceID: resourceID})
	return nil
}

// AuditSink is a recording mock of resourcedb.AuditSink.
type AuditSink struct {
	mu      sync.Mutex
	Err     error
	Records []EmittedEvent
}

var _ resourcedb.AuditSink = (*AuditSink)(nil)

func (s *AuditSink) Emit(ctx context.Context, kind resourcedb.EventKind, resourceType, resourceID string, previous, current json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Records = append(s.Records, EmittedEvent{
		Kind:         kind,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Previous:     previous,
		Current:      current,
	})
	return nil
}
