package resourcedb

import (
	"context"
	"encoding/json"
)

// TypeRegistry is the external owner of type registration and schema
// validation. ResolveType returns an ETypeNotFound coded error for an
// unregistered id.
type TypeRegistry interface {
	ResolveType(ctx context.Context, typeID string) (*TypeDefinition, error)
	ListTypes(ctx context.Context) ([]string, error)
	// ValidatePayload checks the payload against the registered schema for
	// the type, returning an EInvalid coded error on mismatch.
	ValidatePayload(ctx context.Context, typeID string, payload json.RawMessage) error
}

// EventKind names a lifecycle transition for event and audit emission.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// EventSink receives lifecycle notifications. Delivery is best-effort from the
// store's perspective: the storage write is the durable fact and a sink
// failure is logged, never propagated or retried inline.
type EventSink interface {
	Emit(ctx context.Context, kind EventKind, resourceType, resourceID string) error
}

// AuditSink receives audit records, optionally with the payload before and
// after the mutation. Same best-effort semantics as EventSink.
type AuditSink interface {
	Emit(ctx context.Context, kind EventKind, resourceType, resourceID string, previous, current json.RawMessage) error
}
