// Package backend defines the storage backend contract of the resource store.
//
// A backend persists and queries one logical resource table. It never
// interprets authorization: every operation receives the scope the
// orchestration layer computed and embeds it as query predicates, so a
// mismatch on tenant, owner or type is indistinguishable from a row that does
// not exist. This contract is the long-term stability boundary for backend
// implementers.
package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

// ErrNotFound is the uniform outcome for a target that is absent or filtered
// out by scoping predicates. Backends return it from Get, Update, Delete and
// HardDelete; they never return an authorization error.
var ErrNotFound = &errors.Error{
	Code: errors.ENotFound,
	Msg:  "resource not found",
}

// Capabilities is a backend's static declaration of the optional operations
// it supports. Callers must check before invoking a listing with advanced
// filters or a search.
type Capabilities struct {
	SupportsQuery  bool
	SupportsSearch bool
}

// CreateResult is the outcome of a create: exactly one of Resource (created)
// or ExistingID (idempotency key already consumed) is set.
type CreateResult struct {
	Resource   *resourcedb.Resource
	ExistingID string
}

// Duplicate reports whether the create was absorbed by a prior one with the
// same idempotency key.
func (r *CreateResult) Duplicate() bool {
	return r.ExistingID != ""
}

// Backend is the contract every persistence engine implements.
type Backend interface {
	// Create inserts the resource. When idempotencyKey is non-empty the
	// check for an existing (tenant, key) record and the insert of both the
	// resource row and the idempotency record happen as a single atomic
	// unit: of two racing creates with the same key exactly one observes
	// Created and the other Duplicate referencing the winner's id.
	Create(ctx context.Context, scope resourcedb.Scope, r *resourcedb.Resource, idempotencyKey string) (*CreateResult, error)

	// Get returns the resource or ErrNotFound. Soft-deleted rows are
	// excluded.
	Get(ctx context.Context, scope resourcedb.Scope, id string) (*resourcedb.Resource, error)

	// List returns a page of resources matching the scope plus the caller's
	// schema-field filter, ordering and pagination.
	List(ctx context.Context, scope resourcedb.Scope, filter resourcedb.ResourceFilter, opts resourcedb.FindOptions) (*resourcedb.ResourceList, error)

	// Update replaces the payload and advances updated_at; every other
	// field is immutable. Returns ErrNotFound when the scoped target row
	// does not exist.
	Update(ctx context.Context, scope resourcedb.Scope, id string, payload json.RawMessage, updatedAt time.Time) (*resourcedb.Resource, error)

	// Delete sets the soft-delete marker, excluding the row from future
	// gets and listings.
	Delete(ctx context.Context, scope resourcedb.Scope, id string, deletedAt time.Time) error

	// HardDelete removes the row permanently. Used when the type's
	// retention is configured as immediate.
	HardDelete(ctx context.Context, scope resourcedb.Scope, id string) error

	// PurgeDeletedBefore permanently removes up to batchSize rows of the
	// given type whose soft-delete marker predates cutoff, returning how
	// many were removed.
	PurgeDeletedBefore(ctx context.Context, typ string, cutoff time.Time, batchSize int) (int, error)

	// Capabilities declares which optional operations the backend supports.
	Capabilities() Capabilities
}

// Searcher is implemented by backends that declare the search capability.
type Searcher interface {
	Search(ctx context.Context, scope resourcedb.Scope, query string, opts resourcedb.FindOptions) (*resourcedb.ResourceList, error)
}

// IdempotencySweeper is implemented by backends that persist idempotency
// records themselves and age them out past their expiry.
type IdempotencySweeper interface {
	SweepIdempotency(ctx context.Context, now time.Time, batchSize int) (int, error)
}
