package mock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/backend"
)

var _ backend.Backend = (*Backend)(nil)

// Backend is a mock implementation of backend.Backend. Unset functions fail
// the call loudly so a test exercising an unexpected operation is caught.
type Backend struct {
	CapabilitiesVal backend.Capabilities

	CreateFn             func(ctx context.Context, scope resourcedb.Scope, r *resourcedb.Resource, idempotencyKey string) (*backend.CreateResult, error)
	GetFn                func(ctx context.Context, scope resourcedb.Scope, id string) (*resourcedb.Resource, error)
	ListFn               func(ctx context.Context, scope resourcedb.Scope, filter resourcedb.ResourceFilter, opts resourcedb.FindOptions) (*resourcedb.ResourceList, error)
	UpdateFn             func(ctx context.Context, scope resourcedb.Scope, id string, payload json.RawMessage, updatedAt time.Time) (*resourcedb.Resource, error)
	DeleteFn             func(ctx context.Context, scope resourcedb.Scope, id string, deletedAt time.Time) error
	HardDeleteFn         func(ctx context.Context, scope resourcedb.Scope, id string) error
	PurgeDeletedBeforeFn func(ctx context.Context, typ string, cutoff time.Time, batchSize int) (int, error)
}

func (b *Backend) Capabilities() backend.Capabilities {
	return b.CapabilitiesVal
}

func (b *Backend) Create(ctx context.Context, scope resourcedb.Scope, r *resourcedb.Resource, idempotencyKey string) (*backend.CreateResult, error) {
	return b.CreateFn(ctx, scope, r, idempotencyKey)
}

func (b *Backend) Get(ctx context.Context, scope resourcedb.Scope, id string) (*resourcedb.Resource, error) {
	return b.GetFn(ctx, scope, id)
}

func (b *Backend) List(ctx context.Context, scope resourcedb.Scope, filter resourcedb.ResourceFilter, opts resourcedb.FindOptions) (*resourcedb.ResourceList, error) {
	return b.ListFn(ctx, scope, filter, opts)
}

func (b *Backend) Update(ctx context.Context, scope resourcedb.Scope, id string, payload json.RawMessage, updatedAt time.Time) (*resourcedb.Resource, error) {
	return b.UpdateFn(ctx, scope, id, payload, updatedAt)
}

func (b *Backend) Delete(ctx context.Context, scope resourcedb.Scope, id string, deletedAt time.Time) error {
	return b.DeleteFn(ctx, scope, id, deletedAt)
}

func (b *Backend) HardDelete(ctx context.Context, scope resourcedb.Scope, id string) error {
	return b.HardDeleteFn(ctx, scope, id)
}

func (b *Backend) PurgeDeletedBefore(ctx context.Context, typ string, cutoff time.Time, batchSize int) (int, error) {
	return b.PurgeDeletedBeforeFn(ctx, typ, cutoff, batchSize)
}
