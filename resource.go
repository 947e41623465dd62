package resourcedb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

// MaxPayloadSize is the upper bound on a resource payload in bytes. Payloads
// are opaque to the store; the bound is the only thing it enforces about them.
const MaxPayloadSize = 64 * 1024

// Resource is the unit of storage: an envelope of identity and scoping fields
// around an opaque payload. Everything except the payload and updated_at is
// immutable after creation.
type Resource struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	TenantID  string          `json:"tenantID"`
	OwnerID   *string         `json:"ownerID,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	DeletedAt *time.Time      `json:"-"`
	Payload   json.RawMessage `json:"payload"`
}

// ResourceCreate is the request body for creating a resource. ID may be left
// empty to have the store generate one. The idempotency key scopes the
// creation attempt to at-most-one effect per tenant.
type ResourceCreate struct {
	Type           string          `json:"type"`
	ID             string          `json:"id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"-"`
}

// Validate checks the statically checkable parts of a create request.
// Schema validation of the payload belongs to the type registry.
func (c ResourceCreate) Validate() error {
	if c.Type == "" || strings.Contains(c.Type, WildcardMarker) {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "a concrete resource type is required",
		}
	}
	if len(c.Payload) == 0 {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "resource payload is required",
		}
	}
	if len(c.Payload) > MaxPayloadSize {
		return &errors.Error{
			Code: errors.ETooLarge,
			Msg:  fmt.Sprintf("payload exceeds %d bytes", MaxPayloadSize),
		}
	}
	return nil
}

// DuplicateResourceError reports that an idempotency key was already consumed
// within its window. It is wrapped in an EConflict coded error so callers can
// recover the id of the resource the original create produced.
type DuplicateResourceError struct {
	ExistingID string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("idempotency key already used by resource %s", e.ExistingID)
}

// ResourceService is the orchestration facade used by all operations.
// Implementations sequence validation, access control, backend dispatch and
// event/audit emission.
type ResourceService interface {
	CreateResource(ctx context.Context, create ResourceCreate) (*Resource, error)
	GetResource(ctx context.Context, typ, id string) (*Resource, error)
	ListResources(ctx context.Context, filter ResourceFilter, opts FindOptions) (*ResourceList, error)
	UpdateResource(ctx context.Context, typ, id string, payload json.RawMessage) (*Resource, error)
	DeleteResource(ctx context.Context, typ, id string) error
	SearchResources(ctx context.Context, typ, query string, opts FindOptions) (*ResourceList, error)
}
