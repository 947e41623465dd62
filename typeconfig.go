package resourcedb

import (
	"context"
	"fmt"

	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

// maxTypeChainDepth bounds the ancestor walk so a registry returning a
// parent cycle cannot hang resolution.
const maxTypeChainDepth = 32

// TypeDefinition is one node of the registry's type hierarchy. Behavioral
// fields are tri-state: nil means "not set here, inherit". Parent is the id of
// the ancestor node, empty at the root.
type TypeDefinition struct {
	ID     string `json:"id"`
	Parent string `json:"parent,omitempty"`

	NotifyOnCreate *bool `json:"notifyOnCreate,omitempty"`
	NotifyOnUpdate *bool `json:"notifyOnUpdate,omitempty"`
	NotifyOnDelete *bool `json:"notifyOnDelete,omitempty"`

	AuditOnCreate *bool `json:"auditOnCreate,omitempty"`
	AuditOnUpdate *bool `json:"auditOnUpdate,omitempty"`
	AuditOnDelete *bool `json:"auditOnDelete,omitempty"`

	PerOwnerResource *bool `json:"perOwnerResource,omitempty"`

	// DeletedResourceRetentionDays: nil inherits, 0 means immediate hard
	// delete, positive values age soft-deleted rows out after that many days.
	DeletedResourceRetentionDays *int `json:"deletedResourceRetentionDays,omitempty"`
}

// ResourceTypeConfig is the flattened, effective configuration of a type after
// merging its inheritance chain.
type ResourceTypeConfig struct {
	Type string

	NotifyOnCreate bool
	NotifyOnUpdate bool
	NotifyOnDelete bool

	AuditOnCreate bool
	AuditOnUpdate bool
	AuditOnDelete bool

	PerOwnerResource bool

	// DeletedResourceRetentionDays is nil when no type in the chain sets a
	// retention policy, leaving the system default in force.
	DeletedResourceRetentionDays *int
}

// MergeTypeChain flattens an inheritance chain into one effective config.
// chain[0] is the type itself, followed by its ancestors in ascending order.
// Audit flags are effective when set anywhere in the chain; the remaining
// fields take the nearest explicitly set value.
func MergeTypeChain(chain []*TypeDefinition) *ResourceTypeConfig {
	cfg := &ResourceTypeConfig{Type: chain[0].ID}
	for _, def := range chain {
		cfg.AuditOnCreate = cfg.AuditOnCreate || (def.AuditOnCreate != nil && *def.AuditOnCreate)
		cfg.AuditOnUpdate = cfg.AuditOnUpdate || (def.AuditOnUpdate != nil && *def.AuditOnUpdate)
		cfg.AuditOnDelete = cfg.AuditOnDelete || (def.AuditOnDelete != nil && *def.AuditOnDelete)
	}
	// nearest-set-wins for everything else: walk from the leaf outward and
	// stop at the first node that sets the field
	nearestBool := func(pick func(*TypeDefinition) *bool) bool {
		for _, def := range chain {
			if v := pick(def); v != nil {
				return *v
			}
		}
		return false
	}
	cfg.NotifyOnCreate = nearestBool(func(d *TypeDefinition) *bool { return d.NotifyOnCreate })
	cfg.NotifyOnUpdate = nearestBool(func(d *TypeDefinition) *bool { return d.NotifyOnUpdate })
	cfg.NotifyOnDelete = nearestBool(func(d *TypeDefinition) *bool { return d.NotifyOnDelete })
	cfg.PerOwnerResource = nearestBool(func(d *TypeDefinition) *bool { return d.PerOwnerResource })

	for _, def := range chain {
		if def.DeletedResourceRetentionDays != nil {
			days := *def.DeletedResourceRetentionDays
			cfg.DeletedResourceRetentionDays = &days
			break
		}
	}
	return cfg
}

// ResolveTypeConfig fetches the chain for typ from the registry and merges it.
// The registry hands back individual nodes keyed by id with parent pointers as
// ids; the walk lives here so registries stay dumb lookups.
func ResolveTypeConfig(ctx context.Context, reg TypeRegistry, typ string) (*ResourceTypeConfig, error) {
	var chain []*TypeDefinition
	id := typ
	for depth := 0; id != ""; depth++ {
		if depth >= maxTypeChainDepth {
			return nil, &errors.Error{
				Code: errors.EInternal,
				Msg:  fmt.Sprintf("type %q inheritance chain exceeds %d links", typ, maxTypeChainDepth),
			}
		}
		def, err := reg.ResolveType(ctx, id)
		if err != nil {
			if depth > 0 && errors.ErrorCode(err) == errors.ETypeNotFound {
				// a dangling parent pointer is registry corruption, not a
				// caller mistake
				return nil, &errors.Error{
					Code: errors.EInternal,
					Msg:  fmt.Sprintf("type %q references unregistered ancestor %q", typ, id),
					Err:  err,
				}
			}
			return nil, err
		}
		chain = append(chain, def)
		id = def.Parent
	}
	return MergeTypeChain(chain), nil
}
