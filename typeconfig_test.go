package resourcedb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

func boolp(b bool) *bool { return &b }
func intp(i int) *int    { return &i }

func TestMergeTypeChain(t *testing.T) {
	t.Parallel()

	child := &TypeDefinition{
		ID:               "task.item.note",
		Parent:           "task.item",
		NotifyOnCreate:   boolp(false),
		PerOwnerResource: boolp(true),
	}
	parent := &TypeDefinition{
		ID:                           "task.item",
		Parent:                       "task",
		NotifyOnCreate:               boolp(true),
		AuditOnUpdate:                boolp(true),
		DeletedResourceRetentionDays: intp(7),
	}
	root := &TypeDefinition{
		ID:                           "task",
		AuditOnDelete:                boolp(true),
		DeletedResourceRetentionDays: intp(90),
	}

	cfg := MergeTypeChain([]*TypeDefinition{child, parent, root})

	require.Equal(t, "task.item.note", cfg.Type)

	// nearest-set wins: the child's explicit false overrides the parent
	require.False(t, cfg.NotifyOnCreate)
	require.True(t, cfg.PerOwnerResource)

	// audit flags are effective when set anywhere in the chain
	require.True(t, cfg.AuditOnUpdate)
	require.True(t, cfg.AuditOnDelete)
	require.False(t, cfg.AuditOnCreate)

	// retention comes from the nearest ancestor that sets it
	require.NotNil(t, cfg.DeletedResourceRetentionDays)
	require.Equal(t, 7, *cfg.DeletedResourceRetentionDays)
}

func TestMergeTypeChainNoRetention(t *testing.T) {
	t.Parallel()

	cfg := MergeTypeChain([]*TypeDefinition{{ID: "task"}})
	require.Nil(t, cfg.DeletedResourceRetentionDays)
	require.False(t, cfg.PerOwnerResource)
}

type chainRegistry struct {
	TypeRegistry
	defs map[string]*TypeDefinition
}

func (r *chainRegistry) ResolveType(_ context.Context, id string) (*TypeDefinition, error) {
	d, ok := r.defs[id]
	if !ok {
		return nil, &errors.Error{Code: errors.ETypeNotFound}
	}
	return d, nil
}

func TestResolveTypeConfig(t *testing.T) {
	t.Parallel()

	reg := &chainRegistry{defs: map[string]*TypeDefinition{
		"task":      {ID: "task", AuditOnCreate: boolp(true)},
		"task.item": {ID: "task.item", Parent: "task", PerOwnerResource: boolp(true)},
	}}

	cfg, err := ResolveTypeConfig(context.Background(), reg, "task.item")
	require.NoError(t, err)
	require.True(t, cfg.AuditOnCreate)
	require.True(t, cfg.PerOwnerResource)

	_, err = ResolveTypeConfig(context.Background(), reg, "missing")
	require.Equal(t, errors.ETypeNotFound, errors.ErrorCode(err))
}

func TestResolveTypeConfigDanglingParent(t *testing.T) {
	t.Parallel()

	reg := &chainRegistry{defs: map[string]*TypeDefinition{
		"task.item": {ID: "task.item", Parent: "gone"},
	}}

	_, err := ResolveTypeConfig(context.Background(), reg, "task.item")
	require.Equal(t, errors.EInternal, errors.ErrorCode(err))
}

func TestResolveTypeConfigCycle(t *testing.T) {
	t.Parallel()

	reg := &chainRegistry{defs: map[string]*TypeDefinition{
		"a": {ID: "a", Parent: "b"},
		"b": {ID: "b", Parent: "a"},
	}}

	_, err := ResolveTypeConfig(context.Background(), reg, "a")
	require.Equal(t, errors.EInternal, errors.ErrorCode(err))
}
