package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/resourcedb/resourcedb/sqlite/migrations"
)

// NewTestStore returns a fully migrated in-memory store. The store is closed
// automatically when the test finishes.
func NewTestStore(t *testing.T) *SqlStore {
	t.Helper()

	store, err := NewSqlStore(InmemPath, zap.NewNop())
	require.NoError(t, err, "unable to open testing database")
	t.Cleanup(func() {
		store.Close()
	})

	require.NoError(t, NewMigrator(store, zap.NewNop()).Up(context.Background(), migrations.All), "unable to migrate testing database")

	return store
}
