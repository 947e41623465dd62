package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)

	err := store.execTrans(ctx, `INSERT INTO resources (id, type, tenant_id, created_at, updated_at, payload)
		VALUES ("one", "t", "tn", "a", "a", "{}"), ("two", "t", "tn", "a", "a", "{}")`)
	require.NoError(t, err)

	vals, err := store.queryToStrings(`SELECT id FROM resources`)
	require.NoError(t, err)
	require.Equal(t, 2, len(vals))

	store.Flush(ctx)

	vals, err = store.queryToStrings(`SELECT id FROM resources`)
	require.NoError(t, err)
	require.Equal(t, 0, len(vals))
}

func TestFlushKeepsMigrationsTable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)

	require.NoError(t, store.execTrans(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT NOT NULL PRIMARY KEY)`, migrationsTableName)))
	require.NoError(t, store.execTrans(ctx, fmt.Sprintf(`INSERT INTO %s (id) VALUES ("one"), ("two"), ("three")`, migrationsTableName)))
	store.Flush(ctx)

	got, err := store.queryToStrings(fmt.Sprintf(`SELECT * FROM %s`, migrationsTableName))
	require.NoError(t, err)
	want := []string{"one", "two", "three"}
	require.Equal(t, want, got)
}

func TestUniqueConstraintDetection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)

	stmt := `INSERT INTO idempotency_keys (tenant_id, idempotency_key, resource_id, expires_at)
		VALUES ("tn", "k1", "r1", "2100-01-01T00:00:00Z")`
	require.NoError(t, store.execTrans(ctx, stmt))

	err := store.execTrans(ctx, stmt)
	require.Error(t, err)
	require.True(t, IsUniqueConstraintError(err, "idempotency_keys"))
	require.False(t, IsUniqueConstraintError(err, "resources"))
	require.True(t, IsUniqueConstraintError(err, ""))
}
