package retention

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/backend"
	"github.com/resourcedb/resourcedb/backend/sqlbackend"
	"github.com/resourcedb/resourcedb/mock"
	"github.com/resourcedb/resourcedb/sqlite"
	"github.com/resourcedb/resourcedb/typecache"
)

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func intp(v int) *int { return &v }

type purgeFixture struct {
	svc     *Service
	backend *sqlbackend.SqlBackend
	store   *sqlite.SqlStore
	clock   *clock.Mock
}

func newPurgeFixture(t *testing.T, cfg Config, registry resourcedb.TypeRegistry) *purgeFixture {
	t.Helper()

	mc := clock.NewMock()
	mc.Set(testEpoch)

	logger := zaptest.NewLogger(t)
	store := sqlite.NewTestStore(t)
	b := sqlbackend.NewBackend(logger, store, sqlbackend.WithClock(mc))
	router := backend.NewRouter(b)

	svc := NewService(cfg, logger, router, typecache.New(registry, typecache.WithClock(mc)), registry, WithClock(mc))
	return &purgeFixture{svc: svc, backend: b, store: store, clock: mc}
}

func (f *purgeFixture) seed(t *testing.T, typ, id string, deletedAt *time.Time) {
	t.Helper()

	scope := resourcedb.Scope{TenantID: "t1", Types: []resourcedb.TypePattern{resourcedb.TypePattern(typ)}}
	r := &resourcedb.Resource{
		ID:        id,
		Type:      typ,
		TenantID:  "t1",
		CreatedAt: testEpoch.Add(-30 * 24 * time.Hour),
		UpdatedAt: testEpoch.Add(-30 * 24 * time.Hour),
		Payload:   json.RawMessage(`{}`),
	}
	res, err := f.backend.Create(context.Background(), scope, r, "")
	require.NoError(t, err)
	require.False(t, res.Duplicate())

	if deletedAt != nil {
		require.NoError(t, f.backend.Delete(context.Background(), scope, id, *deletedAt))
	}
}

func (f *purgeFixture) rowCount(t *testing.T, id string) int {
	t.Helper()

	var n int
	require.NoError(t, f.store.DB.Get(&n, `SELECT COUNT(*) FROM resources WHERE id = ?`, id))
	return n
}

func daysAgo(d int) *time.Time {
	v := testEpoch.Add(-time.Duration(d) * 24 * time.Hour)
	return &v
}

func TestPurgeCycle(t *testing.T) {
	t.Parallel()

	registry := mock.NewTypeRegistry(
		resourcedb.TypeDefinition{ID: "task.item", DeletedResourceRetentionDays: intp(7)},
		resourcedb.TypeDefinition{ID: "session.token"},
	)
	cfg := NewConfig()
	cfg.DefaultRetentionDays = 10

	f := newPurgeFixture(t, cfg, registry)

	f.seed(t, "task.item", "aged", daysAgo(8))
	f.seed(t, "task.item", "fresh", daysAgo(6))
	f.seed(t, "task.item", "active", nil)
	// session.token has no policy of its own and ages out on the system default
	f.seed(t, "session.token", "stale-session", daysAgo(11))
	f.seed(t, "session.token", "live-session", daysAgo(9))

	require.NoError(t, f.svc.PurgeCycle(context.Background()))

	require.Zero(t, f.rowCount(t, "aged"))
	require.Equal(t, 1, f.rowCount(t, "fresh"))
	require.Equal(t, 1, f.rowCount(t, "active"))
	require.Zero(t, f.rowCount(t, "stale-session"))
	require.Equal(t, 1, f.rowCount(t, "live-session"))

	// a second pass over the purged range removes nothing further
	require.NoError(t, f.svc.PurgeCycle(context.Background()))
	require.Equal(t, 1, f.rowCount(t, "fresh"))
	require.Equal(t, 1, f.rowCount(t, "active"))
}

func TestPurgeCycleDrainsInBatches(t *testing.T) {
	t.Parallel()

	registry := mock.NewTypeRegistry(
		resourcedb.TypeDefinition{ID: "task.item", DeletedResourceRetentionDays: intp(1)},
	)
	cfg := NewConfig()
	cfg.BatchSize = 2

	f := newPurgeFixture(t, cfg, registry)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		f.seed(t, "task.item", id, daysAgo(3))
	}

	require.NoError(t, f.svc.PurgeCycle(context.Background()))

	var n int
	require.NoError(t, f.store.DB.Get(&n, `SELECT COUNT(*) FROM resources`))
	require.Zero(t, n, "the purge loop keeps draining past the batch cap")
}

func TestPurgeCycleSweepsIdempotencyRecords(t *testing.T) {
	t.Parallel()

	registry := mock.NewTypeRegistry(resourcedb.TypeDefinition{ID: "task.item"})
	f := newPurgeFixture(t, NewConfig(), registry)

	// a key claimed two days ago is past the default idempotency window
	f.clock.Set(testEpoch.Add(-48 * time.Hour))
	scope := resourcedb.Scope{TenantID: "t1", Types: []resourcedb.TypePattern{"task.item"}}
	r := &resourcedb.Resource{
		ID: "r1", Type: "task.item", TenantID: "t1",
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
		Payload: json.RawMessage(`{}`),
	}
	_, err := f.backend.Create(context.Background(), scope, r, "K1")
	require.NoError(t, err)
	f.clock.Set(testEpoch)

	require.NoError(t, f.svc.PurgeCycle(context.Background()))

	var keys int
	require.NoError(t, f.store.DB.Get(&keys, `SELECT COUNT(*) FROM idempotency_keys`))
	require.Zero(t, keys)

	// sweeping records never touches the resources themselves
	require.Equal(t, 1, f.rowCount(t, "r1"))
}

func TestServiceRunsOnInterval(t *testing.T) {
	t.Parallel()

	registry := mock.NewTypeRegistry(
		resourcedb.TypeDefinition{ID: "task.item", DeletedResourceRetentionDays: intp(1)},
	)
	f := newPurgeFixture(t, NewConfig(), registry)
	f.seed(t, "task.item", "aged", daysAgo(2))

	require.NoError(t, f.svc.Open())
	defer f.svc.Close()

	gone := func() bool {
		var n int
		if err := f.store.DB.Get(&n, `SELECT COUNT(*) FROM resources WHERE id = 'aged'`); err != nil {
			return false
		}
		return n == 0
	}
	require.Eventually(t, func() bool {
		f.clock.Add(DefaultCheckInterval)
		return gone()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServiceDisabled(t *testing.T) {
	t.Parallel()

	registry := mock.NewTypeRegistry(resourcedb.TypeDefinition{ID: "task.item"})
	cfg := NewConfig()
	cfg.Enabled = false

	f := newPurgeFixture(t, cfg, registry)

	require.NoError(t, f.svc.Open())
	require.NoError(t, f.svc.Close())
}

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.WithDefaults()
	require.EqualValues(t, DefaultCheckInterval, cfg.CheckInterval)
	require.Equal(t, DefaultBatchSize, cfg.BatchSize)
	require.Equal(t, DefaultRetentionDays, cfg.DefaultRetentionDays)

	custom := Config{BatchSize: 5}.WithDefaults()
	require.Equal(t, 5, custom.BatchSize)
}
