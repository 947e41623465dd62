package resource

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			return counterOf(m)
		}
	}
	return 0
}

func counterOf(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}

func TestServiceMiddlewares(t *testing.T) {
	t.Parallel()

	ts := newTestService(t, taskRegistry())
	reg := prometheus.NewRegistry()

	var svc resourcedb.ResourceService = NewLoggingService(zaptest.NewLogger(t),
		NewServiceMetrics(reg, ts.svc))

	ctx := authCtx("t1", "alice", fullGrants("task.*")...)

	created, err := svc.CreateResource(ctx, resourcedb.ResourceCreate{
		Type:    "task.item",
		Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	got, err := svc.GetResource(ctx, "task.item", created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = svc.GetResource(ctx, "task.item", "missing")
	require.Equal(t, errors.ENotFound, errors.ErrorCode(err))

	require.EqualValues(t, 1, counterValue(t, reg, "resourcedb_resource_call_total",
		map[string]string{"method": "create_resource"}))
	require.EqualValues(t, 2, counterValue(t, reg, "resourcedb_resource_call_total",
		map[string]string{"method": "get_resource"}))
	require.EqualValues(t, 1, counterValue(t, reg, "resourcedb_resource_error_total",
		map[string]string{"method": "get_resource", "code": errors.ENotFound}))
}
