package resource

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/kit/metric"
)

var _ resourcedb.ResourceService = (*ServiceMetrics)(nil)

// ServiceMetrics is a metrics middleware for the resource service.
type ServiceMetrics struct {
	// RED metrics
	rec *metric.REDClient

	underlying resourcedb.ResourceService
}

// NewServiceMetrics returns a metrics service middleware for the resource service.
func NewServiceMetrics(reg prometheus.Registerer, s resourcedb.ResourceService) *ServiceMetrics {
	return &ServiceMetrics{
		rec:        metric.New(reg, "resource"),
		underlying: s,
	}
}

func (m *ServiceMetrics) CreateResource(ctx context.Context, create resourcedb.ResourceCreate) (*resourcedb.Resource, error) {
	rec := m.rec.Record("create_resource")
	r, err := m.underlying.CreateResource(ctx, create)
	return r, rec(err)
}

func (m *ServiceMetrics) GetResource(ctx context.Context, typ, id string) (*resourcedb.Resource, error) {
	rec := m.rec.Record("get_resource")
	r, err := m.underlying.GetResource(ctx, typ, id)
	return r, rec(err)
}

func (m *ServiceMetrics) ListResources(ctx context.Context, filter resourcedb.ResourceFilter, opts resourcedb.FindOptions) (*resourcedb.ResourceList, error) {
	rec := m.rec.Record("list_resources")
	rs, err := m.underlying.ListResources(ctx, filter, opts)
	return rs, rec(err)
}

func (m *ServiceMetrics) UpdateResource(ctx context.Context, typ, id string, payload json.RawMessage) (*resourcedb.Resource, error) {
	rec := m.rec.Record("update_resource")
	r, err := m.underlying.UpdateResource(ctx, typ, id, payload)
	return r, rec(err)
}

func (m *ServiceMetrics) DeleteResource(ctx context.Context, typ, id string) error {
	rec := m.rec.Record("delete_resource")
	err := m.underlying.DeleteResource(ctx, typ, id)
	return rec(err)
}

func (m *ServiceMetrics) SearchResources(ctx context.Context, typ, query string, opts resourcedb.FindOptions) (*resourcedb.ResourceList, error) {
	rec := m.rec.Record("search_resources")
	rs, err := m.underlying.SearchResources(ctx, typ, query, opts)
	return rs, rec(err)
}
