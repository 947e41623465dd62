package resource

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/resourcedb/resourcedb"
)

func NewLoggingService(logger *zap.Logger, underlying resourcedb.ResourceService) *loggingService {
	return &loggingService{
		logger:     logger,
		underlying: underlying,
	}
}

type loggingService struct {
	logger     *zap.Logger
	underlying resourcedb.ResourceService
}

var _ resourcedb.ResourceService = (*loggingService)(nil)

func (l loggingService) CreateResource(ctx context.Context, create resourcedb.ResourceCreate) (r *resourcedb.Resource, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to create resource", zap.Error(err), dur)
			return
		}
		l.logger.Debug("resource create", zap.String("resource_type", create.Type), dur)
	}(time.Now())
	return l.underlying.CreateResource(ctx, create)
}

func (l loggingService) GetResource(ctx context.Context, typ, id string) (r *resourcedb.Resource, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to find resource by ID", zap.Error(err), dur)
			return
		}
		l.logger.Debug("resource find by ID", dur)
	}(time.Now())
	return l.underlying.GetResource(ctx, typ, id)
}

func (l loggingService) ListResources(ctx context.Context, filter resourcedb.ResourceFilter, opts resourcedb.FindOptions) (rs *resourcedb.ResourceList, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to find resources", zap.Error(err), dur)
			return
		}
		l.logger.Debug("resources find", dur)
	}(time.Now())
	return l.underlying.ListResources(ctx, filter, opts)
}

func (l loggingService) UpdateResource(ctx context.Context, typ, id string, payload json.RawMessage) (r *resourcedb.Resource, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to update resource", zap.Error(err), dur)
			return
		}
		l.logger.Debug("resource update", dur)
	}(time.Now())
	return l.underlying.UpdateResource(ctx, typ, id, payload)
}

func (l loggingService) DeleteResource(ctx context.Context, typ, id string) (err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to delete resource", zap.Error(err), dur)
			return
		}
		l.logger.Debug("resource delete", dur)
	}(time.Now())
	return l.underlying.DeleteResource(ctx, typ, id)
}

func (l loggingService) SearchResources(ctx context.Context, typ, query string, opts resourcedb.FindOptions) (rs *resourcedb.ResourceList, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to search resources", zap.Error(err), dur)
			return
		}
		l.logger.Debug("resources search", dur)
	}(time.Now())
	return l.underlying.SearchResources(ctx, typ, query, opts)
}
