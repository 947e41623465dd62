// Package resource implements the orchestration service: the facade that
// sequences validation, access control, backend dispatch and event/audit
// emission for every resource operation.
package resource

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/backend"
	icontext "github.com/resourcedb/resourcedb/context"
	"github.com/resourcedb/resourcedb/kit/platform/errors"
	"github.com/resourcedb/resourcedb/typecache"
)

var _ resourcedb.ResourceService = (*Service)(nil)

// Service orchestrates resource operations. It holds no resource state of its
// own; the routed backend's store is the sole system of record.
type Service struct {
	log    *zap.Logger
	router *backend.Router
	types  *typecache.Cache

	registry resourcedb.TypeRegistry
	events   resourcedb.EventSink
	audit    resourcedb.AuditSink

	idGenerator resourcedb.IDGenerator
	clock       clock.Clock
}

// Option configures a Service.
type Option func(*Service)

// WithIDGenerator substitutes the id generator for created resources.
func WithIDGenerator(g resourcedb.IDGenerator) Option {
	return func(s *Service) {
		s.idGenerator = g
	}
}

// WithClock substitutes the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// NewService wires the orchestration service to its collaborators. The event
// and audit sinks are best-effort: their failures are logged and never fail
// the storage operation.
func NewService(logger *zap.Logger, router *backend.Router, types *typecache.Cache, registry resourcedb.TypeRegistry, events resourcedb.EventSink, audit resourcedb.AuditSink, opts ...Option) *Service {
	s := &Service{
		log:         logger,
		router:      router,
		types:       types,
		registry:    registry,
		events:      events,
		audit:       audit,
		idGenerator: resourcedb.NewRandomIDGenerator(),
		clock:       clock.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateResource validates and stores a new resource. The requested type must
// be registered and permitted for create; this is one of the two decision
// points allowed to answer with a scope denial instead of not-found, since
// there is no existing row whose presence could leak.
func (s *Service) CreateResource(ctx context.Context, create resourcedb.ResourceCreate) (*resourcedb.Resource, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}

	auth, err := icontext.GetAuthorizer(ctx)
	if err != nil {
		return nil, err
	}

	cfg, err := s.types.Config(ctx, create.Type)
	if err != nil {
		return nil, err
	}

	ps, err := auth.PermissionSet()
	if err != nil {
		return nil, err
	}
	if !ps.Allows(resourcedb.CreateAction, create.Type) {
		return nil, &errors.Error{
			Code: errors.EForbidden,
			Msg:  "not permitted to create resources of this type",
		}
	}

	if cfg.PerOwnerResource && auth.Subject() == "" {
		return nil, &errors.Error{
			Code: errors.EInvalid,
			Msg:  "owner-scoped type requires a subject identity",
		}
	}

	if err := s.registry.ValidatePayload(ctx, create.Type, create.Payload); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	r := &resourcedb.Resource{
		ID:        create.ID,
		Type:      create.Type,
		TenantID:  auth.Tenant(),
		CreatedAt: now,
		UpdatedAt: now,
		Payload:   create.Payload,
	}
	if r.ID == "" {
		r.ID = s.idGenerator.ID()
	}
	if cfg.PerOwnerResource {
		owner := auth.Subject()
		r.OwnerID = &owner
	}

	scope := resourcedb.Scope{
		TenantID: auth.Tenant(),
		Types:    []resourcedb.TypePattern{resourcedb.TypePattern(create.Type)},
	}
	res, err := s.router.For(resourcedb.TypePattern(create.Type)).Create(ctx, scope, r, create.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if res.Duplicate() {
		return nil, &errors.Error{
			Code: errors.EConflict,
			Err:  &resourcedb.DuplicateResourceError{ExistingID: res.ExistingID},
		}
	}

	s.emit(ctx, cfg.NotifyOnCreate, resourcedb.EventCreated, r.Type, r.ID)
	s.auditEmit(ctx, cfg.AuditOnCreate, resourcedb.EventCreated, r.Type, r.ID, nil, r.Payload)
	return res.Resource, nil
}

// GetResource returns the resource, or not-found. The permitted type set,
// tenant and owner scoping travel as query predicates, so a row the caller
// may not see is indistinguishable from one that does not exist.
func (s *Service) GetResource(ctx context.Context, typ, id string) (*resourcedb.Resource, error) {
	scope, _, err := s.scopeForType(ctx, resourcedb.ReadAction, typ)
	if err != nil {
		return nil, err
	}
	return s.router.For(resourcedb.TypePattern(typ)).Get(ctx, *scope, id)
}

// ListResources returns a page of resources the caller may see. An empty
// intersection between the caller's read grants and the requested type filter
// is the second pre-query decision point and fails with a scope denial.
func (s *Service) ListResources(ctx context.Context, filter resourcedb.ResourceFilter, opts resourcedb.FindOptions) (*resourcedb.ResourceList, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	auth, err := icontext.GetAuthorizer(ctx)
	if err != nil {
		return nil, err
	}
	ps, err := auth.PermissionSet()
	if err != nil {
		return nil, err
	}

	effective := resourcedb.IntersectPatterns(ps.PatternsFor(resourcedb.ReadAction), filter.Type)
	if len(effective) == 0 {
		return nil, &errors.Error{
			Code: errors.EForbidden,
			Msg:  "no readable types match the requested filter",
		}
	}

	scope := resourcedb.Scope{
		TenantID: auth.Tenant(),
		Types:    effective,
	}
	if filter.Type.IsWildcard() {
		// a pattern may span owner-scoped and shared types; restrict to the
		// caller's own rows plus ownerless rows so nothing leaks
		scope.Owner = &resourcedb.OwnerScope{SubjectID: auth.Subject()}
	} else {
		cfg, err := s.types.Config(ctx, string(filter.Type))
		if err != nil {
			return nil, err
		}
		if cfg.PerOwnerResource {
			scope.Owner = &resourcedb.OwnerScope{SubjectID: auth.Subject(), Exclusive: true}
		}
	}

	b := s.router.For(filter.Type)
	if filter.Advanced() && !b.Capabilities().SupportsQuery {
		return nil, &errors.Error{
			Code: errors.ENotImplemented,
			Msg:  "resolved backend does not support filtered queries",
		}
	}

	return b.List(ctx, scope, filter, opts)
}

// UpdateResource replaces the payload of an existing resource. Envelope
// fields are immutable; only the payload and updated_at change.
func (s *Service) UpdateResource(ctx context.Context, typ, id string, payload json.RawMessage) (*resourcedb.Resource, error) {
	if len(payload) == 0 {
		return nil, &errors.Error{
			Code: errors.EInvalid,
			Msg:  "resource payload is required",
		}
	}
	if len(payload) > resourcedb.MaxPayloadSize {
		return nil, &errors.Error{
			Code: errors.ETooLarge,
			Msg:  "payload exceeds size bound",
		}
	}

	scope, cfg, err := s.scopeForType(ctx, resourcedb.UpdateAction, typ)
	if err != nil {
		return nil, err
	}

	b := s.router.For(resourcedb.TypePattern(typ))
	prev, err := b.Get(ctx, *scope, id)
	if err != nil {
		return nil, err
	}

	if err := s.registry.ValidatePayload(ctx, typ, payload); err != nil {
		return nil, err
	}

	// updated_at must strictly advance even under a coarse clock
	updatedAt := s.clock.Now().UTC()
	if !updatedAt.After(prev.UpdatedAt) {
		updatedAt = prev.UpdatedAt.Add(time.Nanosecond)
	}

	updated, err := b.Update(ctx, *scope, id, payload, updatedAt)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, cfg.NotifyOnUpdate, resourcedb.EventUpdated, typ, id)
	s.auditEmit(ctx, cfg.AuditOnUpdate, resourcedb.EventUpdated, typ, id, prev.Payload, updated.Payload)
	return updated, nil
}

// DeleteResource removes a resource. With a retention policy of zero days the
// row is removed immediately; otherwise it is soft-deleted and ages out via
// the purge task. Soft-deleted resources are permanently unreadable through
// this service.
func (s *Service) DeleteResource(ctx context.Context, typ, id string) error {
	scope, cfg, err := s.scopeForType(ctx, resourcedb.DeleteAction, typ)
	if err != nil {
		return err
	}

	b := s.router.For(resourcedb.TypePattern(typ))
	prev, err := b.Get(ctx, *scope, id)
	if err != nil {
		return err
	}

	if cfg.DeletedResourceRetentionDays != nil && *cfg.DeletedResourceRetentionDays == 0 {
		err = b.HardDelete(ctx, *scope, id)
	} else {
		err = b.Delete(ctx, *scope, id, s.clock.Now().UTC())
	}
	if err != nil {
		return err
	}

	s.emit(ctx, cfg.NotifyOnDelete, resourcedb.EventDeleted, typ, id)
	s.auditEmit(ctx, cfg.AuditOnDelete, resourcedb.EventDeleted, typ, id, prev.Payload, nil)
	return nil
}

// SearchResources dispatches a full-text search to the routed backend,
// failing when the backend does not declare the capability.
func (s *Service) SearchResources(ctx context.Context, typ, query string, opts resourcedb.FindOptions) (*resourcedb.ResourceList, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	scope, _, err := s.scopeForType(ctx, resourcedb.ReadAction, typ)
	if err != nil {
		return nil, err
	}

	b := s.router.For(resourcedb.TypePattern(typ))
	searcher, ok := b.(backend.Searcher)
	if !ok || !b.Capabilities().SupportsSearch {
		return nil, &errors.Error{
			Code: errors.ENotImplemented,
			Msg:  "resolved backend does not support search",
		}
	}
	return searcher.Search(ctx, *scope, query, opts)
}

// scopeForType computes the scope for single-resource operations on a
// concrete type. A caller with no grant covering the type gets not-found, the
// same outcome an absent row produces: in-query scoping never explains
// itself.
func (s *Service) scopeForType(ctx context.Context, action resourcedb.Action, typ string) (*resourcedb.Scope, *resourcedb.ResourceTypeConfig, error) {
	if typ == "" || strings.Contains(typ, resourcedb.WildcardMarker) {
		return nil, nil, &errors.Error{
			Code: errors.EInvalid,
			Msg:  "a concrete resource type is required",
		}
	}

	auth, err := icontext.GetAuthorizer(ctx)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := s.types.Config(ctx, typ)
	if err != nil {
		return nil, nil, err
	}

	ps, err := auth.PermissionSet()
	if err != nil {
		return nil, nil, err
	}
	if !ps.Allows(action, typ) {
		return nil, nil, backend.ErrNotFound
	}

	scope := &resourcedb.Scope{
		TenantID: auth.Tenant(),
		Types:    []resourcedb.TypePattern{resourcedb.TypePattern(typ)},
	}
	if cfg.PerOwnerResource {
		scope.Owner = &resourcedb.OwnerScope{SubjectID: auth.Subject(), Exclusive: true}
	}
	return scope, cfg, nil
}

func (s *Service) emit(ctx context.Context, enabled bool, kind resourcedb.EventKind, typ, id string) {
	if !enabled || s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, kind, typ, id); err != nil {
		s.log.Warn("event emission failed",
			zap.String("kind", string(kind)),
			zap.String("resource_type", typ),
			zap.String("resource_id", id),
			zap.Error(err))
	}
}

func (s *Service) auditEmit(ctx context.Context, enabled bool, kind resourcedb.EventKind, typ, id string, previous, current json.RawMessage) {
	if !enabled || s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, kind, typ, id, previous, current); err != nil {
		s.log.Warn("audit emission failed",
			zap.String("kind", string(kind)),
			zap.String("resource_type", typ),
			zap.String("resource_id", id),
			zap.Error(err))
	}
}
