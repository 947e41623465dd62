// Package sqlbackend is the default relational storage backend. All resource
// types share a single table; schema fields are dedicated columns and the
// payload is stored as uninterpreted text, keeping the layout portable across
// relational engines.
package sqlbackend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/benbjohnson/clock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/backend"
	ierrors "github.com/resourcedb/resourcedb/kit/platform/errors"
	"github.com/resourcedb/resourcedb/sqlite"
)

// DefaultIdempotencyWindow is how long an idempotency record absorbs replays
// of its creation attempt.
const DefaultIdempotencyWindow = 24 * time.Hour

var _ backend.Backend = (*SqlBackend)(nil)
var _ backend.IdempotencySweeper = (*SqlBackend)(nil)

// SqlBackend persists resources in the shared sqlite store.
type SqlBackend struct {
	store *sqlite.SqlStore
	log   *zap.Logger

	clock             clock.Clock
	idempotencyWindow time.Duration
}

// Option configures a SqlBackend.
type Option func(*SqlBackend)

// WithClock substitutes the wall clock, letting tests control idempotency
// expiry.
func WithClock(c clock.Clock) Option {
	return func(b *SqlBackend) {
		b.clock = c
	}
}

// WithIdempotencyWindow overrides DefaultIdempotencyWindow.
func WithIdempotencyWindow(d time.Duration) Option {
	return func(b *SqlBackend) {
		b.idempotencyWindow = d
	}
}

// NewBackend returns a backend writing to the given store.
func NewBackend(logger *zap.Logger, store *sqlite.SqlStore, opts ...Option) *SqlBackend {
	b := &SqlBackend{
		store:             store,
		log:               logger,
		clock:             clock.New(),
		idempotencyWindow: DefaultIdempotencyWindow,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Capabilities declares filtered listings supported, full-text search not.
func (b *SqlBackend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		SupportsQuery:  true,
		SupportsSearch: false,
	}
}

// storedResource is the row shape of the resources table. Timestamps are
// stored as strings; the sqlite driver cannot scan time values out of
// RETURNING clauses, and explicit formatting keeps comparisons in the
// database consistent.
type storedResource struct {
	ID        string         `db:"id"`
	Type      string         `db:"type"`
	TenantID  string         `db:"tenant_id"`
	OwnerID   sql.NullString `db:"owner_id"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt string         `db:"updated_at"`
	DeletedAt sql.NullString `db:"deleted_at"`
	Payload   []byte         `db:"payload"`
}

func (s storedResource) toResource() (*resourcedb.Resource, error) {
	r := &resourcedb.Resource{
		ID:       s.ID,
		Type:     s.Type,
		TenantID: s.TenantID,
		Payload:  json.RawMessage(s.Payload),
	}
	if s.OwnerID.Valid {
		owner := s.OwnerID.String
		r.OwnerID = &owner
	}

	var err error
	if r.CreatedAt, err = parseTime(s.CreatedAt); err != nil {
		return nil, corruptRowError(s.TenantID, s.ID, err)
	}
	if r.UpdatedAt, err = parseTime(s.UpdatedAt); err != nil {
		return nil, corruptRowError(s.TenantID, s.ID, err)
	}
	if s.DeletedAt.Valid {
		d, err := parseTime(s.DeletedAt.String)
		if err != nil {
			return nil, corruptRowError(s.TenantID, s.ID, err)
		}
		r.DeletedAt = &d
	}
	return r, nil
}

func corruptRowError(tenant, id string, err error) error {
	return &ierrors.Error{
		Code: ierrors.EInternal,
		Msg:  fmt.Sprintf("corrupt resource row %s/%s", tenant, id),
		Err:  err,
	}
}

// storedTimeFormat pads the fraction to nine digits so that the string order
// of stored timestamps matches their chronological order. Cutoff and keyset
// comparisons in SQL depend on that.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Create inserts the resource and, when an idempotency key is supplied, its
// idempotency record in one transaction. The primary key on
// (tenant_id, idempotency_key) is what makes the check-and-insert atomic: a
// concurrent second create either reads the committed record or loses the
// insert race, and in both cases reports Duplicate with the winner's id.
func (b *SqlBackend) Create(ctx context.Context, scope resourcedb.Scope, r *resourcedb.Resource, idempotencyKey string) (*backend.CreateResult, error) {
	b.store.Mu.Lock()
	defer b.store.Mu.Unlock()

	now := b.clock.Now().UTC()

	tx, err := b.store.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, sqlite.ErrStore(err)
	}

	if idempotencyKey != "" {
		existing, err := b.claimIdempotencyKey(ctx, tx, r, idempotencyKey, now)
		if err != nil {
			tx.Rollback()
			if sqlite.IsUniqueConstraintError(err, "idempotency_keys") {
				// lost the insert race to a concurrent create; the
				// committed record holds the winning resource id
				return b.lookupIdempotencyKey(ctx, r.TenantID, idempotencyKey)
			}
			return nil, sqlite.ErrStore(err)
		}
		if existing != "" {
			tx.Rollback()
			return &backend.CreateResult{ExistingID: existing}, nil
		}
	}

	q := sq.Insert("resources").
		Columns("id", "type", "tenant_id", "owner_id", "created_at", "updated_at", "payload").
		Values(r.ID, r.Type, r.TenantID, ownerValue(r.OwnerID), formatTime(r.CreatedAt), formatTime(r.UpdatedAt), []byte(r.Payload))

	query, args, err := q.ToSql()
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()
		if sqlite.IsUniqueConstraintError(err, "resources") {
			return nil, &ierrors.Error{
				Code: ierrors.EConflict,
				Msg:  fmt.Sprintf("resource id %q already exists", r.ID),
			}
		}
		return nil, sqlite.ErrStore(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, sqlite.ErrStore(err)
	}

	return &backend.CreateResult{Resource: r}, nil
}

// claimIdempotencyKey returns the resource id of an unexpired prior record,
// or inserts a fresh record for r and returns "".
func (b *SqlBackend) claimIdempotencyKey(ctx context.Context, tx sqlx.ExtContext, r *resourcedb.Resource, key string, now time.Time) (string, error) {
	query, args, err := sq.Select("resource_id", "expires_at").
		From("idempotency_keys").
		Where(sq.Eq{"tenant_id": r.TenantID, "idempotency_key": key}).
		ToSql()
	if err != nil {
		return "", err
	}

	var rec struct {
		ResourceID string `db:"resource_id"`
		ExpiresAt  string `db:"expires_at"`
	}
	err = sqlx.GetContext(ctx, tx, &rec, query, args...)
	switch {
	case err == nil:
		if rec.ExpiresAt > formatTime(now) {
			return rec.ResourceID, nil
		}
		// expired record: reclaim the key for this create
		del, delArgs, err := sq.Delete("idempotency_keys").
			Where(sq.Eq{"tenant_id": r.TenantID, "idempotency_key": key}).
			ToSql()
		if err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, del, delArgs...); err != nil {
			return "", err
		}
	case !errors.Is(err, sql.ErrNoRows):
		return "", err
	}

	ins, insArgs, err := sq.Insert("idempotency_keys").
		Columns("tenant_id", "idempotency_key", "resource_id", "expires_at").
		Values(r.TenantID, key, r.ID, formatTime(now.Add(b.idempotencyWindow))).
		ToSql()
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, ins, insArgs...); err != nil {
		return "", err
	}
	return "", nil
}

func (b *SqlBackend) lookupIdempotencyKey(ctx context.Context, tenantID, key string) (*backend.CreateResult, error) {
	query, args, err := sq.Select("resource_id").
		From("idempotency_keys").
		Where(sq.Eq{"tenant_id": tenantID, "idempotency_key": key}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var resourceID string
	if err := b.store.DB.GetContext(ctx, &resourceID, query, args...); err != nil {
		return nil, sqlite.ErrStore(err)
	}
	return &backend.CreateResult{ExistingID: resourceID}, nil
}

// Get returns the scoped resource, excluding soft-deleted rows.
func (b *SqlBackend) Get(ctx context.Context, scope resourcedb.Scope, id string) (*resourcedb.Resource, error) {
	q := sq.Select(resourceColumns...).
		From("resources").
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"deleted_at": nil})
	q = applyScope(q, scope)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	var row storedResource
	if err := b.store.DB.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrNotFound
		}
		return nil, sqlite.ErrStore(err)
	}

	return row.toResource()
}

// Update replaces the payload and advances updated_at on the scoped, active
// target row. Schema fields are immutable.
func (b *SqlBackend) Update(ctx context.Context, scope resourcedb.Scope, id string, payload json.RawMessage, updatedAt time.Time) (*resourcedb.Resource, error) {
	b.store.Mu.Lock()
	defer b.store.Mu.Unlock()

	q := sq.Update("resources").
		SetMap(sq.Eq{
			"payload":    []byte(payload),
			"updated_at": formatTime(updatedAt),
		}).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"deleted_at": nil}).
		Suffix("RETURNING " + returningColumns)
	q = applyScopeUpdate(q, scope)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	var row storedResource
	if err := b.store.DB.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrNotFound
		}
		return nil, sqlite.ErrStore(err)
	}

	return row.toResource()
}

// Delete sets the soft-delete marker on the scoped, active target row.
func (b *SqlBackend) Delete(ctx context.Context, scope resourcedb.Scope, id string, deletedAt time.Time) error {
	b.store.Mu.Lock()
	defer b.store.Mu.Unlock()

	q := sq.Update("resources").
		SetMap(sq.Eq{"deleted_at": formatTime(deletedAt)}).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"deleted_at": nil}).
		Suffix("RETURNING id")
	q = applyScopeUpdate(q, scope)

	query, args, err := q.ToSql()
	if err != nil {
		return err
	}

	var deleted string
	if err := b.store.DB.GetContext(ctx, &deleted, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backend.ErrNotFound
		}
		return sqlite.ErrStore(err)
	}
	return nil
}

// HardDelete permanently removes the scoped target row.
func (b *SqlBackend) HardDelete(ctx context.Context, scope resourcedb.Scope, id string) error {
	b.store.Mu.Lock()
	defer b.store.Mu.Unlock()

	conds := append([]sq.Sqlizer{sq.Eq{"id": id}}, scopeConds(scope)...)
	q := sq.Delete("resources").Suffix("RETURNING id")
	for _, c := range conds {
		q = q.Where(c)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return err
	}

	var deleted string
	if err := b.store.DB.GetContext(ctx, &deleted, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backend.ErrNotFound
		}
		return sqlite.ErrStore(err)
	}
	return nil
}

// PurgeDeletedBefore removes up to batchSize rows of typ soft-deleted before
// cutoff. The batch cap keeps each call to a bounded unit of work so the
// purge loop can yield between batches under high churn.
func (b *SqlBackend) PurgeDeletedBefore(ctx context.Context, typ string, cutoff time.Time, batchSize int) (int, error) {
	b.store.Mu.Lock()
	defer b.store.Mu.Unlock()

	res, err := b.store.DB.ExecContext(ctx,
		`DELETE FROM resources WHERE rowid IN (
			SELECT rowid FROM resources
			WHERE type = ? AND deleted_at IS NOT NULL AND deleted_at < ?
			LIMIT ?)`,
		typ, formatTime(cutoff), batchSize)
	if err != nil {
		return 0, sqlite.ErrStore(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, sqlite.ErrStore(err)
	}
	return int(n), nil
}

// SweepIdempotency removes up to batchSize idempotency records that expired
// before now.
func (b *SqlBackend) SweepIdempotency(ctx context.Context, now time.Time, batchSize int) (int, error) {
	b.store.Mu.Lock()
	defer b.store.Mu.Unlock()

	res, err := b.store.DB.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE rowid IN (
			SELECT rowid FROM idempotency_keys
			WHERE expires_at <= ?
			LIMIT ?)`,
		formatTime(now), batchSize)
	if err != nil {
		return 0, sqlite.ErrStore(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, sqlite.ErrStore(err)
	}
	return int(n), nil
}

func ownerValue(owner *string) interface{} {
	if owner == nil {
		return nil
	}
	return *owner
}
