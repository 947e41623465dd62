package sqlbackend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/resourcedb/resourcedb"
	ierrors "github.com/resourcedb/resourcedb/kit/platform/errors"
	"github.com/resourcedb/resourcedb/sqlite"
)

var resourceColumns = []string{"id", "type", "tenant_id", "owner_id", "created_at", "updated_at", "deleted_at", "payload"}

var returningColumns = strings.Join(resourceColumns, ", ")

// scopeConds translates a scope into predicates. The scope is the only
// security input a query has; nothing is filtered after the fetch.
func scopeConds(scope resourcedb.Scope) []sq.Sqlizer {
	conds := []sq.Sqlizer{
		sq.Eq{"tenant_id": scope.TenantID},
		typeConds(scope.Types),
	}
	if scope.Owner != nil {
		switch {
		case scope.Owner.Exclusive:
			conds = append(conds, sq.Eq{"owner_id": scope.Owner.SubjectID})
		case scope.Owner.SubjectID == "":
			conds = append(conds, sq.Eq{"owner_id": nil})
		default:
			conds = append(conds, sq.Or{
				sq.Eq{"owner_id": nil},
				sq.Eq{"owner_id": scope.Owner.SubjectID},
			})
		}
	}
	return conds
}

func typeConds(patterns []resourcedb.TypePattern) sq.Sqlizer {
	if len(patterns) == 0 {
		// an empty permitted set matches nothing, never everything
		return sq.Expr("1 = 0")
	}
	or := sq.Or{}
	for _, p := range patterns {
		if p.IsWildcard() {
			or = append(or, sq.Expr("type LIKE ? ESCAPE '\\'", escapeLike(p.Prefix())+"%"))
		} else {
			or = append(or, sq.Eq{"type": string(p)})
		}
	}
	if len(or) == 1 {
		return or[0]
	}
	return or
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func applyScope(q sq.SelectBuilder, scope resourcedb.Scope) sq.SelectBuilder {
	for _, c := range scopeConds(scope) {
		q = q.Where(c)
	}
	return q
}

func applyScopeUpdate(q sq.UpdateBuilder, scope resourcedb.Scope) sq.UpdateBuilder {
	for _, c := range scopeConds(scope) {
		q = q.Where(c)
	}
	return q
}

// filterConds translates the caller's schema-field filter. The type predicate
// is deliberately absent here: the effective type set already lives in the
// scope, never the caller's raw pattern alone.
func filterConds(filter resourcedb.ResourceFilter) []sq.Sqlizer {
	var conds []sq.Sqlizer
	if filter.OwnerID != nil {
		conds = append(conds, sq.Eq{"owner_id": *filter.OwnerID})
	}
	if len(filter.IDs) > 0 {
		conds = append(conds, sq.Eq{"id": filter.IDs})
	}
	for _, c := range filter.CreatedAt {
		conds = append(conds, timeCond("created_at", c))
	}
	for _, c := range filter.UpdatedAt {
		conds = append(conds, timeCond("updated_at", c))
	}
	return conds
}

func timeCond(column string, c resourcedb.TimeComparison) sq.Sqlizer {
	v := formatTime(c.Value)
	switch c.Op {
	case resourcedb.CompareGt:
		return sq.Gt{column: v}
	case resourcedb.CompareGte:
		return sq.GtOrEq{column: v}
	case resourcedb.CompareLt:
		return sq.Lt{column: v}
	case resourcedb.CompareLte:
		return sq.LtOrEq{column: v}
	default:
		return sq.Eq{column: v}
	}
}

// listCursor is the decoded pagination token: the sort-field value and id of
// the boundary row, and whether the page walks backward from it.
type listCursor struct {
	Sort     string `json:"s"`
	ID       string `json:"i"`
	Backward bool   `json:"b"`
}

func encodeCursor(c listCursor) string {
	b, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (listCursor, error) {
	var c listCursor
	b, err := base64.URLEncoding.DecodeString(s)
	if err == nil {
		err = json.Unmarshal(b, &c)
	}
	if err != nil {
		return c, &ierrors.Error{
			Code: ierrors.EInvalidQuery,
			Msg:  "malformed pagination cursor",
			Err:  err,
		}
	}
	return c, nil
}

// List returns one page of scoped, active resources. Pagination is keyset
// based on (sort field, id) so pages stay stable under concurrent writes.
func (b *SqlBackend) List(ctx context.Context, scope resourcedb.Scope, filter resourcedb.ResourceFilter, opts resourcedb.FindOptions) (*resourcedb.ResourceList, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	q := sq.Select(resourceColumns...).
		From("resources").
		Where(sq.Eq{"deleted_at": nil})
	q = applyScope(q, scope)
	for _, c := range filterConds(filter) {
		q = q.Where(c)
	}

	sortCol := string(opts.SortBy)

	var cursor *listCursor
	if opts.Cursor != "" {
		c, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		cursor = &c
	}

	// the scan runs in presentation order, or reversed when the cursor walks
	// backward; a backward page is re-reversed before returning
	scanDesc := opts.Descending
	if cursor != nil && cursor.Backward {
		scanDesc = !scanDesc
	}

	if cursor != nil {
		boundary := "(" + sortCol + ", id) > (?, ?)"
		if scanDesc {
			boundary = "(" + sortCol + ", id) < (?, ?)"
		}
		q = q.Where(sq.Expr(boundary, cursor.Sort, cursor.ID))
	}

	dir := " ASC"
	if scanDesc {
		dir = " DESC"
	}
	q = q.OrderBy(sortCol+dir, "id"+dir)

	// fetch one extra row to learn whether another page exists
	q = q.Limit(uint64(opts.Limit) + 1)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []storedResource
	if err := b.store.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, sqlite.ErrStore(err)
	}

	more := len(rows) > opts.Limit
	if more {
		rows = rows[:opts.Limit]
	}
	if cursor != nil && cursor.Backward {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	items := make([]*resourcedb.Resource, 0, len(rows))
	for _, row := range rows {
		r, err := row.toResource()
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}

	list := &resourcedb.ResourceList{
		Items:    items,
		PageInfo: resourcedb.PageInfo{Limit: opts.Limit},
	}
	if len(rows) == 0 {
		return list, nil
	}

	first, last := rows[0], rows[len(rows)-1]
	sortOf := func(r storedResource) string {
		if opts.SortBy == resourcedb.SortByUpdatedAt {
			return r.UpdatedAt
		}
		return r.CreatedAt
	}

	switch {
	case cursor == nil:
		if more {
			next := encodeCursor(listCursor{Sort: sortOf(last), ID: last.ID})
			list.PageInfo.NextCursor = &next
		}
	case cursor.Backward:
		next := encodeCursor(listCursor{Sort: sortOf(last), ID: last.ID})
		list.PageInfo.NextCursor = &next
		if more {
			prev := encodeCursor(listCursor{Sort: sortOf(first), ID: first.ID, Backward: true})
			list.PageInfo.PrevCursor = &prev
		}
	default:
		prev := encodeCursor(listCursor{Sort: sortOf(first), ID: first.ID, Backward: true})
		list.PageInfo.PrevCursor = &prev
		if more {
			next := encodeCursor(listCursor{Sort: sortOf(last), ID: last.ID})
			list.PageInfo.NextCursor = &next
		}
	}

	return list, nil
}
