package resourcedb

// Authorizer is the authenticated caller context every operation runs under.
// The tenant is mandatory and never caller-chosen; the subject may be empty
// for callers without a per-user identity (service credentials).
type Authorizer interface {
	// Tenant returns the caller's tenant id.
	Tenant() string
	// Subject returns the caller's subject identity, or "" when none exists.
	Subject() string
	// PermissionSet returns the caller's grants.
	PermissionSet() (PermissionSet, error)
}

// Authorization is the concrete authorizer handed to the service by whatever
// authenticated the request.
type Authorization struct {
	TenantID    string        `json:"tenantID"`
	SubjectID   string        `json:"subjectID,omitempty"`
	Permissions PermissionSet `json:"permissions"`
}

var _ Authorizer = (*Authorization)(nil)

func (a *Authorization) Tenant() string { return a.TenantID }

func (a *Authorization) Subject() string { return a.SubjectID }

func (a *Authorization) PermissionSet() (PermissionSet, error) {
	return a.Permissions, nil
}

// OwnerScope restricts rows by owner. With Exclusive set only rows owned by
// the subject are visible; otherwise rows without an owner are visible too,
// which is how mixed-type listings avoid leaking other subjects' resources.
type OwnerScope struct {
	SubjectID string
	Exclusive bool
}

// Scope is the set of predicates a backend embeds into every query. It is
// computed by the orchestration service from the authorizer and the resolved
// type configuration; backends never interpret authorization themselves, they
// only translate the scope into predicates. A mismatch on any dimension is an
// empty result, never an error.
type Scope struct {
	TenantID string
	Types    []TypePattern
	Owner    *OwnerScope
}
