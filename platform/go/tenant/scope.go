package tenant

import (
	"context"

	"github.com/google/uuid"
)

// UserType classifies a caller for tenant scoping.
type UserType string

const (
	SystemOwner  UserType = "system_owner"
	CompanyAdmin UserType = "company_admin"
	Employee     UserType = "employee"
)

// Valid reports whether t is a known user type.
func (t UserType) Valid() bool {
	switch t {
	case SystemOwner, CompanyAdmin, Employee:
		return true
	}
	return false
}

// Scope is the tenant binding of one operation. It is built once per request by the
// guard chain and passed down explicitly; a system owner scope with no CompanyID spans
// every company.
type Scope struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string
	UserType  UserType
}

// IsSystemOwner reports whether the scope is exempt from company filtering.
func (s Scope) IsSystemOwner() bool {
	return s.UserType == SystemOwner
}

// Bound reports whether the scope targets a single company.
func (s Scope) Bound() bool {
	return s.CompanyID != uuid.Nil
}

// CompanyFilter returns the company every query must be restricted to. The boolean is
// false only for an unbound system owner scope, which may read across companies.
func (s Scope) CompanyFilter() (uuid.UUID, bool) {
	if s.IsSystemOwner() && !s.Bound() {
		return uuid.Nil, false
	}
	return s.CompanyID, true
}

// System returns the scope used by background jobs and the admin CLI.
func System() Scope {
	return Scope{UserType: SystemOwner, Role: "system"}
}

// ForCompany narrows s to one company. Only system owner scopes may be re-targeted;
// other scopes keep their own company.
func (s Scope) ForCompany(companyID uuid.UUID) Scope {
	if !s.IsSystemOwner() {
		return s
	}
	s.CompanyID = companyID
	return s
}

type ctxKey string

const scopeKey ctxKey = "NUZUM_TENANT_SCOPE"

// WithScope returns a derived context carrying the tenant Scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// FromContext extracts the tenant Scope and a boolean indicating presence.
func FromContext(ctx context.Context) (Scope, bool) {
	v := ctx.Value(scopeKey)
	if v == nil {
		return Scope{}, false
	}

	scope, ok := v.(Scope)
	return scope, ok
}
