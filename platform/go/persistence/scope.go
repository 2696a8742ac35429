package persistence

import (
	"errors"
	"fmt"

	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// ErrScopeRequired is returned when a tenant-owned table is queried without a resolved scope.
var ErrScopeRequired = errors.New("tenant scope is required")

// scopePredicate returns the SQL predicate restricting column to the scope's company and the
// extended argument list. Only an unbound system owner scope yields an unrestricted predicate.
func scopePredicate(scope tenant.Scope, column string, args []any) (string, []any, error) {
	if !scope.UserType.Valid() {
		return "", nil, ErrScopeRequired
	}

	companyID, filtered := scope.CompanyFilter()
	if !filtered {
		return "TRUE", args, nil
	}
	if !scope.Bound() {
		return "", nil, ErrScopeRequired
	}

	args = append(args, companyID)
	return fmt.Sprintf("%s = $%d", column, len(args)), args, nil
}

// requireBound returns the company a write must be stamped with.
func requireBound(scope tenant.Scope) (tenant.Scope, error) {
	if !scope.UserType.Valid() || !scope.Bound() {
		return tenant.Scope{}, ErrScopeRequired
	}
	return scope, nil
}
