package guard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	entitlements "github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/service"
	users "github.com/zenGate-Global/nuzum-saas/domains/users/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// Authenticate requires credentials that resolve to an active user.
func Authenticate(resolver IdentityResolver) Guard {
	return func(ctx context.Context, req Request, rc RequestContext) (RequestContext, error) {
		if req.Credentials == nil {
			return rc, reject(KindUnauthenticated, "authentication required")
		}
		user, err := resolver.Resolve(ctx, req.Credentials)
		if errors.Is(err, users.ErrUnauthenticated) {
			return rc, reject(KindUnauthenticated, "unknown or inactive user")
		}
		if err != nil {
			return rc, fmt.Errorf("resolve identity: %w", err)
		}
		rc.User = user
		rc.Scope = user.Scope()
		return rc, nil
	}
}

// BindTenant fixes the company the request operates on. System owners pick it through the
// company parameter; everybody else is pinned to their own company and the parameter is ignored.
func BindTenant() Guard {
	return func(ctx context.Context, req Request, rc RequestContext) (RequestContext, error) {
		if !rc.Scope.IsSystemOwner() {
			if !rc.Scope.Bound() {
				return rc, reject(KindMissingTenant, "user is not attached to a company")
			}
			return rc, nil
		}

		raw := strings.TrimSpace(req.CompanyParam)
		if raw == "" {
			if req.Operation.RequireTenant {
				return rc, reject(KindMissingTenant, "a company must be selected for this operation")
			}
			return rc, nil
		}
		companyID, err := uuid.Parse(raw)
		if err != nil {
			return rc, reject(KindMissingTenant, "company id is not a valid UUID")
		}
		rc.Scope = rc.Scope.ForCompany(companyID)
		return rc, nil
	}
}

// AuthorizeRole accepts callers whose user type or role is listed by the operation.
func AuthorizeRole() Guard {
	return func(ctx context.Context, req Request, rc RequestContext) (RequestContext, error) {
		allowed := req.Operation.Roles
		if len(allowed) == 0 {
			return rc, nil
		}
		if slices.Contains(allowed, string(rc.Scope.UserType)) || (rc.Scope.Role != "" && slices.Contains(allowed, rc.Scope.Role)) {
			return rc, nil
		}
		return rc, reject(KindForbidden, fmt.Sprintf("%s may not perform %s", rc.Scope.UserType, req.Operation.Name))
	}
}

// ModulePermission checks the per-module grant of employees. Admins and system owners bypass it.
func ModulePermission(checker PermissionChecker) Guard {
	return func(ctx context.Context, req Request, rc RequestContext) (RequestContext, error) {
		op := req.Operation
		if op.Module == "" || rc.Scope.UserType != tenant.Employee {
			return rc, nil
		}
		ok, err := checker.Allowed(ctx, rc.User.ID, op.Module, op.Action)
		if err != nil {
			return rc, fmt.Errorf("check %s permission: %w", op.Module, err)
		}
		if !ok {
			return rc, reject(KindForbidden, fmt.Sprintf("missing %s permission on %s", op.Action, op.Module))
		}
		return rc, nil
	}
}

// SubscriptionGate requires a usable subscription for the bound company.
func SubscriptionGate(reader SubscriptionReader) Guard {
	return func(ctx context.Context, req Request, rc RequestContext) (RequestContext, error) {
		if req.Operation.SubscriptionExempt || rc.Scope.IsSystemOwner() || !rc.Scope.Bound() {
			return rc, nil
		}
		report, err := reader.Status(ctx, rc.Scope.CompanyID)
		if err != nil {
			return rc, fmt.Errorf("subscription status: %w", err)
		}
		if !report.Status.Usable() {
			return rc, &Rejection{
				Kind:   KindSubscriptionExpired,
				Reason: report.Message,
				Action: string(report.ActionRequired),
			}
		}
		return rc, nil
	}
}

// FeatureGate requires the bound company's plan to include the operation's feature.
func FeatureGate(reader SubscriptionReader) Guard {
	return func(ctx context.Context, req Request, rc RequestContext) (RequestContext, error) {
		feature := req.Operation.Feature
		if feature == "" || (rc.Scope.IsSystemOwner() && !rc.Scope.Bound()) {
			return rc, nil
		}
		ok, err := reader.CanAccessFeature(ctx, rc.Scope.CompanyID, feature)
		if err != nil {
			return rc, fmt.Errorf("feature %s: %w", feature, err)
		}
		if !ok {
			return rc, &Rejection{
				Kind:   KindForbidden,
				Reason: fmt.Sprintf("feature %s is not included in the current plan", feature),
				Action: "upgrade",
			}
		}
		return rc, nil
	}
}

// QuotaGate reserves one slot of the operation's resource kind.
func QuotaGate(reserver QuotaReserver) Guard {
	return func(ctx context.Context, req Request, rc RequestContext) (RequestContext, error) {
		kind := req.Operation.Quota
		if kind == "" {
			return rc, nil
		}
		if !rc.Scope.Bound() {
			// Unbound system owners only create platform level records, e.g. other system owners.
			if rc.Scope.IsSystemOwner() && !req.Operation.RequireTenant {
				return rc, nil
			}
			return rc, reject(KindMissingTenant, "a company must be selected to create "+kind)
		}
		res, err := reserver.CheckAndReserve(ctx, rc.Scope.CompanyID, kind)
		if err != nil {
			return rc, fromDenial(err)
		}
		rc.Reservation = res
		return rc, nil
	}
}

func fromDenial(err error) error {
	var denied *entitlements.DeniedError
	if !errors.As(err, &denied) {
		return fmt.Errorf("reserve quota: %w", err)
	}
	rej := &Rejection{Reason: denied.Reason, Action: string(denied.Action)}
	switch {
	case denied.SubscriptionDenied():
		rej.Kind = KindSubscriptionExpired
	case denied.Code == entitlements.CodeConflict, denied.Code == entitlements.CodeTimeout:
		rej.Kind = KindTransactionConflict
	default:
		rej.Kind = KindQuotaExceeded
	}
	return rej
}
