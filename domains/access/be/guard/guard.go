package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	entitlements "github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/service"
	permissions "github.com/zenGate-Global/nuzum-saas/domains/permissions/be/service"
	subscriptions "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
	users "github.com/zenGate-Global/nuzum-saas/domains/users/be/service"
	platformauth "github.com/zenGate-Global/nuzum-saas/platform/go/auth"
	"github.com/zenGate-Global/nuzum-saas/platform/go/metrics"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// Kind is the stable code of a rejection.
type Kind string

const (
	KindUnauthenticated     Kind = problem.CodeUnauthenticated
	KindMissingTenant       Kind = problem.CodeMissingTenant
	KindForbidden           Kind = problem.CodeForbidden
	KindSubscriptionExpired Kind = problem.CodeSubscriptionExpired
	KindQuotaExceeded       Kind = problem.CodeQuotaExceeded
	KindTransactionConflict Kind = problem.CodeTransactionConflict
)

// Rejection is returned by a guard that refuses the request.
type Rejection struct {
	Kind   Kind
	Reason string
	// Action hints what restores access: upgrade, renew, contact_support or subscribe.
	Action string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}

func reject(kind Kind, reason string) *Rejection {
	return &Rejection{Kind: kind, Reason: reason}
}

// AsRejection unwraps err into a Rejection.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Operation declares what a route needs from the chain. Zero values disable the matching gate.
type Operation struct {
	Name string
	// Roles lists the user types or roles allowed to run the operation; empty allows every caller.
	Roles []string
	// RequireTenant makes BindTenant reject system owners that did not name a company.
	RequireTenant bool
	Module        permissions.Module
	Action        permissions.Action
	// SubscriptionExempt skips the subscription gate, e.g. for the subscription status page.
	SubscriptionExempt bool
	Feature            string
	// Quota names the resource kind reserved before a create operation runs.
	Quota string
}

// Request is the transport independent input of the chain.
type Request struct {
	Operation   Operation
	Credentials *platformauth.UserCredentials
	// CompanyParam is the raw company id the client asked for. Only system owners may use it.
	CompanyParam string
}

// RequestContext accumulates what the guards learned about the caller.
type RequestContext struct {
	User        users.User
	Scope       tenant.Scope
	Reservation *entitlements.Reservation
}

// Guard inspects one aspect of the request. It returns the enriched context or an error;
// a *Rejection error is a refusal, any other error is a failure to decide.
type Guard func(ctx context.Context, req Request, rc RequestContext) (RequestContext, error)

// IdentityResolver maps verified credentials to an active user.
type IdentityResolver interface {
	Resolve(ctx context.Context, creds *platformauth.UserCredentials) (users.User, error)
}

// PermissionChecker reports whether a user holds a module grant.
type PermissionChecker interface {
	Allowed(ctx context.Context, userID uuid.UUID, module permissions.Module, action permissions.Action) (bool, error)
}

// SubscriptionReader exposes the evaluated subscription of a company.
type SubscriptionReader interface {
	Status(ctx context.Context, companyID uuid.UUID) (subscriptions.StatusReport, error)
	CanAccessFeature(ctx context.Context, companyID uuid.UUID, feature string) (bool, error)
}

// QuotaReserver takes and returns quota slots.
type QuotaReserver interface {
	CheckAndReserve(ctx context.Context, companyID uuid.UUID, resource string) (*entitlements.Reservation, error)
	Release(ctx context.Context, res *entitlements.Reservation) error
	Settle(ctx context.Context, res *entitlements.Reservation) error
}

// Deps are the collaborators of the standard chain.
type Deps struct {
	Identity      IdentityResolver
	Permissions   PermissionChecker
	Subscriptions SubscriptionReader
	Quotas        QuotaReserver
}

// Chain runs guards in order and stops at the first error. It holds no per-request state.
type Chain struct {
	guards []Guard
	quotas QuotaReserver
	logger *zap.Logger
}

// NewChain builds a chain from explicit guards. quotas may be nil when no guard reserves.
func NewChain(logger *zap.Logger, quotas QuotaReserver, guards ...Guard) *Chain {
	if logger == nil {
		panic("logger is required")
	}
	return &Chain{guards: guards, quotas: quotas, logger: logger}
}

// Standard builds the ordered chain used by the API: authentication, tenant binding, role,
// module permission, subscription, feature and quota.
func Standard(deps Deps, logger *zap.Logger) *Chain {
	if deps.Identity == nil || deps.Permissions == nil || deps.Subscriptions == nil || deps.Quotas == nil {
		panic("guard: every dependency is required")
	}
	return NewChain(logger, deps.Quotas,
		Authenticate(deps.Identity),
		BindTenant(),
		AuthorizeRole(),
		ModulePermission(deps.Permissions),
		SubscriptionGate(deps.Subscriptions),
		FeatureGate(deps.Subscriptions),
		QuotaGate(deps.Quotas),
	)
}

// Run evaluates every guard. On failure any reservation taken by an earlier guard is returned.
func (c *Chain) Run(ctx context.Context, req Request) (RequestContext, error) {
	var rc RequestContext
	for _, g := range c.guards {
		next, err := g(ctx, req, rc)
		if err != nil {
			c.releaseOnFailure(ctx, rc.Reservation)
			if rej, ok := AsRejection(err); ok {
				metrics.ObserveGuardRejection(req.Operation.Name, string(rej.Kind))
			}
			return RequestContext{}, err
		}
		rc = next
	}
	return rc, nil
}

// Release returns the reservation held by rc, if any.
func (c *Chain) Release(ctx context.Context, rc RequestContext) {
	c.releaseOnFailure(ctx, rc.Reservation)
}

// Settle keeps the reservation held by rc after the handler created the resource.
func (c *Chain) Settle(ctx context.Context, rc RequestContext) {
	res := rc.Reservation
	if res == nil || c.quotas == nil {
		return
	}
	if err := c.quotas.Settle(ctx, res); err != nil {
		c.logger.Warn("settle quota reservation",
			zap.String("company_id", res.CompanyID.String()),
			zap.String("resource", res.Resource),
			zap.Error(err),
		)
	}
}

func (c *Chain) releaseOnFailure(ctx context.Context, res *entitlements.Reservation) {
	if res == nil || c.quotas == nil {
		return
	}
	if err := c.quotas.Release(ctx, res); err != nil {
		c.logger.Warn("release quota reservation",
			zap.String("company_id", res.CompanyID.String()),
			zap.String("resource", res.Resource),
			zap.Error(err),
		)
	}
}
