package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	entitlements "github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/service"
	permissions "github.com/zenGate-Global/nuzum-saas/domains/permissions/be/service"
	subscriptions "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
	users "github.com/zenGate-Global/nuzum-saas/domains/users/be/service"
	platformauth "github.com/zenGate-Global/nuzum-saas/platform/go/auth"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type mockIdentity struct {
	resolveFn func(ctx context.Context, creds *platformauth.UserCredentials) (users.User, error)
}

func (m *mockIdentity) Resolve(ctx context.Context, creds *platformauth.UserCredentials) (users.User, error) {
	if m.resolveFn == nil {
		panic("resolveFn not configured")
	}
	return m.resolveFn(ctx, creds)
}

type mockPermissions struct {
	allowedFn func(ctx context.Context, userID uuid.UUID, module permissions.Module, action permissions.Action) (bool, error)
}

func (m *mockPermissions) Allowed(ctx context.Context, userID uuid.UUID, module permissions.Module, action permissions.Action) (bool, error) {
	if m.allowedFn == nil {
		panic("allowedFn not configured")
	}
	return m.allowedFn(ctx, userID, module, action)
}

type mockSubscriptions struct {
	statusFn  func(ctx context.Context, companyID uuid.UUID) (subscriptions.StatusReport, error)
	featureFn func(ctx context.Context, companyID uuid.UUID, feature string) (bool, error)
}

func (m *mockSubscriptions) Status(ctx context.Context, companyID uuid.UUID) (subscriptions.StatusReport, error) {
	if m.statusFn == nil {
		panic("statusFn not configured")
	}
	return m.statusFn(ctx, companyID)
}

func (m *mockSubscriptions) CanAccessFeature(ctx context.Context, companyID uuid.UUID, feature string) (bool, error) {
	if m.featureFn == nil {
		panic("featureFn not configured")
	}
	return m.featureFn(ctx, companyID, feature)
}

type mockQuotas struct {
	reserveFn func(ctx context.Context, companyID uuid.UUID, resource string) (*entitlements.Reservation, error)
	releaseFn func(ctx context.Context, res *entitlements.Reservation) error
	settleFn  func(ctx context.Context, res *entitlements.Reservation) error
}

func (m *mockQuotas) CheckAndReserve(ctx context.Context, companyID uuid.UUID, resource string) (*entitlements.Reservation, error) {
	if m.reserveFn == nil {
		panic("reserveFn not configured")
	}
	return m.reserveFn(ctx, companyID, resource)
}

func (m *mockQuotas) Release(ctx context.Context, res *entitlements.Reservation) error {
	if m.releaseFn == nil {
		panic("releaseFn not configured")
	}
	return m.releaseFn(ctx, res)
}

func (m *mockQuotas) Settle(ctx context.Context, res *entitlements.Reservation) error {
	if m.settleFn == nil {
		panic("settleFn not configured")
	}
	return m.settleFn(ctx, res)
}

func companyUser(t tenant.UserType, companyID uuid.UUID) users.User {
	u := users.User{ID: uuid.New(), Role: "user", UserType: t, IsActive: true}
	if companyID != uuid.Nil {
		u.CompanyID = &companyID
	}
	return u
}

func requireRejection(t *testing.T, err error, kind Kind) *Rejection {
	t.Helper()
	rej, ok := AsRejection(err)
	require.True(t, ok, "expected rejection, got %v", err)
	require.Equal(t, kind, rej.Kind)
	return rej
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	id := &mockIdentity{resolveFn: func(context.Context, *platformauth.UserCredentials) (users.User, error) {
		return users.User{}, users.ErrUnauthenticated
	}}
	g := Authenticate(id)

	_, err := g(context.Background(), Request{}, RequestContext{})
	requireRejection(t, err, KindUnauthenticated)

	_, err = g(context.Background(), Request{Credentials: &platformauth.UserCredentials{Id: "ghost"}}, RequestContext{})
	requireRejection(t, err, KindUnauthenticated)

	id.resolveFn = func(context.Context, *platformauth.UserCredentials) (users.User, error) {
		return users.User{}, errors.New("db down")
	}
	_, err = g(context.Background(), Request{Credentials: &platformauth.UserCredentials{Id: "x"}}, RequestContext{})
	require.Error(t, err)
	_, isRejection := AsRejection(err)
	require.False(t, isRejection)

	company := uuid.New()
	admin := companyUser(tenant.CompanyAdmin, company)
	id.resolveFn = func(context.Context, *platformauth.UserCredentials) (users.User, error) { return admin, nil }
	rc, err := g(context.Background(), Request{Credentials: &platformauth.UserCredentials{Id: admin.ID.String()}}, RequestContext{})
	require.NoError(t, err)
	require.Equal(t, company, rc.Scope.CompanyID)
	require.Equal(t, admin.ID, rc.Scope.UserID)
}

func TestBindTenantPinsNonOwnersToTheirCompany(t *testing.T) {
	t.Parallel()

	own := uuid.New()
	rc := RequestContext{Scope: companyUser(tenant.CompanyAdmin, own).Scope()}

	out, err := BindTenant()(context.Background(), Request{CompanyParam: uuid.NewString()}, rc)
	require.NoError(t, err)
	require.Equal(t, own, out.Scope.CompanyID)

	orphan := RequestContext{Scope: companyUser(tenant.Employee, uuid.Nil).Scope()}
	_, err = BindTenant()(context.Background(), Request{}, orphan)
	requireRejection(t, err, KindMissingTenant)
}

func TestBindTenantSystemOwner(t *testing.T) {
	t.Parallel()

	owner := RequestContext{Scope: companyUser(tenant.SystemOwner, uuid.Nil).Scope()}
	target := uuid.New()

	out, err := BindTenant()(context.Background(), Request{CompanyParam: target.String()}, owner)
	require.NoError(t, err)
	require.Equal(t, target, out.Scope.CompanyID)

	out, err = BindTenant()(context.Background(), Request{}, owner)
	require.NoError(t, err)
	require.False(t, out.Scope.Bound())

	_, err = BindTenant()(context.Background(), Request{Operation: Operation{RequireTenant: true}}, owner)
	requireRejection(t, err, KindMissingTenant)

	_, err = BindTenant()(context.Background(), Request{CompanyParam: "acme"}, owner)
	requireRejection(t, err, KindMissingTenant)
}

func TestAuthorizeRole(t *testing.T) {
	t.Parallel()

	op := Operation{Name: "companies.create", Roles: []string{string(tenant.SystemOwner)}}
	admin := RequestContext{Scope: companyUser(tenant.CompanyAdmin, uuid.New()).Scope()}

	_, err := AuthorizeRole()(context.Background(), Request{Operation: op}, admin)
	requireRejection(t, err, KindForbidden)

	op.Roles = append(op.Roles, string(tenant.CompanyAdmin))
	_, err = AuthorizeRole()(context.Background(), Request{Operation: op}, admin)
	require.NoError(t, err)

	_, err = AuthorizeRole()(context.Background(), Request{Operation: Operation{}}, admin)
	require.NoError(t, err)
}

func TestModulePermissionOnlyChecksEmployees(t *testing.T) {
	t.Parallel()

	perms := &mockPermissions{}
	g := ModulePermission(perms)
	op := Operation{Module: permissions.ModuleVehicles, Action: permissions.ActionCreate}

	admin := RequestContext{Scope: companyUser(tenant.CompanyAdmin, uuid.New()).Scope()}
	_, err := g(context.Background(), Request{Operation: op}, admin)
	require.NoError(t, err)

	emp := companyUser(tenant.Employee, uuid.New())
	rc := RequestContext{User: emp, Scope: emp.Scope()}
	perms.allowedFn = func(_ context.Context, userID uuid.UUID, module permissions.Module, action permissions.Action) (bool, error) {
		require.Equal(t, emp.ID, userID)
		require.Equal(t, permissions.ModuleVehicles, module)
		require.Equal(t, permissions.ActionCreate, action)
		return false, nil
	}
	_, err = g(context.Background(), Request{Operation: op}, rc)
	requireRejection(t, err, KindForbidden)

	perms.allowedFn = func(context.Context, uuid.UUID, permissions.Module, permissions.Action) (bool, error) { return true, nil }
	_, err = g(context.Background(), Request{Operation: op}, rc)
	require.NoError(t, err)
}

func TestSubscriptionGate(t *testing.T) {
	t.Parallel()

	subs := &mockSubscriptions{statusFn: func(_ context.Context, companyID uuid.UUID) (subscriptions.StatusReport, error) {
		return subscriptions.StatusReport{
			CompanyID:      companyID,
			Status:         subscriptions.StatusTrialExpired,
			ActionRequired: subscriptions.ActionUpgrade,
			Message:        "Trial period has ended",
		}, nil
	}}
	g := SubscriptionGate(subs)
	admin := RequestContext{Scope: companyUser(tenant.CompanyAdmin, uuid.New()).Scope()}

	_, err := g(context.Background(), Request{Operation: Operation{Name: "employees.list"}}, admin)
	rej := requireRejection(t, err, KindSubscriptionExpired)
	require.Equal(t, "upgrade", rej.Action)

	_, err = g(context.Background(), Request{Operation: Operation{SubscriptionExempt: true}}, admin)
	require.NoError(t, err)

	owner := RequestContext{Scope: tenant.System().ForCompany(uuid.New())}
	_, err = g(context.Background(), Request{Operation: Operation{}}, owner)
	require.NoError(t, err)

	subs.statusFn = func(_ context.Context, companyID uuid.UUID) (subscriptions.StatusReport, error) {
		return subscriptions.StatusReport{Status: subscriptions.StatusExpiring}, nil
	}
	_, err = g(context.Background(), Request{Operation: Operation{}}, admin)
	require.NoError(t, err)
}

func TestFeatureGate(t *testing.T) {
	t.Parallel()

	subs := &mockSubscriptions{featureFn: func(_ context.Context, _ uuid.UUID, feature string) (bool, error) {
		return feature != "api_integration", nil
	}}
	admin := RequestContext{Scope: companyUser(tenant.CompanyAdmin, uuid.New()).Scope()}

	_, err := FeatureGate(subs)(context.Background(), Request{Operation: Operation{Feature: "api_integration"}}, admin)
	rej := requireRejection(t, err, KindForbidden)
	require.Equal(t, "upgrade", rej.Action)

	_, err = FeatureGate(subs)(context.Background(), Request{Operation: Operation{Feature: "advanced_reports"}}, admin)
	require.NoError(t, err)
}

func TestQuotaGateMapsDenials(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		denial *entitlements.DeniedError
		kind   Kind
	}{
		{"limit", &entitlements.DeniedError{Code: entitlements.CodeLimitReached, Reason: "employees limit reached (50)", Action: subscriptions.ActionUpgrade}, KindQuotaExceeded},
		{"trial", &entitlements.DeniedError{Code: entitlements.CodeTrialExpired, Reason: "Trial period has ended"}, KindSubscriptionExpired},
		{"conflict", &entitlements.DeniedError{Code: entitlements.CodeConflict, Reason: "retry"}, KindTransactionConflict},
		{"timeout", &entitlements.DeniedError{Code: entitlements.CodeTimeout, Reason: "timed out"}, KindTransactionConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			quotas := &mockQuotas{reserveFn: func(context.Context, uuid.UUID, string) (*entitlements.Reservation, error) {
				return nil, tc.denial
			}}
			rc := RequestContext{Scope: companyUser(tenant.CompanyAdmin, uuid.New()).Scope()}
			_, err := QuotaGate(quotas)(context.Background(), Request{Operation: Operation{Quota: "employees"}}, rc)
			rej := requireRejection(t, err, tc.kind)
			require.Equal(t, tc.denial.Reason, rej.Reason)
		})
	}
}

func TestQuotaGateUnboundScope(t *testing.T) {
	t.Parallel()

	owner := RequestContext{Scope: tenant.System()}
	out, err := QuotaGate(&mockQuotas{})(context.Background(), Request{Operation: Operation{Quota: "users"}}, owner)
	require.NoError(t, err)
	require.Nil(t, out.Reservation)

	_, err = QuotaGate(&mockQuotas{})(context.Background(), Request{Operation: Operation{Quota: "vehicles", RequireTenant: true}}, owner)
	requireRejection(t, err, KindMissingTenant)

	orphan := RequestContext{Scope: tenant.Scope{UserType: tenant.CompanyAdmin}}
	_, err = QuotaGate(&mockQuotas{})(context.Background(), Request{Operation: Operation{Quota: "vehicles"}}, orphan)
	requireRejection(t, err, KindMissingTenant)
}

func TestRunReleasesReservationWhenLaterGuardFails(t *testing.T) {
	t.Parallel()

	company := uuid.New()
	released := 0
	quotas := &mockQuotas{
		reserveFn: func(_ context.Context, companyID uuid.UUID, resource string) (*entitlements.Reservation, error) {
			return &entitlements.Reservation{CompanyID: companyID, Resource: resource}, nil
		},
		releaseFn: func(context.Context, *entitlements.Reservation) error {
			released++
			return nil
		},
	}
	bind := func(_ context.Context, _ Request, rc RequestContext) (RequestContext, error) {
		rc.Scope = tenant.Scope{UserType: tenant.CompanyAdmin, CompanyID: company}
		return rc, nil
	}
	deny := func(context.Context, Request, RequestContext) (RequestContext, error) {
		return RequestContext{}, reject(KindForbidden, "nope")
	}

	chain := NewChain(zaptest.NewLogger(t), quotas, bind, QuotaGate(quotas), deny)
	_, err := chain.Run(context.Background(), Request{Operation: Operation{Name: "test", Quota: "employees"}})
	requireRejection(t, err, KindForbidden)
	require.Equal(t, 1, released)
}
