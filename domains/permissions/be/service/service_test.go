package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/nuzum-saas/domains/permissions/be/repo"
	"github.com/zenGate-Global/nuzum-saas/domains/permissions/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

func newService(t *testing.T, owners map[uuid.UUID]uuid.UUID) *service.Service {
	mem := repo.NewMemoryRepository(func(userID uuid.UUID) (uuid.UUID, bool) {
		c, ok := owners[userID]
		return c, ok
	})
	return service.New(mem, zaptest.NewLogger(t))
}

func TestAbsentGrantDeniesEverything(t *testing.T) {
	t.Parallel()

	svc := newService(t, map[uuid.UUID]uuid.UUID{})
	for _, action := range []service.Action{service.ActionView, service.ActionCreate, service.ActionEdit, service.ActionDelete} {
		ok, err := svc.Allowed(context.Background(), uuid.New(), service.ModuleEmployees, action)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestReplaceAndCheck(t *testing.T) {
	t.Parallel()

	user, company := uuid.New(), uuid.New()
	svc := newService(t, map[uuid.UUID]uuid.UUID{user: company})
	admin := tenant.Scope{UserID: uuid.New(), CompanyID: company, UserType: tenant.CompanyAdmin}
	ctx := context.Background()

	out, err := svc.Replace(ctx, admin, user, []service.Grant{
		{Module: service.ModuleVehicles, CanView: true, CanCreate: true},
		{Module: service.ModuleEmployees, CanView: true},
		{Module: service.ModuleReports},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, service.ModuleEmployees, out[0].Module)

	ok, err := svc.Allowed(ctx, user, service.ModuleVehicles, service.ActionCreate)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Allowed(ctx, user, service.ModuleEmployees, service.ActionDelete)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.Replace(ctx, admin, user, nil)
	require.NoError(t, err)
	ok, err = svc.Allowed(ctx, user, service.ModuleVehicles, service.ActionView)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReplaceValidation(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	svc := newService(t, map[uuid.UUID]uuid.UUID{user: uuid.New()})

	_, err := svc.Replace(context.Background(), tenant.System(), user, []service.Grant{{Module: "payroll", CanView: true}})
	require.ErrorIs(t, err, service.ErrUnknownModule)

	_, err = svc.Replace(context.Background(), tenant.System(), user, []service.Grant{
		{Module: service.ModuleUsers, CanView: true},
		{Module: service.ModuleUsers, CanEdit: true},
	})
	require.ErrorIs(t, err, service.ErrInvalidGrant)
}

func TestGrantsAreTenantScoped(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	svc := newService(t, map[uuid.UUID]uuid.UUID{user: uuid.New()})
	foreignAdmin := tenant.Scope{UserID: uuid.New(), CompanyID: uuid.New(), UserType: tenant.CompanyAdmin}

	_, err := svc.List(context.Background(), foreignAdmin, user)
	require.ErrorIs(t, err, service.ErrUserNotFound)

	_, err = svc.Replace(context.Background(), foreignAdmin, user, []service.Grant{{Module: service.ModuleUsers, CanView: true}})
	require.ErrorIs(t, err, service.ErrUserNotFound)
}
