package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/nuzum-saas/domains/tenants/be/repo"
	"github.com/zenGate-Global/nuzum-saas/domains/tenants/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

func strPtr(v string) *string { return &v }

func TestCreateStartsTrial(t *testing.T) {
	t.Parallel()

	mem := repo.NewMemoryRepository()
	var trialFor uuid.UUID
	svc := service.New(mem, zaptest.NewLogger(t), service.WithTrial(func(ctx context.Context, companyID uuid.UUID) error {
		trialFor = companyID
		return nil
	}))

	c, err := svc.Create(context.Background(), service.CreateInput{Name: "  Falcon Logistics ", StartTrial: true})
	require.NoError(t, err)
	require.Equal(t, "Falcon Logistics", c.Name)
	require.Equal(t, service.StatusActive, c.Status)
	require.Equal(t, c.ID, trialFor)
}

func TestCreateRollsBackWhenTrialFails(t *testing.T) {
	t.Parallel()

	mem := repo.NewMemoryRepository()
	svc := service.New(mem, zaptest.NewLogger(t), service.WithTrial(func(context.Context, uuid.UUID) error {
		return errors.New("subscriptions unavailable")
	}))

	_, err := svc.Create(context.Background(), service.CreateInput{Name: "Doomed", StartTrial: true})
	require.ErrorContains(t, err, "start trial")

	list, err := svc.List(context.Background(), tenant.System(), service.ListOptions{})
	require.NoError(t, err)
	require.Zero(t, list.TotalItems)
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	svc := service.New(repo.NewMemoryRepository(), zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := svc.Create(ctx, service.CreateInput{Name: "   "})
	require.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = svc.Create(ctx, service.CreateInput{Name: "Acme", Status: "archived"})
	require.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = svc.Create(ctx, service.CreateInput{Name: "Acme", ContactEmail: strPtr("not-an-email")})
	require.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = svc.Create(ctx, service.CreateInput{Name: "Acme", ContactEmail: strPtr("ops@acme.test")})
	require.NoError(t, err)

	_, err = svc.Create(ctx, service.CreateInput{Name: "ACME"})
	require.ErrorIs(t, err, service.ErrConflictName)
}

func TestScopedAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := service.New(repo.NewMemoryRepository(), zaptest.NewLogger(t))

	a, err := svc.Create(ctx, service.CreateInput{Name: "Alpha"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, service.CreateInput{Name: "Beta"})
	require.NoError(t, err)

	adminA := tenant.Scope{UserType: tenant.CompanyAdmin, CompanyID: a.ID, UserID: uuid.New()}

	_, err = svc.Get(ctx, adminA, b.ID)
	require.ErrorIs(t, err, service.ErrNotFound)

	list, err := svc.List(ctx, adminA, service.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list.Companies, 1)
	require.Equal(t, a.ID, list.Companies[0].ID)

	all, err := svc.List(ctx, tenant.System(), service.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, all.TotalItems)

	inactive := service.StatusInactive
	_, err = svc.Update(ctx, adminA, b.ID, service.UpdateInput{Address: strPtr("Jeddah")})
	require.ErrorIs(t, err, service.ErrNotFound)

	updated, err := svc.Update(ctx, tenant.System(), b.ID, service.UpdateInput{Status: &inactive, Address: strPtr("Riyadh")})
	require.NoError(t, err)
	require.Equal(t, service.StatusInactive, updated.Status)
	require.Equal(t, "Riyadh", *updated.Address)

	filtered, err := svc.List(ctx, tenant.System(), service.ListOptions{Status: &inactive})
	require.NoError(t, err)
	require.Len(t, filtered.Companies, 1)

	_, err = svc.Update(ctx, tenant.System(), b.ID, service.UpdateInput{Name: strPtr(" ")})
	require.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestDeleteRefusesCompaniesWithDependents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := repo.NewMemoryRepository()
	svc := service.New(mem, zaptest.NewLogger(t))

	c, err := svc.Create(ctx, service.CreateInput{Name: "Busy"})
	require.NoError(t, err)
	mem.SetDependents(c.ID, service.Dependents{Employees: 3})

	err = svc.Delete(ctx, tenant.System(), c.ID)
	var depErr *service.DependentsError
	require.ErrorAs(t, err, &depErr)
	require.ErrorIs(t, err, service.ErrHasDependents)
	require.Equal(t, 3, depErr.Dependents.Employees)

	mem.SetDependents(c.ID, service.Dependents{})
	require.NoError(t, svc.Delete(ctx, tenant.System(), c.ID))
	require.False(t, mem.Exists(c.ID))
	require.ErrorIs(t, svc.Delete(ctx, tenant.System(), c.ID), service.ErrNotFound)
}

func TestOnlySystemOwnersChangeStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := service.New(repo.NewMemoryRepository(), zaptest.NewLogger(t))
	c, err := svc.Create(ctx, service.CreateInput{Name: "Gamma"})
	require.NoError(t, err)
	admin := tenant.Scope{UserType: tenant.CompanyAdmin, CompanyID: c.ID, UserID: uuid.New()}

	inactive := service.StatusInactive
	_, err = svc.Update(ctx, admin, c.ID, service.UpdateInput{Status: &inactive})
	require.ErrorIs(t, err, service.ErrForbidden)

	renamed, err := svc.Update(ctx, admin, c.ID, service.UpdateInput{Name: strPtr("Gamma Fleet")})
	require.NoError(t, err)
	require.Equal(t, service.StatusActive, renamed.Status)

	updated, err := svc.Update(ctx, tenant.System(), c.ID, service.UpdateInput{Status: &inactive})
	require.NoError(t, err)
	require.Equal(t, service.StatusInactive, updated.Status)
}
