package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/nuzum-saas/domains/users/be/repo"
	"github.com/zenGate-Global/nuzum-saas/platform/go/auth"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type failingRepository struct {
	repo.Repository
	err error
}

func (f failingRepository) Get(context.Context, uuid.UUID) (persistence.User, error) {
	return persistence.User{}, f.err
}

func newTestService(t *testing.T) (Service, *repo.MemoryRepository) {
	mem := repo.NewMemoryRepository()
	return New(mem, zaptest.NewLogger(t)), mem
}

func TestServiceCreateValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), tenant.System(), CreateInput{UserType: "root"})
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Contains(t, validationErr.Fields, "email")
	require.Contains(t, validationErr.Fields, "fullName")
	require.Contains(t, validationErr.Fields, "userType")
}

func TestCompanyAdminCreatesInOwnCompany(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	own, other := uuid.New(), uuid.New()
	admin := tenant.Scope{UserID: uuid.New(), CompanyID: own, UserType: tenant.CompanyAdmin}

	created, err := svc.Create(context.Background(), admin, CreateInput{
		Email:     "Driver@Fleet.test",
		FullName:  "Sami Driver",
		CompanyID: &other,
	})
	require.NoError(t, err)
	require.Equal(t, own, *created.CompanyID)
	require.Equal(t, "driver@fleet.test", created.Email)
	require.Equal(t, tenant.Employee, created.UserType)

	_, err = svc.Create(context.Background(), admin, CreateInput{Email: "x@fleet.test", FullName: "X", UserType: tenant.SystemOwner})
	require.ErrorIs(t, err, ErrForbidden)

	employee := tenant.Scope{UserID: uuid.New(), CompanyID: own, UserType: tenant.Employee}
	_, err = svc.Create(context.Background(), employee, CreateInput{Email: "y@fleet.test", FullName: "Y"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(context.Background(), admin, CreateInput{Email: "driver@fleet.test", FullName: "Dup"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestSystemOwnerNeedsCompanyForCompanyUsers(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), tenant.System(), CreateInput{Email: "a@b.test", FullName: "A", UserType: tenant.CompanyAdmin})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "companyId")

	owner, err := svc.Create(context.Background(), tenant.System(), CreateInput{Email: "root@nuzum.test", FullName: "Root", UserType: tenant.SystemOwner})
	require.NoError(t, err)
	require.Nil(t, owner.CompanyID)
}

func TestTenantIsolation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	ua, err := svc.Create(ctx, tenant.System().ForCompany(a), CreateInput{Email: "a@a.test", FullName: "A"})
	require.NoError(t, err)
	ub, err := svc.Create(ctx, tenant.System().ForCompany(b), CreateInput{Email: "b@b.test", FullName: "B"})
	require.NoError(t, err)

	adminA := tenant.Scope{UserID: uuid.New(), CompanyID: a, UserType: tenant.CompanyAdmin}
	list, err := svc.List(ctx, adminA, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list.Users, 1)
	require.Equal(t, ua.ID, list.Users[0].ID)

	_, err = svc.Get(ctx, adminA, ub.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Delete(ctx, adminA, ub.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.SetActive(ctx, adminA, ub.ID, false)
	require.ErrorIs(t, err, ErrNotFound)

	deleted, err := svc.Delete(ctx, adminA, ua.ID)
	require.NoError(t, err)
	require.Equal(t, a, *deleted.CompanyID)
}

func TestListRejectsUnknownSort(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	sort := "-password"
	_, err := svc.List(context.Background(), tenant.System(), ListOptions{Sort: &sort})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	company := uuid.New()

	u, err := svc.Create(ctx, tenant.System().ForCompany(company), CreateInput{
		Email:    "admin@acme.test",
		FullName: "Acme Admin",
		Role:     "admin",
		UserType: tenant.CompanyAdmin,
	})
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, &auth.UserCredentials{Id: u.ID.String()})
	require.NoError(t, err)
	scope := resolved.Scope()
	require.Equal(t, company, scope.CompanyID)
	require.Equal(t, tenant.CompanyAdmin, scope.UserType)

	byEmail, err := svc.Resolve(ctx, &auth.UserCredentials{Id: "firebase-uid-123", Email: "ADMIN@acme.test"})
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)

	_, err = svc.Resolve(ctx, &auth.UserCredentials{Id: uuid.NewString()})
	require.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.Resolve(ctx, nil)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.SetActive(ctx, tenant.System(), u.ID, false)
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, &auth.UserCredentials{Id: u.ID.String()})
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveSurfacesStoreFailures(t *testing.T) {
	t.Parallel()

	svc := New(failingRepository{Repository: repo.NewMemoryRepository(), err: errors.New("connection reset")}, zaptest.NewLogger(t))
	_, err := svc.Resolve(context.Background(), &auth.UserCredentials{Id: uuid.NewString()})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestUsersCannotDeactivateThemselves(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	company := uuid.New()
	u, err := svc.Create(ctx, tenant.System().ForCompany(company), CreateInput{Email: "me@acme.test", FullName: "Me", UserType: tenant.CompanyAdmin})
	require.NoError(t, err)

	_, err = svc.SetActive(ctx, u.Scope(), u.ID, false)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestEmployeesCannotManageUsers(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	company := tenant.System().ForCompany(uuid.New())
	admin, err := svc.Create(ctx, company, CreateInput{Email: "admin@acme.test", FullName: "Admin", UserType: tenant.CompanyAdmin})
	require.NoError(t, err)
	employee, err := svc.Create(ctx, company, CreateInput{Email: "clerk@acme.test", FullName: "Clerk"})
	require.NoError(t, err)

	_, err = svc.SetActive(ctx, employee.Scope(), admin.ID, false)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Delete(ctx, employee.Scope(), admin.ID)
	require.ErrorIs(t, err, ErrForbidden)

	stillThere, err := svc.Get(ctx, admin.Scope(), admin.ID)
	require.NoError(t, err)
	require.True(t, stillThere.IsActive)

	_, err = svc.SetActive(ctx, admin.Scope(), employee.ID, false)
	require.NoError(t, err)
	_, err = svc.Delete(ctx, admin.Scope(), employee.ID)
	require.NoError(t, err)
}
