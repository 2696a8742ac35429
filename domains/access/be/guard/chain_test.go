package guard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/nuzum-saas/domains/access/be/guard"
	entitlementsrepo "github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/repo"
	entitlements "github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/service"
	permissionsrepo "github.com/zenGate-Global/nuzum-saas/domains/permissions/be/repo"
	permissions "github.com/zenGate-Global/nuzum-saas/domains/permissions/be/service"
	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/plans"
	subscriptionsrepo "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/repo"
	subscriptions "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
	usersrepo "github.com/zenGate-Global/nuzum-saas/domains/users/be/repo"
	users "github.com/zenGate-Global/nuzum-saas/domains/users/be/service"
	platformauth "github.com/zenGate-Global/nuzum-saas/platform/go/auth"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type fixture struct {
	chain   *guard.Chain
	subs    *subscriptions.Service
	company uuid.UUID
	admin   uuid.UUID
}

// newFixture wires the real services over memory stores. The company is on a basic trial with
// existingEmployees rows already counted.
func newFixture(t *testing.T, existingEmployees int) fixture {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	company := uuid.New()
	userRepo := usersrepo.NewMemoryRepository()
	admin, err := userRepo.Create(ctx, persistence.CreateUserParams{
		UserID:    uuid.New(),
		CompanyID: &company,
		Email:     "admin@acme.test",
		FullName:  "Acme Admin",
		Role:      "admin",
		UserType:  string(tenant.CompanyAdmin),
	})
	require.NoError(t, err)

	subs := subscriptions.New(subscriptionsrepo.NewMemoryRepository(nil), plans.Default(), logger)
	_, err = subs.CreateTrial(ctx, company, plans.Basic)
	require.NoError(t, err)

	counter := entitlementsrepo.NewMemoryCounter(func(companyID uuid.UUID, resource string) int {
		if resource == plans.ResourceEmployees {
			return existingEmployees
		}
		return 0
	})
	quotas := entitlements.New(subs, counter, logger)
	perms := permissions.New(permissionsrepo.NewMemoryRepository(func(uuid.UUID) (uuid.UUID, bool) { return company, true }), logger)

	chain := guard.Standard(guard.Deps{
		Identity:      users.New(userRepo, logger),
		Permissions:   perms,
		Subscriptions: subs,
		Quotas:        quotas,
	}, logger)
	return fixture{chain: chain, subs: subs, company: company, admin: admin.UserID}
}

func (f fixture) do(t *testing.T, op guard.Operation, status int) *httptest.ResponseRecorder {
	t.Helper()
	h := f.chain.Middleware(op)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	req := httptest.NewRequest(http.MethodPost, "/employees", nil)
	req = req.WithContext(platformauth.WithCredentials(req.Context(), &platformauth.UserCredentials{Id: f.admin.String()}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func problemCode(t *testing.T, rec *httptest.ResponseRecorder) problem.Details {
	t.Helper()
	var body problem.Details
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

var createEmployee = guard.Operation{
	Name:   "employees.create",
	Roles:  []string{string(tenant.SystemOwner), string(tenant.CompanyAdmin), string(tenant.Employee)},
	Module: permissions.ModuleEmployees,
	Action: permissions.ActionCreate,
	Quota:  plans.ResourceEmployees,
}

func TestLastSlotIsHeldOnlyAfterSuccessfulCreate(t *testing.T) {
	t.Parallel()

	basic, _ := plans.Default().Get(plans.Basic)
	f := newFixture(t, basic.MaxEmployees-1)

	rec := f.do(t, createEmployee, http.StatusInternalServerError)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = f.do(t, createEmployee, http.StatusCreated)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, createEmployee, http.StatusCreated)
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := problemCode(t, rec)
	require.Equal(t, problem.CodeQuotaExceeded, body.Code)
	require.Equal(t, "employees limit reached (50)", body.Detail)
	require.Equal(t, string(subscriptions.ActionUpgrade), body.Action)
}

func TestSuspendedCompanyIsRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	_, err := f.subs.Suspend(context.Background(), f.company)
	require.NoError(t, err)

	rec := f.do(t, guard.Operation{Name: "employees.list"}, http.StatusOK)
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := problemCode(t, rec)
	require.Equal(t, problem.CodeSubscriptionExpired, body.Code)
	require.Equal(t, string(subscriptions.ActionContactSupport), body.Action)

	rec = f.do(t, guard.Operation{Name: "subscription.status", SubscriptionExempt: true}, http.StatusOK)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicPlanLacksGatedFeature(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	rec := f.do(t, guard.Operation{Name: "reports.advanced", Feature: "advanced_reports"}, http.StatusOK)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, problem.CodeForbidden, problemCode(t, rec).Code)
}
