package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	entitlementsrepo "github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/repo"
	notificationsrepo "github.com/zenGate-Global/nuzum-saas/domains/notifications/be/repo"
	permissionsrepo "github.com/zenGate-Global/nuzum-saas/domains/permissions/be/repo"
	resourcesrepo "github.com/zenGate-Global/nuzum-saas/domains/resources/be/repo"
	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/plans"
	subscriptionsrepo "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/repo"
	tenantsrepo "github.com/zenGate-Global/nuzum-saas/domains/tenants/be/repo"
	usersrepo "github.com/zenGate-Global/nuzum-saas/domains/users/be/repo"
	platformauth "github.com/zenGate-Global/nuzum-saas/platform/go/auth"
	"github.com/zenGate-Global/nuzum-saas/platform/go/lock"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

const testUserHeader = "X-Test-User"

// headerAuth stands in for the JWT middleware: the caller id travels in a plain header.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(testUserHeader)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := platformauth.WithCredentials(r.Context(), &platformauth.UserCredentials{Id: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type testServer struct {
	handler http.Handler
	owner   uuid.UUID
	users   *usersrepo.MemoryRepository
}

func newTestServer(t *testing.T, withContract bool) testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	companies := tenantsrepo.NewMemoryRepository()
	resources := resourcesrepo.NewMemoryRepository()
	users := usersrepo.NewMemoryRepository()

	owner, err := users.Create(context.Background(), persistence.CreateUserParams{
		UserID:   uuid.New(),
		Email:    "owner@nuzum.test",
		FullName: "Platform Owner",
		Role:     "owner",
		UserType: string(tenant.SystemOwner),
	})
	require.NoError(t, err)

	repos := repositories{
		companies:     companies,
		subscriptions: subscriptionsrepo.NewMemoryRepository(companies.Exists),
		counter: entitlementsrepo.NewMemoryCounter(func(companyID uuid.UUID, resource string) int {
			return resources.Count(companyID, resource)
		}),
		users:         users,
		permissions:   permissionsrepo.NewMemoryRepository(func(uuid.UUID) (uuid.UUID, bool) { return uuid.Nil, false }),
		resources:     resources,
		notifications: notificationsrepo.NewMemoryRepository(),
	}

	cfg := config{RequestTimeout: 5 * time.Second, NotifyInterval: time.Hour, QuotaMaxAttempts: 3}
	a, err := newApp(cfg, repos, lock.NewLocal(), logger)
	require.NoError(t, err)

	var validator func(http.Handler) http.Handler
	if withContract {
		validator, err = newContractValidator(logger)
		require.NoError(t, err)
	}
	return testServer{handler: a.router(cfg, headerAuth, validator), owner: owner.UserID, users: users}
}

func (s testServer) call(t *testing.T, method, path, body string, user uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != uuid.Nil {
		req.Header.Set(testUserHeader, user.String())
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// company creates a company with a trial and returns its id.
func (s testServer) company(t *testing.T, name string) uuid.UUID {
	t.Helper()
	rec := s.call(t, http.MethodPost, "/api/v1/companies", `{"name":"`+name+`"}`, s.owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var company struct {
		CompanyID uuid.UUID `json:"companyId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &company))
	return company.CompanyID
}

func (s testServer) member(t *testing.T, companyID uuid.UUID, email string, userType tenant.UserType) uuid.UUID {
	t.Helper()
	u, err := s.users.Create(context.Background(), persistence.CreateUserParams{
		UserID:    uuid.New(),
		CompanyID: &companyID,
		Email:     email,
		FullName:  email,
		UserType:  string(userType),
	})
	require.NoError(t, err)
	return u.UserID
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem.Details {
	t.Helper()
	var body problem.Details
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCompanyOnboardingFlow(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)

	rec := s.call(t, http.MethodPost, "/api/v1/companies", `{"name":"Acme Logistics"}`, s.owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var company struct {
		CompanyID uuid.UUID `json:"companyId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &company))
	require.NotEqual(t, uuid.Nil, company.CompanyID)

	rec = s.call(t, http.MethodGet, "/api/v1/companies/"+company.CompanyID.String()+"/subscription", "", s.owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "trial_active", status.Status)

	rec = s.call(t, http.MethodPost, "/api/v1/employees?companyId="+company.CompanyID.String(), `{"label":"Driver"}`, s.owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.call(t, http.MethodGet, "/api/v1/usage?companyId="+company.CompanyID.String(), "", s.owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), plans.ResourceEmployees)
}

func TestOwnSubscriptionNeedsCompany(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)

	rec := s.call(t, http.MethodGet, "/api/v1/subscription", "", s.owner)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, problem.CodeMissingTenant, decodeProblem(t, rec).Code)
}

func TestAnonymousCallerIsRejected(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)

	rec := s.call(t, http.MethodGet, "/api/v1/companies", "", uuid.Nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	require.Equal(t, problem.CodeUnauthenticated, decodeProblem(t, rec).Code)
}

func TestContractRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, true)

	rec := s.call(t, http.MethodPost, "/api/v1/companies", `{"name":"Acme","plan":"premium"}`, s.owner)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, problem.CodeValidation, decodeProblem(t, rec).Code)

	rec = s.call(t, http.MethodPost, "/api/v1/companies", `{"name":"Acme"}`, s.owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestPublicEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, true)

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/docs", "/openapi/admin.json"} {
		rec := s.call(t, http.MethodGet, path, "", uuid.Nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := s.call(t, http.MethodGet, "/openapi/missing.json", "", uuid.Nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmployeeCannotManageUsers(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	company := s.company(t, "Acme Fleet")
	admin := s.member(t, company, "admin@acme.test", tenant.CompanyAdmin)
	employee := s.member(t, company, "clerk@acme.test", tenant.Employee)

	rec := s.call(t, http.MethodPatch, "/api/v1/users/"+admin.String(), `{"isActive":false}`, employee)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	require.Equal(t, problem.CodeForbidden, decodeProblem(t, rec).Code)

	rec = s.call(t, http.MethodDelete, "/api/v1/users/"+admin.String(), "", employee)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = s.call(t, http.MethodGet, "/api/v1/users/"+admin.String(), "", admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"isActive":true`)
}

func TestReconcileIsReservedForSystemOwners(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	company := s.company(t, "Beta Fleet")
	admin := s.member(t, company, "admin@beta.test", tenant.CompanyAdmin)

	rec := s.call(t, http.MethodPost, "/api/v1/usage/reconcile", "", admin)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = s.call(t, http.MethodPost, "/api/v1/usage/reconcile?companyId="+company.String(), "", s.owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCompanyAdminCannotChangeStatus(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, false)
	company := s.company(t, "Gamma Fleet")
	admin := s.member(t, company, "admin@gamma.test", tenant.CompanyAdmin)

	rec := s.call(t, http.MethodPatch, "/api/v1/companies/"+company.String(), `{"status":"inactive"}`, admin)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = s.call(t, http.MethodPatch, "/api/v1/companies/"+company.String(), `{"status":"inactive"}`, s.owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
