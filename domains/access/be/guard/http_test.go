package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	entitlements "github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/service"
	users "github.com/zenGate-Global/nuzum-saas/domains/users/be/service"
	platformauth "github.com/zenGate-Global/nuzum-saas/platform/go/auth"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type slotCalls struct {
	released int
	settled  int
}

func quotaChain(t *testing.T, admin users.User, calls *slotCalls) *Chain {
	t.Helper()
	quotas := &mockQuotas{
		reserveFn: func(_ context.Context, companyID uuid.UUID, resource string) (*entitlements.Reservation, error) {
			return &entitlements.Reservation{CompanyID: companyID, Resource: resource}, nil
		},
		releaseFn: func(context.Context, *entitlements.Reservation) error {
			calls.released++
			return nil
		},
		settleFn: func(context.Context, *entitlements.Reservation) error {
			calls.settled++
			return nil
		},
	}
	identity := &mockIdentity{resolveFn: func(context.Context, *platformauth.UserCredentials) (users.User, error) {
		return admin, nil
	}}
	return NewChain(zaptest.NewLogger(t), quotas, Authenticate(identity), BindTenant(), QuotaGate(quotas))
}

func authedRequest(user users.User) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/employees", nil)
	return req.WithContext(platformauth.WithCredentials(req.Context(), &platformauth.UserCredentials{Id: user.ID.String()}))
}

func TestMiddlewareRendersRejection(t *testing.T) {
	t.Parallel()

	chain := NewChain(zaptest.NewLogger(t), nil, Authenticate(&mockIdentity{}))
	h := chain.Middleware(Operation{Name: "employees.list"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/employees", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	var body problem.Details
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, problem.CodeUnauthenticated, body.Code)
}

func TestMiddlewareBindsScope(t *testing.T) {
	t.Parallel()

	company := uuid.New()
	admin := companyUser(tenant.CompanyAdmin, company)
	var calls slotCalls
	chain := quotaChain(t, admin, &calls)

	h := chain.Middleware(Operation{Name: "employees.list"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, ok := tenant.FromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, company, scope.CompanyID)
		rc, ok := FromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, admin.ID, rc.User.ID)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(admin))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, slotCalls{}, calls)
}

func TestMiddlewareSettlesOrReleasesReservation(t *testing.T) {
	t.Parallel()

	admin := companyUser(tenant.CompanyAdmin, uuid.New())
	op := Operation{Name: "employees.create", Quota: "employees"}

	settled := slotCalls{settled: 1}
	released := slotCalls{released: 1}
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    slotCalls
	}{
		{"created", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) }, settled},
		{"implicit ok", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("{}")) }, settled},
		{"nothing written", func(http.ResponseWriter, *http.Request) {}, settled},
		{"validation", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadRequest) }, released},
		{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) }, released},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var calls slotCalls
			h := quotaChain(t, admin, &calls).Middleware(op)(tc.handler)
			h.ServeHTTP(httptest.NewRecorder(), authedRequest(admin))
			require.Equal(t, tc.want, calls)
		})
	}
}

func TestMiddlewareReleasesReservationOnPanic(t *testing.T) {
	t.Parallel()

	admin := companyUser(tenant.CompanyAdmin, uuid.New())
	var calls slotCalls
	h := quotaChain(t, admin, &calls).Middleware(Operation{Name: "vehicles.create", Quota: "vehicles"})(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
	)

	require.Panics(t, func() { h.ServeHTTP(httptest.NewRecorder(), authedRequest(admin)) })
	require.Equal(t, slotCalls{released: 1}, calls)
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusUnauthorized, StatusOf(KindUnauthenticated))
	require.Equal(t, http.StatusBadRequest, StatusOf(KindMissingTenant))
	require.Equal(t, http.StatusForbidden, StatusOf(KindQuotaExceeded))
	require.Equal(t, http.StatusForbidden, StatusOf(KindSubscriptionExpired))
	require.Equal(t, http.StatusConflict, StatusOf(KindTransactionConflict))
}
