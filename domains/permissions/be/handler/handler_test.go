package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/nuzum-saas/domains/permissions/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type mockService struct {
	listFn    func(ctx context.Context, scope tenant.Scope, userID uuid.UUID) ([]service.Grant, error)
	replaceFn func(ctx context.Context, scope tenant.Scope, userID uuid.UUID, grants []service.Grant) ([]service.Grant, error)
}

func (m *mockService) List(ctx context.Context, scope tenant.Scope, userID uuid.UUID) ([]service.Grant, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, scope, userID)
}

func (m *mockService) Replace(ctx context.Context, scope tenant.Scope, userID uuid.UUID, grants []service.Grant) ([]service.Grant, error) {
	if m.replaceFn == nil {
		panic("replaceFn not configured")
	}
	return m.replaceFn(ctx, scope, userID, grants)
}

func request(method string, userID string, body string) *http.Request {
	req := httptest.NewRequest(method, "/users/"+userID+"/permissions", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("userID", userID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(tenant.WithScope(ctx, tenant.System()))
}

func TestReplaceDecodesGrants(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	svc := &mockService{}
	svc.replaceFn = func(ctx context.Context, scope tenant.Scope, got uuid.UUID, grants []service.Grant) ([]service.Grant, error) {
		require.Equal(t, userID, got)
		require.Len(t, grants, 1)
		require.True(t, grants[0].CanCreate)
		return grants, nil
	}

	h := New(svc, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	h.Replace(rec, request(http.MethodPut, userID.String(), `{"items":[{"module":"vehicles","canView":true,"canCreate":true}]}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var body grantsBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "vehicles", body.Items[0].Module)
}

func TestReplaceUnknownModule(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.replaceFn = func(context.Context, tenant.Scope, uuid.UUID, []service.Grant) ([]service.Grant, error) {
		return nil, service.ErrUnknownModule
	}

	h := New(svc, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	h.Replace(rec, request(http.MethodPut, uuid.NewString(), `{"items":[{"module":"payroll"}]}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListForeignUser(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.listFn = func(context.Context, tenant.Scope, uuid.UUID) ([]service.Grant, error) {
		return nil, service.ErrUserNotFound
	}

	h := New(svc, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	h.List(rec, request(http.MethodGet, uuid.NewString(), ""))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
