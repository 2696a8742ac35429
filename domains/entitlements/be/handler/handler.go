package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/httpjson"
	"github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// Service is the enforcer surface exposed over HTTP.
type Service interface {
	Usage(ctx context.Context, companyID uuid.UUID) ([]service.Usage, error)
	Reconcile(ctx context.Context, companyID uuid.UUID) ([]service.Usage, error)
}

type Handler struct {
	svc    Service
	logger *zap.Logger
}

func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("entitlements service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Usage is the JSON form of one resource quota.
type Usage struct {
	Resource  string `json:"resource"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

type usageResponse struct {
	CompanyID uuid.UUID `json:"companyId"`
	Items     []Usage   `json:"items"`
}

// Usage implements GET /usage
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.svc.Usage)
}

// Reconcile implements POST /usage/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.svc.Reconcile)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) ([]service.Usage, error)) {
	scope, ok := tenant.FromContext(r.Context())
	companyID, restricted := scope.CompanyFilter()
	if !ok || !restricted || companyID == uuid.Nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeMissingTenant, "Missing tenant", "a company must be selected"))
		return
	}

	usage, err := fn(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, service.ErrCompanyNotFound) {
			problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound, "Company not found", err.Error()))
			return
		}
		logging.FromRequest(r, h.logger).Error("usage request failed", zap.Error(err))
		problem.Write(w, problem.Internal())
		return
	}

	items := make([]Usage, 0, len(usage))
	for _, u := range usage {
		items = append(items, Usage{Resource: u.Resource, Used: u.Used, Limit: u.Limit, Remaining: u.Remaining})
	}
	httpjson.Write(w, http.StatusOK, usageResponse{CompanyID: companyID, Items: items})
}
