package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/domains/resources/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/httpjson"
	"github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type Service interface {
	Create(ctx context.Context, scope tenant.Scope, kind service.Kind, label string) (service.Resource, error)
	List(ctx context.Context, scope tenant.Scope, kind service.Kind, page, pageSize int) (service.Page, error)
	Delete(ctx context.Context, scope tenant.Scope, kind service.Kind, id uuid.UUID) error
}

// Handler serves one resource kind; mount one per kind.
type Handler struct {
	svc    Service
	kind   service.Kind
	logger *zap.Logger
}

func New(svc Service, kind service.Kind, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("resources service is required")
	}
	if !kind.Valid() {
		panic(fmt.Sprintf("unknown resource kind %q", kind))
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, kind: kind, logger: logger}
}

type Resource struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"companyId"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
}

type createRequest struct {
	Label string `json:"label"`
}

type listResponse struct {
	Items      []Resource `json:"items"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	TotalItems int        `json:"totalItems"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	result, err := h.svc.List(r.Context(), scope, h.kind, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]Resource, 0, len(result.Items))
	for _, res := range result.Items {
		items = append(items, toAPI(res))
	}
	httpjson.Write(w, http.StatusOK, listResponse{Items: items, Page: result.Page, PageSize: result.PageSize, TotalItems: result.TotalItems})
}

// Create stores a resource. The guard chain has already reserved the quota slot and
// confirms it only when this handler answers 2xx.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}

	var body createRequest
	if err := httpjson.Decode(r, &body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid request body", err.Error()))
		return
	}

	created, err := h.svc.Create(r.Context(), scope, h.kind, body.Label)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/%s/%s", h.kind, created.ID))
	httpjson.Write(w, http.StatusCreated, toAPI(created))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid id", "id must be a UUID"))
		return
	}

	if err := h.svc.Delete(r.Context(), scope, h.kind, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func scopeOf(w http.ResponseWriter, r *http.Request) (tenant.Scope, bool) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeMissingTenant, "Missing tenant", "no tenant scope"))
	}
	return scope, ok
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound, "Not found", err.Error()))
	case errors.Is(err, service.ErrInvalidInput):
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Validation failed", err.Error()))
	case errors.Is(err, service.ErrUnboundScope):
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeMissingTenant, "Missing tenant", err.Error()))
	default:
		logging.FromRequest(r, h.logger).Error("resource request failed", zap.String("kind", string(h.kind)), zap.Error(err))
		problem.Write(w, problem.Internal())
	}
}

func toAPI(res service.Resource) Resource {
	return Resource{ID: res.ID, CompanyID: res.CompanyID, Label: res.Label, CreatedAt: res.CreatedAt}
}
