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

	"github.com/zenGate-Global/nuzum-saas/domains/tenants/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/httpjson"
	"github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// Service is the tenant directory surface the handler needs.
type Service interface {
	List(ctx context.Context, scope tenant.Scope, opts service.ListOptions) (service.ListResult, error)
	Create(ctx context.Context, input service.CreateInput) (service.Company, error)
	Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (service.Company, error)
	Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, input service.UpdateInput) (service.Company, error)
	Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error
}

// Handler exposes the tenant directory over HTTP.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Company is the JSON view of a company.
type Company struct {
	ID           uuid.UUID `json:"companyId"`
	Name         string    `json:"name"`
	ContactEmail *string   `json:"contactEmail,omitempty"`
	ContactPhone *string   `json:"contactPhone,omitempty"`
	Address      *string   `json:"address,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type createRequest struct {
	Name         string  `json:"name"`
	ContactEmail *string `json:"contactEmail"`
	ContactPhone *string `json:"contactPhone"`
	Address      *string `json:"address"`
	Status       *string `json:"status"`
	StartTrial   *bool   `json:"startTrial"`
}

type updateRequest struct {
	Name         *string `json:"name"`
	ContactEmail *string `json:"contactEmail"`
	ContactPhone *string `json:"contactPhone"`
	Address      *string `json:"address"`
	Status       *string `json:"status"`
}

type listResponse struct {
	Items      []Company `json:"items"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalItems int       `json:"totalItems"`
	TotalPages int       `json:"totalPages"`
}

// List implements GET /companies
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeMissingTenant, "Missing tenant", "no tenant scope"))
		return
	}

	opts, err := buildListOptions(r)
	if err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid query", err.Error()))
		return
	}

	result, err := h.svc.List(r.Context(), scope, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]Company, 0, len(result.Companies))
	for _, c := range result.Companies {
		items = append(items, toAPICompany(c))
	}
	httpjson.Write(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// Create implements POST /companies
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := httpjson.Decode(r, &body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid request body", err.Error()))
		return
	}

	input := service.CreateInput{
		Name:         body.Name,
		ContactEmail: body.ContactEmail,
		ContactPhone: body.ContactPhone,
		Address:      body.Address,
		StartTrial:   body.StartTrial == nil || *body.StartTrial,
	}
	if body.Status != nil {
		input.Status = service.Status(*body.Status)
	}

	c, err := h.svc.Create(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/companies/%s", c.ID))
	httpjson.Write(w, http.StatusCreated, toAPICompany(c))
}

// Get implements GET /companies/{companyID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), scope, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAPICompany(c))
}

// Update implements PATCH /companies/{companyID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}

	var body updateRequest
	if err := httpjson.Decode(r, &body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid request body", err.Error()))
		return
	}
	input := service.UpdateInput{
		Name:         body.Name,
		ContactEmail: body.ContactEmail,
		ContactPhone: body.ContactPhone,
		Address:      body.Address,
	}
	if body.Status != nil {
		status := service.Status(*body.Status)
		input.Status = &status
	}

	c, err := h.svc.Update(r.Context(), scope, id, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAPICompany(c))
}

// Delete implements DELETE /companies/{companyID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), scope, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// target returns the caller scope and the company named in the path. The store applies the
// scope, so a company outside it reads as not found.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (tenant.Scope, uuid.UUID, bool) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeMissingTenant, "Missing tenant", "no tenant scope"))
		return tenant.Scope{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "companyID"))
	if err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid company id", "companyID must be a UUID"))
		return tenant.Scope{}, uuid.Nil, false
	}
	return scope, id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var depErr *service.DependentsError
	switch {
	case errors.As(err, &depErr):
		problem.Write(w, problem.New(http.StatusConflict, problem.CodeConflict, "Company has dependents", err.Error()).
			WithErrors(map[string][]string{
				"employees": {strconv.Itoa(depErr.Dependents.Employees)},
				"vehicles":  {strconv.Itoa(depErr.Dependents.Vehicles)},
				"users":     {strconv.Itoa(depErr.Dependents.Users)},
			}))
	case errors.Is(err, service.ErrNotFound):
		problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound, "Not found", err.Error()))
	case errors.Is(err, service.ErrConflictName):
		problem.Write(w, problem.New(http.StatusConflict, problem.CodeConflict, "Conflict", err.Error()))
	case errors.Is(err, service.ErrInvalidInput):
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Validation failed", err.Error()))
	case errors.Is(err, service.ErrForbidden):
		problem.Write(w, problem.New(http.StatusForbidden, problem.CodeForbidden, "Forbidden", err.Error()))
	default:
		logging.FromRequest(r, h.logger).Error("company operation failed", zap.Error(err))
		problem.Write(w, problem.Internal())
	}
}

func buildListOptions(r *http.Request) (service.ListOptions, error) {
	opts := service.ListOptions{Page: 1, PageSize: 20}
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, errors.New("page must be a positive integer")
		}
		opts.Page = n
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return opts, errors.New("pageSize must be between 1 and 100")
		}
		opts.PageSize = n
	}
	if v := q.Get("status"); v != "" {
		status := service.Status(v)
		if !status.Valid() {
			return opts, fmt.Errorf("unknown status %q", v)
		}
		opts.Status = &status
	}
	return opts, nil
}

func toAPICompany(c service.Company) Company {
	return Company{
		ID:           c.ID,
		Name:         c.Name,
		ContactEmail: c.ContactEmail,
		ContactPhone: c.ContactPhone,
		Address:      c.Address,
		Status:       string(c.Status),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
