package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/domains/permissions/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/httpjson"
	"github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type Service interface {
	List(ctx context.Context, scope tenant.Scope, userID uuid.UUID) ([]service.Grant, error)
	Replace(ctx context.Context, scope tenant.Scope, userID uuid.UUID, grants []service.Grant) ([]service.Grant, error)
}

type Handler struct {
	svc    Service
	logger *zap.Logger
}

func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("permissions service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Grant is the JSON form of one module grant.
type Grant struct {
	Module    string `json:"module"`
	CanView   bool   `json:"canView"`
	CanCreate bool   `json:"canCreate"`
	CanEdit   bool   `json:"canEdit"`
	CanDelete bool   `json:"canDelete"`
}

type grantsBody struct {
	Items []Grant `json:"items"`
}

// List implements GET /users/{userID}/permissions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, userID, ok := h.target(w, r)
	if !ok {
		return
	}
	grants, err := h.svc.List(r.Context(), scope, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toBody(grants))
}

// Replace implements PUT /users/{userID}/permissions
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	scope, userID, ok := h.target(w, r)
	if !ok {
		return
	}

	var body grantsBody
	if err := httpjson.Decode(r, &body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid request body", err.Error()))
		return
	}

	grants := make([]service.Grant, 0, len(body.Items))
	for _, g := range body.Items {
		grants = append(grants, service.Grant{
			Module:    service.Module(g.Module),
			CanView:   g.CanView,
			CanCreate: g.CanCreate,
			CanEdit:   g.CanEdit,
			CanDelete: g.CanDelete,
		})
	}

	out, err := h.svc.Replace(r.Context(), scope, userID, grants)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toBody(out))
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (tenant.Scope, uuid.UUID, bool) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeMissingTenant, "Missing tenant", "no tenant scope"))
		return tenant.Scope{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid user id", "userID must be a UUID"))
		return tenant.Scope{}, uuid.Nil, false
	}
	return scope, id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound, "User not found", err.Error()))
	case errors.Is(err, service.ErrUnknownModule), errors.Is(err, service.ErrInvalidGrant):
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid grant", err.Error()))
	default:
		logging.FromRequest(r, h.logger).Error("permissions request failed", zap.Error(err))
		problem.Write(w, problem.Internal())
	}
}

func toBody(grants []service.Grant) grantsBody {
	items := make([]Grant, 0, len(grants))
	for _, g := range grants {
		items = append(items, Grant{
			Module:    string(g.Module),
			CanView:   g.CanView,
			CanCreate: g.CanCreate,
			CanEdit:   g.CanEdit,
			CanDelete: g.CanDelete,
		})
	}
	return grantsBody{Items: items}
}
