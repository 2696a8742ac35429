package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/domains/users/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/httpjson"
	platformlogging "github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

const resourceKind = "users"

// SlotReleaser returns a quota slot once a user row is gone.
type SlotReleaser interface {
	ReleaseSlot(ctx context.Context, companyID uuid.UUID, kind string) error
}

// Handler wires the users service to HTTP.
type Handler struct {
	svc      service.Service
	releaser SlotReleaser
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, releaser SlotReleaser, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if releaser == nil {
		panic("slot releaser is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, releaser: releaser, logger: logger}
}

// User is the JSON representation of a user.
type User struct {
	ID        uuid.UUID  `json:"id"`
	CompanyID *uuid.UUID `json:"companyId,omitempty"`
	Email     string     `json:"email"`
	FullName  string     `json:"fullName"`
	Role      string     `json:"role"`
	UserType  string     `json:"userType"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type createRequest struct {
	Email     string     `json:"email"`
	FullName  string     `json:"fullName"`
	Role      string     `json:"role"`
	UserType  string     `json:"userType"`
	CompanyID *uuid.UUID `json:"companyId"`
}

type setActiveRequest struct {
	IsActive *bool `json:"isActive"`
}

type listResponse struct {
	Items      []User `json:"items"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalItems int    `json:"totalItems"`
	TotalPages int    `json:"totalPages"`
}

// List implements GET /users
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
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

	items := make([]User, 0, len(result.Users))
	for _, user := range result.Users {
		items = append(items, toAPIUser(user))
	}

	httpjson.Write(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// Create implements POST /users
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var body createRequest
	if err := httpjson.Decode(r, &body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid request body", err.Error()))
		return
	}

	created, err := h.svc.Create(r.Context(), scope, service.CreateInput{
		Email:     body.Email,
		FullName:  body.FullName,
		Role:      body.Role,
		UserType:  tenant.UserType(body.UserType),
		CompanyID: body.CompanyID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/users/%s", created.ID))
	httpjson.Write(w, http.StatusCreated, toAPIUser(created))
}

// Get implements GET /users/{userID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}

	user, err := h.svc.Get(r.Context(), scope, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAPIUser(user))
}

// Me implements GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	user, err := h.svc.Get(r.Context(), scope, scope.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAPIUser(user))
}

// SetActive implements PATCH /users/{userID}
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}

	var body setActiveRequest
	if err := httpjson.Decode(r, &body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid request body", err.Error()))
		return
	}
	if body.IsActive == nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Validation failed", "isActive is required").
			WithErrors(map[string][]string{"isActive": {"isActive is required"}}))
		return
	}

	user, err := h.svc.SetActive(r.Context(), scope, id, *body.IsActive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAPIUser(user))
}

// Delete implements DELETE /users/{userID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}

	deleted, err := h.svc.Delete(r.Context(), scope, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if deleted.CompanyID != nil {
		if err := h.releaser.ReleaseSlot(r.Context(), *deleted.CompanyID, resourceKind); err != nil {
			platformlogging.FromRequest(r, h.logger).Warn("release user slot failed",
				zap.String("company_id", deleted.CompanyID.String()),
				zap.Error(err),
			)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (tenant.Scope, bool) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeMissingTenant, "Missing tenant", "no tenant scope"))
		return tenant.Scope{}, false
	}
	return scope, true
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (tenant.Scope, uuid.UUID, bool) {
	scope, ok := h.scope(w, r)
	if !ok {
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
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Validation failed", "request validation failed").
			WithErrors(validationErr.Fields))
	case errors.Is(err, service.ErrNotFound):
		problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound, "User not found", err.Error()))
	case errors.Is(err, service.ErrCompanyNotFound):
		problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound, "Company not found", err.Error()))
	case errors.Is(err, service.ErrConflict):
		problem.Write(w, problem.New(http.StatusConflict, problem.CodeConflict, "User already exists", "a user with this email already exists"))
	case errors.Is(err, service.ErrForbidden):
		problem.Write(w, problem.New(http.StatusForbidden, problem.CodeForbidden, "Forbidden", err.Error()))
	default:
		platformlogging.FromRequest(r, h.logger).Error("users request failed", zap.Error(err))
		problem.Write(w, problem.Internal())
	}
}

func buildListOptions(r *http.Request) (service.ListOptions, error) {
	opts := service.ListOptions{}
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, errors.New("page must be an integer")
		}
		opts.Page = n
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, errors.New("pageSize must be an integer")
		}
		opts.PageSize = n
	}
	if v := strings.TrimSpace(q.Get("email")); v != "" {
		opts.Email = &v
	}
	if v := strings.TrimSpace(q.Get("sort")); v != "" {
		opts.Sort = &v
	}

	return opts, nil
}

func toAPIUser(user service.User) User {
	return User{
		ID:        user.ID,
		CompanyID: user.CompanyID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		UserType:  string(user.UserType),
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
