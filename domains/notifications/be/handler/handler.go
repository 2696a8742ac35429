package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/domains/notifications/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/httpjson"
	"github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type Service interface {
	List(ctx context.Context, scope tenant.Scope, unreadOnly bool, limit int) ([]service.Notification, error)
	MarkRead(ctx context.Context, scope tenant.Scope, id uuid.UUID) (service.Notification, error)
}

type Handler struct {
	svc    Service
	logger *zap.Logger
}

func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("notifications service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

type Notification struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"companyId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// List implements GET /notifications
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeMissingTenant, "Missing tenant", "no tenant scope"))
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.svc.List(r.Context(), scope, unread, limit)
	if err != nil {
		logging.FromRequest(r, h.logger).Error("list notifications", zap.Error(err))
		problem.Write(w, problem.Internal())
		return
	}

	out := make([]Notification, 0, len(items))
	for _, n := range items {
		out = append(out, toAPI(n))
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"items": out})
}

// MarkRead implements POST /notifications/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeMissingTenant, "Missing tenant", "no tenant scope"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid id", "id must be a UUID"))
		return
	}

	n, err := h.svc.MarkRead(r.Context(), scope, id)
	switch {
	case errors.Is(err, service.ErrNotFound):
		problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound, "Notification not found", err.Error()))
	case err != nil:
		logging.FromRequest(r, h.logger).Error("mark notification read", zap.Error(err))
		problem.Write(w, problem.Internal())
	default:
		httpjson.Write(w, http.StatusOK, toAPI(n))
	}
}

func toAPI(n service.Notification) Notification {
	return Notification{
		ID:        n.ID,
		CompanyID: n.CompanyID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
