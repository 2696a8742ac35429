package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/plans"
	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/httpjson"
	"github.com/zenGate-Global/nuzum-saas/platform/go/logging"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// Service is the lifecycle surface the handler needs.
type Service interface {
	CreateTrial(ctx context.Context, companyID uuid.UUID, planType plans.Type) (service.Subscription, error)
	UpgradeToPaid(ctx context.Context, companyID uuid.UUID, planType plans.Type, durationMonths int) (service.Subscription, error)
	Extend(ctx context.Context, companyID uuid.UUID, days int) (service.Subscription, error)
	Suspend(ctx context.Context, companyID uuid.UUID) (service.Subscription, error)
	Activate(ctx context.Context, companyID uuid.UUID) (service.Subscription, error)
	Status(ctx context.Context, companyID uuid.UUID) (service.StatusReport, error)
	Plans() []plans.Plan
}

// Handler exposes subscription administration over HTTP. The company of every call comes
// from the tenant scope bound by the guard chain, never from the request directly.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("subscriptions service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

type trialRequest struct {
	PlanType *string `json:"planType"`
}

type upgradeRequest struct {
	PlanType       string `json:"planType"`
	DurationMonths int    `json:"durationMonths"`
}

type extendRequest struct {
	Days int `json:"days"`
}

// Subscription is the JSON view of a subscription row.
type Subscription struct {
	ID          uuid.UUID        `json:"subscriptionId"`
	CompanyID   uuid.UUID        `json:"companyId"`
	PlanType    string           `json:"planType"`
	IsTrial     bool             `json:"isTrial"`
	TrialStart  *time.Time       `json:"trialStart,omitempty"`
	TrialEnd    *time.Time       `json:"trialEnd,omitempty"`
	StartDate   time.Time        `json:"startDate"`
	EndDate     *time.Time       `json:"endDate,omitempty"`
	IsActive    bool             `json:"isActive"`
	AutoRenew   bool             `json:"autoRenew"`
	QuotedPrice *decimal.Decimal `json:"quotedPrice,omitempty"`
}

// Plan is the JSON view of a catalog entry.
type Plan struct {
	Type         string          `json:"type"`
	Name         string          `json:"name"`
	MaxEmployees int             `json:"maxEmployees"`
	MaxVehicles  int             `json:"maxVehicles"`
	MaxUsers     int             `json:"maxUsers"`
	Features     []string        `json:"features"`
	PriceMonthly decimal.Decimal `json:"priceMonthly"`
	PriceYearly  decimal.Decimal `json:"priceYearly"`
}

// StatusReport is the JSON view of service.StatusReport.
type StatusReport struct {
	CompanyID      uuid.UUID     `json:"companyId"`
	Status         string        `json:"status"`
	DaysRemaining  int           `json:"daysRemaining"`
	ActionRequired string        `json:"actionRequired,omitempty"`
	Message        string        `json:"message"`
	Subscription   *Subscription `json:"subscription,omitempty"`
	Plan           *Plan         `json:"plan,omitempty"`
}

// CreateTrial implements POST /companies/{companyID}/subscription/trial
func (h *Handler) CreateTrial(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.company(w, r)
	if !ok {
		return
	}

	var body trialRequest
	if err := httpjson.Decode(r, &body); err != nil && !errors.Is(err, httpjson.ErrEmptyBody) {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid request body", err.Error()))
		return
	}
	planType := plans.Basic
	if body.PlanType != nil {
		planType = plans.Type(*body.PlanType)
	}

	sub, err := h.svc.CreateTrial(r.Context(), companyID, planType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toAPISubscription(sub))
}

// Upgrade implements POST /companies/{companyID}/subscription/upgrade
func (h *Handler) Upgrade(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.company(w, r)
	if !ok {
		return
	}

	var body upgradeRequest
	if err := httpjson.Decode(r, &body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid request body", err.Error()))
		return
	}
	fields := map[string][]string{}
	if !plans.Type(body.PlanType).Valid() {
		fields["planType"] = []string{"must be one of basic, premium, enterprise"}
	}
	if body.DurationMonths < 1 {
		fields["durationMonths"] = []string{"must be at least 1"}
	}
	if len(fields) > 0 {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Validation failed", "invalid upgrade request").WithErrors(fields))
		return
	}

	sub, err := h.svc.UpgradeToPaid(r.Context(), companyID, plans.Type(body.PlanType), body.DurationMonths)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toAPISubscription(sub))
}

// Extend implements POST /companies/{companyID}/subscription/extend
func (h *Handler) Extend(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.company(w, r)
	if !ok {
		return
	}

	var body extendRequest
	if err := httpjson.Decode(r, &body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Invalid request body", err.Error()))
		return
	}
	if body.Days < 1 {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Validation failed", "invalid extend request").
			WithErrors(map[string][]string{"days": {"must be at least 1"}}))
		return
	}

	sub, err := h.svc.Extend(r.Context(), companyID, body.Days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAPISubscription(sub))
}

// Suspend implements POST /companies/{companyID}/subscription/suspend
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.Suspend)
}

// Activate implements POST /companies/{companyID}/subscription/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.Activate)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (service.Subscription, error)) {
	companyID, ok := h.company(w, r)
	if !ok {
		return
	}
	sub, err := op(r.Context(), companyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAPISubscription(sub))
}

// Status implements GET /subscription and GET /companies/{companyID}/subscription
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.company(w, r)
	if !ok {
		return
	}
	report, err := h.svc.Status(r.Context(), companyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := StatusReport{
		CompanyID:      report.CompanyID,
		Status:         string(report.Status),
		DaysRemaining:  report.DaysRemaining,
		ActionRequired: string(report.ActionRequired),
		Message:        report.Message,
	}
	if report.Subscription != nil {
		sub := toAPISubscription(*report.Subscription)
		out.Subscription = &sub
	}
	if report.Plan != nil {
		p := toAPIPlan(*report.Plan)
		out.Plan = &p
	}
	httpjson.Write(w, http.StatusOK, out)
}

// Plans implements GET /plans
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	catalog := h.svc.Plans()
	items := make([]Plan, 0, len(catalog))
	for _, p := range catalog {
		items = append(items, toAPIPlan(p))
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) company(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok || !scope.Bound() {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeMissingTenant, "Missing tenant", "the operation requires a company"))
		return uuid.Nil, false
	}
	return scope.CompanyID, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrAlreadySubscribed):
		problem.Write(w, problem.New(http.StatusConflict, problem.CodeAlreadySubscribed, "Already subscribed", err.Error()))
	case errors.Is(err, service.ErrNoActiveSubscription):
		problem.Write(w, problem.New(http.StatusConflict, problem.CodeNoActiveSubscription, "No active subscription", err.Error()).
			WithAction(string(service.ActionSubscribe)))
	case errors.Is(err, service.ErrCompanyNotFound), errors.Is(err, service.ErrNotFound):
		problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound, "Not found", err.Error()))
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrUnknownPlan):
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation, "Validation failed", err.Error()))
	default:
		logging.FromRequest(r, h.logger).Error("subscription operation failed", zap.Error(err))
		problem.Write(w, problem.Internal())
	}
}

func toAPISubscription(s service.Subscription) Subscription {
	return Subscription{
		ID:          s.ID,
		CompanyID:   s.CompanyID,
		PlanType:    string(s.PlanType),
		IsTrial:     s.IsTrial,
		TrialStart:  s.TrialStart,
		TrialEnd:    s.TrialEnd,
		StartDate:   s.StartDate,
		EndDate:     s.EndDate,
		IsActive:    s.IsActive,
		AutoRenew:   s.AutoRenew,
		QuotedPrice: s.QuotedPrice,
	}
}

func toAPIPlan(p plans.Plan) Plan {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return Plan{
		Type:         string(p.Type),
		Name:         p.Name,
		MaxEmployees: p.MaxEmployees,
		MaxVehicles:  p.MaxVehicles,
		MaxUsers:     p.MaxUsers,
		Features:     features,
		PriceMonthly: p.PriceMonthly,
		PriceYearly:  p.PriceYearly,
	}
}
