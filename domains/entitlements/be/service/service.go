package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/plans"
	subscriptions "github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/metrics"
	"github.com/zenGate-Global/nuzum-saas/platform/go/retry"
)

var tracer = otel.Tracer("github.com/zenGate-Global/nuzum-saas/domains/entitlements")

var (
	ErrUnknownResource = errors.New("unknown resource kind")
	ErrCompanyNotFound = errors.New("company not found")
	// ErrConflict is returned by a Counter when the database aborted the reservation for a
	// serialization failure or deadlock; such attempts are retried.
	ErrConflict = errors.New("reservation conflict")
)

// Denial codes carried by DeniedError.
const (
	CodeNoSubscription = "no_subscription"
	CodeSuspended      = "suspended"
	CodeTrialExpired   = "trial_expired"
	CodeExpired        = "expired"
	CodeLimitReached   = "limit_reached"
	CodeConflict       = "transaction_conflict"
	CodeTimeout        = "timeout"
)

// DeniedError is returned when a reservation is refused. Every failure mode of CheckAndReserve
// that is not a programming error ends here, so callers always fail closed.
type DeniedError struct {
	Resource string
	Code     string
	Reason   string
	Action   subscriptions.Action
	Used     int
	Limit    int
}

func (e *DeniedError) Error() string { return e.Reason }

// SubscriptionDenied reports whether the denial comes from the subscription state rather
// than from the quota itself.
func (e *DeniedError) SubscriptionDenied() bool {
	switch e.Code {
	case CodeNoSubscription, CodeSuspended, CodeTrialExpired, CodeExpired:
		return true
	}
	return false
}

// Reservation is one granted quota slot. It must be settled once the resource is committed
// or released if the resource is not created.
type Reservation struct {
	CompanyID uuid.UUID
	Resource  string
	HoldID    uuid.UUID
	Used      int
	Limit     int

	done atomic.Bool
}

// Usage is the quota state of one resource kind.
type Usage struct {
	Resource  string
	Used      int
	Limit     int
	Remaining int
}

// Subscriptions is the view of the lifecycle manager the enforcer needs.
type Subscriptions interface {
	Current(ctx context.Context, companyID uuid.UUID) (subscriptions.Subscription, bool, error)
	Plan(t plans.Type) (plans.Plan, bool)
	Now() time.Time
}

// Hold is a slot granted by a Counter whose resource is not committed yet. Used is the usage
// observed by the attempt, also when it was denied.
type Hold struct {
	ID   uuid.UUID
	Used int
}

// Counter performs the atomic per-tenant reservation.
type Counter interface {
	// Reserve takes a slot when fewer than limit are used.
	Reserve(ctx context.Context, companyID uuid.UUID, resource string, limit int) (hold Hold, reserved bool, err error)
	// Settle keeps the slot of a hold whose resource was committed.
	Settle(ctx context.Context, holdID uuid.UUID) error
	// ReleaseHold frees the slot of a hold that is still pending. Unknown holds are a no-op.
	ReleaseHold(ctx context.Context, companyID uuid.UUID, resource string, holdID uuid.UUID) error
	// Release frees the slot of a committed resource that was deleted.
	Release(ctx context.Context, companyID uuid.UUID, resource string) error
	Usage(ctx context.Context, companyID uuid.UUID) (map[string]int, error)
	// Reconcile recounts committed rows plus pending holds.
	Reconcile(ctx context.Context, companyID uuid.UUID) (map[string]int, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithRetry overrides the retry policy applied to conflicting reservations.
func WithRetry(cfg retry.Config) Option {
	return func(s *Service) { s.retry = cfg }
}

// Service enforces plan quotas.
type Service struct {
	subs    Subscriptions
	counter Counter
	logger  *zap.Logger
	retry   retry.Config
}

// New constructs a Service.
func New(subs Subscriptions, counter Counter, logger *zap.Logger, opts ...Option) *Service {
	if subs == nil {
		panic("subscriptions are required")
	}
	if counter == nil {
		panic("usage counter is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	s := &Service{subs: subs, counter: counter, logger: logger, retry: retry.DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resources lists the quota-bearing resource kinds.
func Resources() []string {
	return []string{plans.ResourceEmployees, plans.ResourceVehicles, plans.ResourceUsers}
}

// CheckAndReserve verifies the subscription of companyID and takes one slot of resource.
func (s *Service) CheckAndReserve(ctx context.Context, companyID uuid.UUID, resource string) (*Reservation, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "entitlements.CheckAndReserve")
	span.SetAttributes(attribute.String("company.id", companyID.String()), attribute.String("resource", resource))
	defer span.End()

	res, err := s.checkAndReserve(ctx, companyID, resource)

	result := "reserved"
	var denied *DeniedError
	switch {
	case errors.As(err, &denied):
		result = denied.Code
		span.SetAttributes(attribute.String("denied.code", denied.Code))
	case err != nil:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.ObserveQuotaReservation(resource, result, time.Since(start))
	return res, err
}

func (s *Service) checkAndReserve(ctx context.Context, companyID uuid.UUID, resource string) (*Reservation, error) {
	limit, err := s.limit(ctx, companyID, resource)
	if err != nil {
		return nil, s.failClosed(ctx, resource, err)
	}

	type outcome struct {
		hold     Hold
		reserved bool
	}
	out, err := retry.Do(ctx, s.retry, s.logger, "quota.reserve", isConflict, func(ctx context.Context) (outcome, error) {
		hold, reserved, err := s.counter.Reserve(ctx, companyID, resource, limit)
		return outcome{hold: hold, reserved: reserved}, err
	})
	if err != nil {
		return nil, s.failClosed(ctx, resource, err)
	}

	if !out.reserved {
		return nil, &DeniedError{
			Resource: resource,
			Code:     CodeLimitReached,
			Reason:   fmt.Sprintf("%s limit reached (%d)", resource, limit),
			Action:   subscriptions.ActionUpgrade,
			Used:     out.hold.Used,
			Limit:    limit,
		}
	}

	return &Reservation{CompanyID: companyID, Resource: resource, HoldID: out.hold.ID, Used: out.hold.Used, Limit: limit}, nil
}

// limit resolves the plan ceiling for resource, denying when the subscription is unusable.
func (s *Service) limit(ctx context.Context, companyID uuid.UUID, resource string) (int, error) {
	sub, found, err := s.subs.Current(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("load subscription: %w", err)
	}

	var current *subscriptions.Subscription
	if found {
		current = &sub
	}
	ev := subscriptions.Evaluate(current, s.subs.Now())
	if !ev.Status.Usable() {
		return 0, &DeniedError{
			Resource: resource,
			Code:     string(ev.Status),
			Reason:   ev.Message(),
			Action:   ev.Action,
		}
	}

	plan, ok := s.subs.Plan(sub.PlanType)
	if !ok {
		return 0, fmt.Errorf("plan %q of company %s: %w", sub.PlanType, companyID, plans.ErrUnknownPlan)
	}
	limit, ok := plan.Limit(resource)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	return limit, nil
}

// failClosed turns timeouts and exhausted retries into denials. Other errors pass through.
func (s *Service) failClosed(ctx context.Context, resource string, err error) error {
	var denied *DeniedError
	switch {
	case errors.As(err, &denied):
		return denied
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.logger.Warn("quota reservation timed out", zap.String("resource", resource), zap.Error(err))
		return &DeniedError{Resource: resource, Code: CodeTimeout, Reason: "quota check timed out"}
	case errors.Is(err, retry.ErrExhausted):
		s.logger.Warn("quota reservation kept conflicting", zap.String("resource", resource), zap.Error(err))
		return &DeniedError{Resource: resource, Code: CodeConflict, Reason: "quota check could not complete, try again"}
	}
	return err
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Release returns the slot held by res. Releasing twice, or after Settle, is a no-op.
func (s *Service) Release(ctx context.Context, res *Reservation) error {
	if res == nil || !res.done.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.counter.ReleaseHold(context.WithoutCancel(ctx), res.CompanyID, res.Resource, res.HoldID); err != nil {
		res.done.Store(false)
		return fmt.Errorf("release %s slot: %w", res.Resource, err)
	}
	return nil
}

// Settle marks the resource behind res as committed so the slot stays taken. A failed settle
// leaves the hold to expire; the slot is still counted either way.
func (s *Service) Settle(ctx context.Context, res *Reservation) error {
	if res == nil || !res.done.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.counter.Settle(context.WithoutCancel(ctx), res.HoldID); err != nil {
		return fmt.Errorf("settle %s slot: %w", res.Resource, err)
	}
	return nil
}

// ReleaseSlot frees one slot after a resource row has been deleted.
func (s *Service) ReleaseSlot(ctx context.Context, companyID uuid.UUID, resource string) error {
	return s.counter.Release(ctx, companyID, resource)
}

// ReserveAndCreate reserves a slot, runs create, and gives the slot back if create fails.
func (s *Service) ReserveAndCreate(ctx context.Context, companyID uuid.UUID, resource string, create func(ctx context.Context) error) error {
	res, err := s.CheckAndReserve(ctx, companyID, resource)
	if err != nil {
		return err
	}
	if err := create(ctx); err != nil {
		if relErr := s.Release(ctx, res); relErr != nil {
			s.logger.Error("release after failed create", zap.String("company_id", companyID.String()), zap.Error(relErr))
		}
		return err
	}
	if err := s.Settle(ctx, res); err != nil {
		s.logger.Warn("settle after create", zap.String("company_id", companyID.String()), zap.Error(err))
	}
	return nil
}

// Usage reports used, limit and remaining slots per resource kind. Without a usable
// subscription every limit is zero.
func (s *Service) Usage(ctx context.Context, companyID uuid.UUID) ([]Usage, error) {
	used, err := s.counter.Usage(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return s.withLimits(ctx, companyID, used)
}

// Reconcile recomputes the counters of a company from its real rows and pending reservations.
func (s *Service) Reconcile(ctx context.Context, companyID uuid.UUID) ([]Usage, error) {
	used, err := s.counter.Reconcile(ctx, companyID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("usage reconciled", zap.String("company_id", companyID.String()), zap.Any("used", used))
	return s.withLimits(ctx, companyID, used)
}

func (s *Service) withLimits(ctx context.Context, companyID uuid.UUID, used map[string]int) ([]Usage, error) {
	var plan *plans.Plan
	sub, found, err := s.subs.Current(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if found && subscriptions.Evaluate(&sub, s.subs.Now()).Status.Usable() {
		if p, ok := s.subs.Plan(sub.PlanType); ok {
			plan = &p
		}
	}

	out := make([]Usage, 0, len(Resources()))
	for _, resource := range Resources() {
		u := Usage{Resource: resource, Used: used[resource]}
		if plan != nil {
			u.Limit, _ = plan.Limit(resource)
		}
		u.Remaining = max(u.Limit-u.Used, 0)
		out = append(out, u)
	}
	return out, nil
}
