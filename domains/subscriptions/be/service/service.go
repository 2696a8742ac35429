package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/plans"
	"github.com/zenGate-Global/nuzum-saas/platform/go/metrics"
)

// Errors returned by the service layer.
var (
	ErrNotFound             = errors.New("subscription not found")
	ErrCompanyNotFound      = errors.New("company not found")
	ErrAlreadySubscribed    = errors.New("company already has an active subscription")
	ErrNoActiveSubscription = errors.New("company has no active subscription")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnknownPlan          = plans.ErrUnknownPlan
)

// TrialPeriod is the length of a trial subscription.
const TrialPeriod = 30 * day

// BillingMonth is the length of one paid month.
const BillingMonth = 30 * day

// Subscription is one row of a company's subscription history.
type Subscription struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	PlanType    plans.Type
	IsTrial     bool
	TrialStart  *time.Time
	TrialEnd    *time.Time
	StartDate   time.Time
	EndDate     *time.Time
	IsActive    bool
	AutoRenew   bool
	QuotedPrice *decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StatusReport is returned by Status.
type StatusReport struct {
	CompanyID      uuid.UUID
	Status         Status
	DaysRemaining  int
	ActionRequired Action
	Message        string
	Subscription   *Subscription
	Plan           *plans.Plan
}

// Repository abstracts persistence.
type Repository interface {
	// Current returns the active subscription, or the most recent one when none is active.
	Current(ctx context.Context, companyID uuid.UUID) (Subscription, error)
	History(ctx context.Context, companyID uuid.UUID) ([]Subscription, error)
	ListActiveEndingBetween(ctx context.Context, from, to time.Time) ([]Subscription, error)
	// WithCompanyLock runs fn while holding the company's exclusive write lock; a non-nil
	// error from fn discards every write made through tx.
	WithCompanyLock(ctx context.Context, companyID uuid.UUID, fn func(tx Tx) error) error
}

// Tx is the write surface available under the company lock.
type Tx interface {
	Current(ctx context.Context, companyID uuid.UUID) (Subscription, error)
	DeactivateActive(ctx context.Context, companyID uuid.UUID) error
	Insert(ctx context.Context, sub Subscription) (Subscription, error)
	Update(ctx context.Context, sub Subscription) (Subscription, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service manages the subscription lifecycle of companies.
type Service struct {
	repo    Repository
	catalog *plans.Catalog
	logger  *zap.Logger
	now     func() time.Time
}

// New constructs a Service with required dependencies.
func New(repo Repository, catalog *plans.Catalog, logger *zap.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("subscriptions repo is required")
	}
	if catalog == nil {
		panic("plan catalog is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	s := &Service{repo: repo, catalog: catalog, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.now()
}

// CreateTrial starts a 30 day trial. Fails with ErrAlreadySubscribed when the company already
// has an active subscription.
func (s *Service) CreateTrial(ctx context.Context, companyID uuid.UUID, planType plans.Type) (Subscription, error) {
	if planType == "" {
		planType = plans.Basic
	}
	if _, ok := s.catalog.Get(planType); !ok {
		return Subscription{}, fmt.Errorf("%w: %q", ErrUnknownPlan, planType)
	}

	var created Subscription
	err := s.repo.WithCompanyLock(ctx, companyID, func(tx Tx) error {
		cur, err := tx.Current(ctx, companyID)
		switch {
		case err == nil && cur.IsActive:
			return ErrAlreadySubscribed
		case err != nil && !errors.Is(err, ErrNotFound):
			return err
		}

		now := s.now()
		end := now.Add(TrialPeriod)
		created, err = tx.Insert(ctx, Subscription{
			ID:         uuid.New(),
			CompanyID:  companyID,
			PlanType:   planType,
			IsTrial:    true,
			TrialStart: &now,
			TrialEnd:   &end,
			StartDate:  now,
			EndDate:    &end,
			IsActive:   true,
			AutoRenew:  false,
		})
		return err
	})
	s.observe("create_trial", companyID, err)
	return created, err
}

// UpgradeToPaid replaces the active subscription with a paid one of durationMonths, atomically.
func (s *Service) UpgradeToPaid(ctx context.Context, companyID uuid.UUID, planType plans.Type, durationMonths int) (Subscription, error) {
	if durationMonths < 1 {
		return Subscription{}, fmt.Errorf("%w: duration must be at least one month", ErrInvalidInput)
	}
	price, err := s.catalog.Quote(planType, durationMonths)
	if err != nil {
		return Subscription{}, err
	}

	var created Subscription
	err = s.repo.WithCompanyLock(ctx, companyID, func(tx Tx) error {
		if err := tx.DeactivateActive(ctx, companyID); err != nil {
			return err
		}

		now := s.now()
		end := now.Add(time.Duration(durationMonths) * BillingMonth)
		var err error
		created, err = tx.Insert(ctx, Subscription{
			ID:          uuid.New(),
			CompanyID:   companyID,
			PlanType:    planType,
			IsTrial:     false,
			StartDate:   now,
			EndDate:     &end,
			IsActive:    true,
			AutoRenew:   true,
			QuotedPrice: &price,
		})
		return err
	})
	s.observe("upgrade", companyID, err)
	return created, err
}

// Extend pushes the end of the active subscription by days. An end date that is unset or
// already past restarts from now.
func (s *Service) Extend(ctx context.Context, companyID uuid.UUID, days int) (Subscription, error) {
	if days < 1 {
		return Subscription{}, fmt.Errorf("%w: days must be positive", ErrInvalidInput)
	}

	var updated Subscription
	err := s.repo.WithCompanyLock(ctx, companyID, func(tx Tx) error {
		cur, err := tx.Current(ctx, companyID)
		if errors.Is(err, ErrNotFound) || (err == nil && !cur.IsActive) {
			return ErrNoActiveSubscription
		}
		if err != nil {
			return err
		}

		now := s.now()
		base := now
		if cur.EndDate != nil && cur.EndDate.After(now) {
			base = *cur.EndDate
		}
		end := base.Add(time.Duration(days) * day)
		cur.EndDate = &end

		updated, err = tx.Update(ctx, cur)
		return err
	})
	s.observe("extend", companyID, err)
	return updated, err
}

// Suspend deactivates the current subscription without touching its dates.
func (s *Service) Suspend(ctx context.Context, companyID uuid.UUID) (Subscription, error) {
	sub, err := s.setActive(ctx, companyID, false)
	s.observe("suspend", companyID, err)
	return sub, err
}

// Activate re-enables the most recent subscription without touching its dates.
func (s *Service) Activate(ctx context.Context, companyID uuid.UUID) (Subscription, error) {
	sub, err := s.setActive(ctx, companyID, true)
	s.observe("activate", companyID, err)
	return sub, err
}

func (s *Service) setActive(ctx context.Context, companyID uuid.UUID, active bool) (Subscription, error) {
	var updated Subscription
	err := s.repo.WithCompanyLock(ctx, companyID, func(tx Tx) error {
		cur, err := tx.Current(ctx, companyID)
		if err != nil {
			return err
		}
		if cur.IsActive == active {
			updated = cur
			return nil
		}
		cur.IsActive = active
		updated, err = tx.Update(ctx, cur)
		return err
	})
	return updated, err
}

// Current returns the company's current subscription; the boolean is false when it never subscribed.
func (s *Service) Current(ctx context.Context, companyID uuid.UUID) (Subscription, bool, error) {
	sub, err := s.repo.Current(ctx, companyID)
	if errors.Is(err, ErrNotFound) {
		return Subscription{}, false, nil
	}
	if err != nil {
		return Subscription{}, false, err
	}
	return sub, true, nil
}

// Status reports the evaluated subscription state of a company.
func (s *Service) Status(ctx context.Context, companyID uuid.UUID) (StatusReport, error) {
	sub, found, err := s.Current(ctx, companyID)
	if err != nil {
		return StatusReport{}, err
	}

	report := StatusReport{CompanyID: companyID}
	var subPtr *Subscription
	if found {
		subPtr = &sub
		report.Subscription = subPtr
		if p, ok := s.catalog.Get(sub.PlanType); ok {
			report.Plan = &p
		}
	}

	ev := Evaluate(subPtr, s.now())
	report.Status = ev.Status
	report.DaysRemaining = ev.DaysRemaining
	report.ActionRequired = ev.Action
	report.Message = ev.Message()
	return report, nil
}

// History returns every subscription row of a company, newest first.
func (s *Service) History(ctx context.Context, companyID uuid.UUID) ([]Subscription, error) {
	return s.repo.History(ctx, companyID)
}

// Plans returns the catalog in order.
func (s *Service) Plans() []plans.Plan {
	return s.catalog.All()
}

// Plan returns one catalog entry.
func (s *Service) Plan(t plans.Type) (plans.Plan, bool) {
	return s.catalog.Get(t)
}

// Quote prices a paid subscription.
func (s *Service) Quote(t plans.Type, months int) (decimal.Decimal, error) {
	return s.catalog.Quote(t, months)
}

// CanAccessFeature reports whether the company's current, usable subscription unlocks feature.
func (s *Service) CanAccessFeature(ctx context.Context, companyID uuid.UUID, feature string) (bool, error) {
	sub, found, err := s.Current(ctx, companyID)
	if err != nil || !found {
		return false, err
	}
	if !Evaluate(&sub, s.now()).Status.Usable() {
		return false, nil
	}
	p, ok := s.catalog.Get(sub.PlanType)
	if !ok {
		return false, nil
	}
	return p.HasFeature(feature), nil
}

// ExpiringWithin lists the active subscriptions ending in (now, now+window].
func (s *Service) ExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]Subscription, error) {
	subs, err := s.repo.ListActiveEndingBetween(ctx, now, now.Add(window))
	if err != nil {
		return nil, err
	}
	out := subs[:0]
	for _, sub := range subs {
		if sub.EndDate != nil && sub.EndDate.After(now) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Service) observe(op string, companyID uuid.UUID, err error) {
	metrics.ObserveSubscriptionWrite(op, err)
	switch {
	case err == nil:
		s.logger.Info("subscription updated", zap.String("operation", op), zap.String("company_id", companyID.String()))
	case errors.Is(err, ErrAlreadySubscribed), errors.Is(err, ErrNoActiveSubscription),
		errors.Is(err, ErrCompanyNotFound), errors.Is(err, ErrNotFound):
		s.logger.Info("subscription change refused", zap.String("operation", op), zap.String("company_id", companyID.String()), zap.Error(err))
	default:
		s.logger.Error("subscription change failed", zap.String("operation", op), zap.String("company_id", companyID.String()), zap.Error(err))
	}
}
