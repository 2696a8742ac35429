package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound      = errors.New("company not found")
	ErrConflictName  = errors.New("company name already exists")
	ErrHasDependents = errors.New("company still owns employees, vehicles or users")
	ErrInvalidInput  = errors.New("invalid company input")
	ErrForbidden     = errors.New("only system owners change a company's status")
)

// Status is the administrative state of a company.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Company is a tenant of the platform.
type Company struct {
	ID           uuid.UUID
	Name         string
	ContactEmail *string
	ContactPhone *string
	Address      *string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Dependents counts the rows that keep a company from being deleted.
type Dependents struct {
	Employees int
	Vehicles  int
	Users     int
}

// DependentsError is returned by Delete when the company still owns data.
type DependentsError struct {
	Dependents Dependents
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("company has %d employees, %d vehicles and %d users",
		e.Dependents.Employees, e.Dependents.Vehicles, e.Dependents.Users)
}

func (e *DependentsError) Unwrap() error { return ErrHasDependents }

// CreateInput represents the request to create a company.
type CreateInput struct {
	Name         string
	ContactEmail *string
	ContactPhone *string
	Address      *string
	Status       Status
	// StartTrial opens the default trial subscription right after the company is stored.
	StartTrial bool
}

// UpdateInput represents mutable fields for a company.
type UpdateInput struct {
	Name         *string
	ContactEmail *string
	ContactPhone *string
	Address      *string
	Status       *Status
}

// ListResult wraps paginated companies.
type ListResult struct {
	Companies  []Company
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Status   *Status
}

// Repository abstracts persistence. Every read and write is restricted by scope.
type Repository interface {
	List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error)
	Create(ctx context.Context, c Company) (Company, error)
	Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Company, error)
	Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, input UpdateInput) (Company, error)
	Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error
}

// TrialFunc opens the initial trial subscription of a new company.
type TrialFunc func(ctx context.Context, companyID uuid.UUID) error

// Option customizes a Service.
type Option func(*Service)

// WithTrial sets the function used when CreateInput.StartTrial is set.
func WithTrial(fn TrialFunc) Option {
	return func(s *Service) { s.trial = fn }
}

// Service provides the tenant directory.
type Service struct {
	repo   Repository
	logger *zap.Logger
	trial  TrialFunc
}

// New constructs a Service with required dependencies.
func New(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	s := &Service{repo: repo, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List companies visible to scope.
func (s *Service) List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, scope, opts)
}

// Create registers a company and, when requested, opens its trial. A failed trial removes the
// company again so callers never observe a company without its initial subscription.
func (s *Service) Create(ctx context.Context, input CreateInput) (Company, error) {
	if err := validateCreate(&input); err != nil {
		return Company{}, err
	}

	c, err := s.repo.Create(ctx, Company{
		ID:           uuid.New(),
		Name:         input.Name,
		ContactEmail: input.ContactEmail,
		ContactPhone: input.ContactPhone,
		Address:      input.Address,
		Status:       input.Status,
	})
	if err != nil {
		return Company{}, err
	}
	s.logger.Info("company created", zap.String("company_id", c.ID.String()), zap.String("name", c.Name))

	if !input.StartTrial || s.trial == nil {
		return c, nil
	}

	if err := s.trial(ctx, c.ID); err != nil {
		if delErr := s.repo.Delete(context.WithoutCancel(ctx), tenant.System(), c.ID); delErr != nil {
			s.logger.Error("rollback of company without trial failed", zap.String("company_id", c.ID.String()), zap.Error(delErr))
		}
		return Company{}, fmt.Errorf("start trial: %w", err)
	}
	return c, nil
}

// Get returns a company visible to scope.
func (s *Service) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Company, error) {
	return s.repo.Get(ctx, scope, id)
}

// Update applies input to a company visible to scope.
func (s *Service) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, input UpdateInput) (Company, error) {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return Company{}, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if input.Status != nil && !input.Status.Valid() {
		return Company{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *input.Status)
	}
	if input.Status != nil && !scope.IsSystemOwner() {
		return Company{}, ErrForbidden
	}
	if err := validateEmail(input.ContactEmail); err != nil {
		return Company{}, err
	}
	return s.repo.Update(ctx, scope, id, input)
}

// Delete destroys a company that owns no employees, vehicles or users.
func (s *Service) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, scope, id); err != nil {
		return err
	}
	s.logger.Info("company deleted", zap.String("company_id", id.String()))
	return nil
}

func validateCreate(input *CreateInput) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(input.Name) > 200 {
		return fmt.Errorf("%w: name is too long", ErrInvalidInput)
	}
	if input.Status == "" {
		input.Status = StatusActive
	}
	if !input.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, input.Status)
	}
	return validateEmail(input.ContactEmail)
}

func validateEmail(email *string) error {
	if email == nil || strings.TrimSpace(*email) == "" {
		return nil
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(*email)); err != nil {
		return fmt.Errorf("%w: invalid contact email", ErrInvalidInput)
	}
	return nil
}
