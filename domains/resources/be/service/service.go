package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid resource input")
	ErrUnboundScope = errors.New("resource operations need a company")
)

// Kind is a quota-bearing business resource.
type Kind string

const (
	Employees Kind = "employees"
	Vehicles  Kind = "vehicles"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == Employees || k == Vehicles
}

// Resource is a minimal employee or vehicle row.
type Resource struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Kind      Kind
	Label     string
	CreatedAt time.Time
}

// Page is one page of resources.
type Page struct {
	Items      []Resource
	Page       int
	PageSize   int
	TotalItems int
}

type Repository interface {
	Insert(ctx context.Context, scope tenant.Scope, kind Kind, label string) (Resource, error)
	List(ctx context.Context, scope tenant.Scope, kind Kind, page, pageSize int) ([]Resource, int, error)
	Delete(ctx context.Context, scope tenant.Scope, kind Kind, id uuid.UUID) (Resource, error)
}

// SlotReleaser gives a quota slot back after a delete.
type SlotReleaser interface {
	ReleaseSlot(ctx context.Context, companyID uuid.UUID, kind string) error
}

type Service struct {
	repo     Repository
	releaser SlotReleaser
	logger   *zap.Logger
}

func New(repo Repository, releaser SlotReleaser, logger *zap.Logger) *Service {
	if repo == nil {
		panic("resources repo is required")
	}
	if releaser == nil {
		panic("slot releaser is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Service{repo: repo, releaser: releaser, logger: logger}
}

// Create stores a resource for the scope's company. The quota slot must already be reserved.
func (s *Service) Create(ctx context.Context, scope tenant.Scope, kind Kind, label string) (Resource, error) {
	if !kind.Valid() {
		return Resource{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return Resource{}, fmt.Errorf("%w: label is required", ErrInvalidInput)
	}
	if !scope.Bound() {
		return Resource{}, ErrUnboundScope
	}
	return s.repo.Insert(ctx, scope, kind, label)
}

func (s *Service) List(ctx context.Context, scope tenant.Scope, kind Kind, page, pageSize int) (Page, error) {
	if !kind.Valid() {
		return Page{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	items, total, err := s.repo.List(ctx, scope, kind, page, pageSize)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Page: page, PageSize: pageSize, TotalItems: total}, nil
}

// Delete removes a resource and returns its quota slot.
func (s *Service) Delete(ctx context.Context, scope tenant.Scope, kind Kind, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, scope, kind, id)
	if err != nil {
		return err
	}
	if err := s.releaser.ReleaseSlot(context.WithoutCancel(ctx), deleted.CompanyID, string(kind)); err != nil {
		s.logger.Warn("quota slot not released; reconcile will repair it",
			zap.String("company_id", deleted.CompanyID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	return nil
}
