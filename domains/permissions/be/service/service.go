package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidGrant  = errors.New("invalid permission grant")
	ErrUnknownModule = errors.New("unknown module")
)

// Module is a business area guarded by per-user grants.
type Module string

const (
	ModuleEmployees   Module = "employees"
	ModuleVehicles    Module = "vehicles"
	ModuleDepartments Module = "departments"
	ModuleAttendance  Module = "attendance"
	ModuleSalaries    Module = "salaries"
	ModuleDocuments   Module = "documents"
	ModuleReports     Module = "reports"
	ModuleUsers       Module = "users"
)

// Modules lists every grantable module in display order.
func Modules() []Module {
	return []Module{
		ModuleEmployees, ModuleVehicles, ModuleDepartments, ModuleAttendance,
		ModuleSalaries, ModuleDocuments, ModuleReports, ModuleUsers,
	}
}

// Valid reports whether m is a known module.
func (m Module) Valid() bool {
	for _, known := range Modules() {
		if m == known {
			return true
		}
	}
	return false
}

// Action is the operation checked against a grant.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Grant is the permission of one user on one module. A missing grant means no access.
type Grant struct {
	Module    Module
	CanView   bool
	CanCreate bool
	CanEdit   bool
	CanDelete bool
}

// Allows reports whether g covers action.
func (g Grant) Allows(action Action) bool {
	switch action {
	case ActionView:
		return g.CanView
	case ActionCreate:
		return g.CanCreate
	case ActionEdit:
		return g.CanEdit
	case ActionDelete:
		return g.CanDelete
	}
	return false
}

// Repository persists grants.
type Repository interface {
	Get(ctx context.Context, userID uuid.UUID, module Module) (Grant, bool, error)
	List(ctx context.Context, scope tenant.Scope, userID uuid.UUID) ([]Grant, error)
	Replace(ctx context.Context, scope tenant.Scope, userID uuid.UUID, grants []Grant) ([]Grant, error)
}

// Service answers permission checks and manages grants.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New constructs a Service.
func New(repo Repository, logger *zap.Logger) *Service {
	if repo == nil {
		panic("permissions repo is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Service{repo: repo, logger: logger}
}

// Allowed reports whether userID holds action on module.
func (s *Service) Allowed(ctx context.Context, userID uuid.UUID, module Module, action Action) (bool, error) {
	grant, found, err := s.repo.Get(ctx, userID, module)
	if err != nil {
		return false, fmt.Errorf("load grant: %w", err)
	}
	return found && grant.Allows(action), nil
}

// List returns the grants of a user visible to scope.
func (s *Service) List(ctx context.Context, scope tenant.Scope, userID uuid.UUID) ([]Grant, error) {
	return s.repo.List(ctx, scope, userID)
}

// Replace swaps the grant set of a user. Grants that allow nothing are dropped; a module listed
// twice is rejected.
func (s *Service) Replace(ctx context.Context, scope tenant.Scope, userID uuid.UUID, grants []Grant) ([]Grant, error) {
	seen := make(map[Module]struct{}, len(grants))
	kept := make([]Grant, 0, len(grants))
	for _, g := range grants {
		g.Module = Module(strings.TrimSpace(string(g.Module)))
		if !g.Module.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModule, g.Module)
		}
		if _, dup := seen[g.Module]; dup {
			return nil, fmt.Errorf("%w: module %q listed twice", ErrInvalidGrant, g.Module)
		}
		seen[g.Module] = struct{}{}
		if !g.CanView && !g.CanCreate && !g.CanEdit && !g.CanDelete {
			continue
		}
		kept = append(kept, g)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Module < kept[j].Module })

	out, err := s.repo.Replace(ctx, scope, userID, kept)
	if err != nil {
		return nil, err
	}
	s.logger.Info("permissions replaced",
		zap.String("user_id", userID.String()),
		zap.Int("grants", len(out)),
		zap.String("changed_by", scope.UserID.String()),
	)
	return out, nil
}
