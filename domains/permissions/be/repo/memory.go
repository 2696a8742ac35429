package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/domains/permissions/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// CompanyOf reports the company a user belongs to; ok is false for unknown users.
type CompanyOf func(userID uuid.UUID) (companyID uuid.UUID, ok bool)

// MemoryRepository stores grants in process.
type MemoryRepository struct {
	mu        sync.RWMutex
	grants    map[uuid.UUID]map[service.Module]service.Grant
	companyOf CompanyOf
}

// NewMemoryRepository returns a repository that resolves user ownership through companyOf.
func NewMemoryRepository(companyOf CompanyOf) *MemoryRepository {
	if companyOf == nil {
		panic("companyOf is required")
	}
	return &MemoryRepository{
		grants:    make(map[uuid.UUID]map[service.Module]service.Grant),
		companyOf: companyOf,
	}
}

func (r *MemoryRepository) visible(scope tenant.Scope, userID uuid.UUID) bool {
	company, ok := r.companyOf(userID)
	if !ok || !scope.UserType.Valid() {
		return false
	}
	filter, restricted := scope.CompanyFilter()
	return !restricted || filter == company
}

func (r *MemoryRepository) Get(ctx context.Context, userID uuid.UUID, module service.Module) (service.Grant, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.grants[userID][module]
	return g, ok, nil
}

func (r *MemoryRepository) List(ctx context.Context, scope tenant.Scope, userID uuid.UUID) ([]service.Grant, error) {
	if !r.visible(scope, userID) {
		return nil, service.ErrUserNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.Grant, 0, len(r.grants[userID]))
	for _, g := range r.grants[userID] {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out, nil
}

func (r *MemoryRepository) Replace(ctx context.Context, scope tenant.Scope, userID uuid.UUID, grants []service.Grant) ([]service.Grant, error) {
	if !r.visible(scope, userID) {
		return nil, service.ErrUserNotFound
	}

	r.mu.Lock()
	next := make(map[service.Module]service.Grant, len(grants))
	for _, g := range grants {
		next[g.Module] = g
	}
	r.grants[userID] = next
	r.mu.Unlock()

	return r.List(ctx, scope, userID)
}

var _ service.Repository = (*MemoryRepository)(nil)
