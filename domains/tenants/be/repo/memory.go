package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/domains/tenants/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and early development.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]service.Company
	byName     map[string]uuid.UUID
	dependents map[uuid.UUID]service.Dependents
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[uuid.UUID]service.Company),
		byName:     make(map[string]uuid.UUID),
		dependents: make(map[uuid.UUID]service.Dependents),
	}
}

// SetDependents records the dependent counts Delete will check for id.
func (r *MemoryRepository) SetDependents(id uuid.UUID, d service.Dependents) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dependents[id] = d
}

// Exists reports whether a company is registered.
func (r *MemoryRepository) Exists(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

func visible(scope tenant.Scope, id uuid.UUID) bool {
	filter, restricted := scope.CompanyFilter()
	return scope.UserType.Valid() && (!restricted || filter == id)
}

func (r *MemoryRepository) List(ctx context.Context, scope tenant.Scope, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Company, 0, len(r.byID))
	for _, c := range r.byID {
		if !visible(scope, c.ID) {
			continue
		}
		if opts.Status != nil && c.Status != *opts.Status {
			continue
		}
		items = append(items, c)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	return service.ListResult{
		Companies:  items[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalItems: len(items),
		TotalPages: (len(items) + pageSize - 1) / pageSize,
	}, nil
}

func (r *MemoryRepository) Create(ctx context.Context, c service.Company) (service.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(c.Name)
	if _, exists := r.byName[key]; exists {
		return service.Company{}, service.ErrConflictName
	}

	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	r.byID[c.ID] = c
	r.byName[key] = c.ID
	return c, nil
}

func (r *MemoryRepository) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (service.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok || !visible(scope, id) {
		return service.Company{}, service.ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepository) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, input service.UpdateInput) (service.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok || !visible(scope, id) {
		return service.Company{}, service.ErrNotFound
	}

	if input.Name != nil {
		key := strings.ToLower(strings.TrimSpace(*input.Name))
		if owner, exists := r.byName[key]; exists && owner != id {
			return service.Company{}, service.ErrConflictName
		}
		delete(r.byName, strings.ToLower(c.Name))
		c.Name = strings.TrimSpace(*input.Name)
		r.byName[key] = id
	}
	if input.ContactEmail != nil {
		c.ContactEmail = input.ContactEmail
	}
	if input.ContactPhone != nil {
		c.ContactPhone = input.ContactPhone
	}
	if input.Address != nil {
		c.Address = input.Address
	}
	if input.Status != nil {
		c.Status = *input.Status
	}
	c.UpdatedAt = time.Now().UTC()

	r.byID[id] = c
	return c, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok || !visible(scope, id) {
		return service.ErrNotFound
	}
	if d := r.dependents[id]; d.Employees > 0 || d.Vehicles > 0 || d.Users > 0 {
		return &service.DependentsError{Dependents: d}
	}

	delete(r.byID, id)
	delete(r.byName, strings.ToLower(c.Name))
	delete(r.dependents, id)
	return nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
