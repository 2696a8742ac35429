package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/domains/resources/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// MemoryRepository keeps employees and vehicles in process.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]service.Resource
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[uuid.UUID]service.Resource)}
}

// Count returns how many rows of kind a company owns.
func (r *MemoryRepository) Count(companyID uuid.UUID, kind string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, row := range r.rows {
		if row.CompanyID == companyID && string(row.Kind) == kind {
			n++
		}
	}
	return n
}

func visible(scope tenant.Scope, row service.Resource) bool {
	filter, restricted := scope.CompanyFilter()
	return scope.UserType.Valid() && (!restricted || filter == row.CompanyID)
}

func (r *MemoryRepository) Insert(ctx context.Context, scope tenant.Scope, kind service.Kind, label string) (service.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := service.Resource{
		ID:        uuid.New(),
		CompanyID: scope.CompanyID,
		Kind:      kind,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	r.rows[row.ID] = row
	return row, nil
}

func (r *MemoryRepository) List(ctx context.Context, scope tenant.Scope, kind service.Kind, page, pageSize int) ([]service.Resource, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]service.Resource, 0)
	for _, row := range r.rows {
		if row.Kind == kind && visible(scope, row) {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	start := min((page-1)*pageSize, len(matched))
	end := min(start+pageSize, len(matched))
	return matched[start:end], len(matched), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, scope tenant.Scope, kind service.Kind, id uuid.UUID) (service.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || row.Kind != kind || !visible(scope, row) {
		return service.Resource{}, service.ErrNotFound
	}
	delete(r.rows, id)
	return row, nil
}

var _ service.Repository = (*MemoryRepository)(nil)
