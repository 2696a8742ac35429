package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/domains/notifications/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// MemoryRepository keeps notifications in process. A single mutex makes AppendIfNoneSince atomic.
type MemoryRepository struct {
	mu   sync.Mutex
	rows []service.Notification
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) AppendIfNoneSince(ctx context.Context, n service.Notification, since time.Time) (service.Notification, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows {
		if row.CompanyID == n.CompanyID && row.Type == n.Type && row.CreatedAt.After(since) {
			return service.Notification{}, false, nil
		}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	r.rows = append(r.rows, n)
	return n, true, nil
}

func visible(scope tenant.Scope, companyID uuid.UUID) bool {
	filter, restricted := scope.CompanyFilter()
	return scope.UserType.Valid() && (!restricted || filter == companyID)
}

func (r *MemoryRepository) List(ctx context.Context, scope tenant.Scope, unreadOnly bool, limit int) ([]service.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out := make([]service.Notification, 0)
	for _, row := range r.rows {
		if !visible(scope, row.CompanyID) || (unreadOnly && row.IsRead) {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) MarkRead(ctx context.Context, scope tenant.Scope, id uuid.UUID) (service.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, row := range r.rows {
		if row.ID == id && visible(scope, row.CompanyID) {
			r.rows[i].IsRead = true
			return r.rows[i], nil
		}
	}
	return service.Notification{}, service.ErrNotFound
}

var _ service.Repository = (*MemoryRepository)(nil)
