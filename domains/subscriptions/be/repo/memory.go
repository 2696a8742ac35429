package repo

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
)

// errActiveExists mirrors the single-active-subscription unique index.
var errActiveExists = errors.New("company already has an active subscription row")

// MemoryRepository is an in-memory implementation suitable for tests and local development.
type MemoryRepository struct {
	mu     sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
	rows   map[uuid.UUID][]service.Subscription
	exists func(uuid.UUID) bool
}

// NewMemoryRepository constructs a MemoryRepository. companyExists may be nil, in which case
// every company id is accepted.
func NewMemoryRepository(companyExists func(uuid.UUID) bool) *MemoryRepository {
	return &MemoryRepository{
		locks:  make(map[uuid.UUID]*sync.Mutex),
		rows:   make(map[uuid.UUID][]service.Subscription),
		exists: companyExists,
	}
}

func (r *MemoryRepository) snapshot(companyID uuid.UUID) []service.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.rows[companyID])
}

func (r *MemoryRepository) Current(ctx context.Context, companyID uuid.UUID) (service.Subscription, error) {
	return current(r.snapshot(companyID))
}

func (r *MemoryRepository) History(ctx context.Context, companyID uuid.UUID) ([]service.Subscription, error) {
	rows := r.snapshot(companyID)
	slices.Reverse(rows)
	return rows, nil
}

func (r *MemoryRepository) ListActiveEndingBetween(ctx context.Context, from, to time.Time) ([]service.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []service.Subscription
	for _, rows := range r.rows {
		for _, sub := range rows {
			if sub.IsActive && sub.EndDate != nil && !sub.EndDate.Before(from) && !sub.EndDate.After(to) {
				out = append(out, sub)
			}
		}
	}
	slices.SortFunc(out, func(a, b service.Subscription) int { return a.EndDate.Compare(*b.EndDate) })
	return out, nil
}

func (r *MemoryRepository) WithCompanyLock(ctx context.Context, companyID uuid.UUID, fn func(tx service.Tx) error) error {
	if r.exists != nil && !r.exists(companyID) {
		return service.ErrCompanyNotFound
	}

	r.mu.Lock()
	lock, ok := r.locks[companyID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[companyID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	tx := &memoryTx{rows: r.snapshot(companyID)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.rows[companyID] = tx.rows
	r.mu.Unlock()
	return nil
}

// memoryTx stages writes on a private copy that is published only when fn succeeds.
type memoryTx struct {
	rows []service.Subscription
}

func (t *memoryTx) Current(ctx context.Context, companyID uuid.UUID) (service.Subscription, error) {
	return current(t.rows)
}

func (t *memoryTx) DeactivateActive(ctx context.Context, companyID uuid.UUID) error {
	now := time.Now().UTC()
	for i := range t.rows {
		if t.rows[i].IsActive {
			t.rows[i].IsActive = false
			t.rows[i].UpdatedAt = now
		}
	}
	return nil
}

func (t *memoryTx) Insert(ctx context.Context, sub service.Subscription) (service.Subscription, error) {
	if sub.IsActive && slices.ContainsFunc(t.rows, func(s service.Subscription) bool { return s.IsActive }) {
		return service.Subscription{}, errActiveExists
	}
	now := time.Now().UTC()
	sub.CreatedAt, sub.UpdatedAt = now, now
	t.rows = append(t.rows, sub)
	return sub, nil
}

func (t *memoryTx) Update(ctx context.Context, sub service.Subscription) (service.Subscription, error) {
	idx := slices.IndexFunc(t.rows, func(s service.Subscription) bool { return s.ID == sub.ID })
	if idx < 0 {
		return service.Subscription{}, service.ErrNotFound
	}
	if sub.IsActive && slices.ContainsFunc(t.rows, func(s service.Subscription) bool { return s.IsActive && s.ID != sub.ID }) {
		return service.Subscription{}, errActiveExists
	}
	row := t.rows[idx]
	row.EndDate = sub.EndDate
	row.IsActive = sub.IsActive
	row.AutoRenew = sub.AutoRenew
	row.UpdatedAt = time.Now().UTC()
	t.rows[idx] = row
	return row, nil
}

// current picks the active row, else the most recently inserted one.
func current(rows []service.Subscription) (service.Subscription, error) {
	if len(rows) == 0 {
		return service.Subscription{}, service.ErrNotFound
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].IsActive {
			return rows[i], nil
		}
	}
	return rows[len(rows)-1], nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
