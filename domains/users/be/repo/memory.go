package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// MemoryRepository keeps users in process. It backs unit tests and the dev CLI.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]persistence.User
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[uuid.UUID]persistence.User)}
}

func owns(scope tenant.Scope, u persistence.User) bool {
	if !scope.UserType.Valid() {
		return false
	}
	filter, restricted := scope.CompanyFilter()
	if !restricted {
		return true
	}
	return u.CompanyID != nil && *u.CompanyID == filter
}

func (r *MemoryRepository) Create(ctx context.Context, params persistence.CreateUserParams) (persistence.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(params.Email))
	for _, u := range r.users {
		if strings.ToLower(u.Email) == email {
			return persistence.User{}, persistence.ErrUserConflict
		}
	}
	role := strings.TrimSpace(params.Role)
	if role == "" {
		role = "user"
	}

	now := time.Now().UTC()
	u := persistence.User{
		UserID:    params.UserID,
		CompanyID: params.CompanyID,
		Email:     strings.TrimSpace(params.Email),
		FullName:  strings.TrimSpace(params.FullName),
		Role:      role,
		UserType:  params.UserType,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.users[u.UserID] = u
	return u, nil
}

func (r *MemoryRepository) List(ctx context.Context, scope tenant.Scope, params persistence.ListUsersParams) (persistence.ListUsersResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]persistence.User, 0)
	for _, u := range r.users {
		if !owns(scope, u) {
			continue
		}
		if params.Email != nil && !strings.Contains(strings.ToLower(u.Email), strings.ToLower(*params.Email)) {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	page, size := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := min((page-1)*size, len(matched))
	end := min(start+size, len(matched))

	return persistence.ListUsersResult{Users: matched[start:end], TotalItems: len(matched)}, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (persistence.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (persistence.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u, nil
		}
	}
	return persistence.User{}, persistence.ErrUserNotFound
}

func (r *MemoryRepository) GetScoped(ctx context.Context, scope tenant.Scope, id uuid.UUID) (persistence.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok || !owns(scope, u) {
		return persistence.User{}, persistence.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryRepository) SetActive(ctx context.Context, scope tenant.Scope, id uuid.UUID, active bool) (persistence.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || !owns(scope, u) {
		return persistence.User{}, persistence.ErrUserNotFound
	}
	u.IsActive = active
	u.UpdatedAt = time.Now().UTC()
	r.users[id] = u
	return u, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || !owns(scope, u) {
		return persistence.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
