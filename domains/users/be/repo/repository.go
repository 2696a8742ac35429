package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// Repository defines the persistence operations required by the users service.
type Repository interface {
	Create(ctx context.Context, params persistence.CreateUserParams) (persistence.User, error)
	List(ctx context.Context, scope tenant.Scope, params persistence.ListUsersParams) (persistence.ListUsersResult, error)
	// Get and GetByEmail ignore tenancy; they resolve credentials before a scope exists.
	Get(ctx context.Context, id uuid.UUID) (persistence.User, error)
	GetByEmail(ctx context.Context, email string) (persistence.User, error)
	GetScoped(ctx context.Context, scope tenant.Scope, id uuid.UUID) (persistence.User, error)
	SetActive(ctx context.Context, scope tenant.Scope, id uuid.UUID, active bool) (persistence.User, error)
	Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error
}

type postgresRepository struct {
	store *persistence.UserStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.UserStore) Repository {
	if store == nil {
		panic("user store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) Create(ctx context.Context, params persistence.CreateUserParams) (persistence.User, error) {
	return r.store.CreateUser(ctx, params)
}

func (r *postgresRepository) List(ctx context.Context, scope tenant.Scope, params persistence.ListUsersParams) (persistence.ListUsersResult, error) {
	return r.store.ListUsers(ctx, scope, params)
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (persistence.User, error) {
	return r.store.GetUser(ctx, id)
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (persistence.User, error) {
	return r.store.GetUserByEmail(ctx, email)
}

func (r *postgresRepository) GetScoped(ctx context.Context, scope tenant.Scope, id uuid.UUID) (persistence.User, error) {
	return r.store.GetScopedUser(ctx, scope, id)
}

func (r *postgresRepository) SetActive(ctx context.Context, scope tenant.Scope, id uuid.UUID, active bool) (persistence.User, error) {
	return r.store.SetActive(ctx, scope, id, active)
}

func (r *postgresRepository) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	return r.store.DeleteUser(ctx, scope, id)
}
