package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/domains/permissions/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type postgresRepository struct {
	store *persistence.PermissionStore
}

// NewPostgresRepository adapts the shared permission store.
func NewPostgresRepository(store *persistence.PermissionStore) service.Repository {
	if store == nil {
		panic("permission store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) Get(ctx context.Context, userID uuid.UUID, module service.Module) (service.Grant, bool, error) {
	rec, found, err := r.store.Get(ctx, userID, string(module))
	if err != nil || !found {
		return service.Grant{}, found, err
	}
	return toGrant(rec), true, nil
}

func (r *postgresRepository) List(ctx context.Context, scope tenant.Scope, userID uuid.UUID) ([]service.Grant, error) {
	recs, err := r.store.List(ctx, scope, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return toGrants(recs), nil
}

func (r *postgresRepository) Replace(ctx context.Context, scope tenant.Scope, userID uuid.UUID, grants []service.Grant) ([]service.Grant, error) {
	recs := make([]persistence.PermissionRecord, 0, len(grants))
	for _, g := range grants {
		recs = append(recs, persistence.PermissionRecord{
			UserID:    userID,
			Module:    string(g.Module),
			CanView:   g.CanView,
			CanCreate: g.CanCreate,
			CanEdit:   g.CanEdit,
			CanDelete: g.CanDelete,
		})
	}
	out, err := r.store.Replace(ctx, scope, userID, recs)
	if err != nil {
		return nil, mapError(err)
	}
	return toGrants(out), nil
}

func mapError(err error) error {
	if errors.Is(err, persistence.ErrUserNotFound) || errors.Is(err, persistence.ErrScopeRequired) {
		return service.ErrUserNotFound
	}
	return err
}

func toGrants(recs []persistence.PermissionRecord) []service.Grant {
	out := make([]service.Grant, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toGrant(rec))
	}
	return out
}

func toGrant(rec persistence.PermissionRecord) service.Grant {
	return service.Grant{
		Module:    service.Module(rec.Module),
		CanView:   rec.CanView,
		CanCreate: rec.CanCreate,
		CanEdit:   rec.CanEdit,
		CanDelete: rec.CanDelete,
	}
}
