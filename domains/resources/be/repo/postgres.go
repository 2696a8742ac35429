package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/domains/resources/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type postgresRepository struct {
	store *persistence.ResourceStore
}

// NewPostgresRepository adapts the shared resource store.
func NewPostgresRepository(store *persistence.ResourceStore) service.Repository {
	if store == nil {
		panic("resource store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) Insert(ctx context.Context, scope tenant.Scope, kind service.Kind, label string) (service.Resource, error) {
	rec, err := r.store.Insert(ctx, scope, string(kind), label)
	if err != nil {
		return service.Resource{}, mapError(err)
	}
	return toResource(kind, rec), nil
}

func (r *postgresRepository) List(ctx context.Context, scope tenant.Scope, kind service.Kind, page, pageSize int) ([]service.Resource, int, error) {
	recs, total, err := r.store.List(ctx, scope, string(kind), page, pageSize)
	if err != nil {
		return nil, 0, mapError(err)
	}
	out := make([]service.Resource, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResource(kind, rec))
	}
	return out, total, nil
}

func (r *postgresRepository) Delete(ctx context.Context, scope tenant.Scope, kind service.Kind, id uuid.UUID) (service.Resource, error) {
	rec, err := r.store.Delete(ctx, scope, string(kind), id)
	if err != nil {
		return service.Resource{}, mapError(err)
	}
	return toResource(kind, rec), nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrResourceNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrScopeRequired):
		return service.ErrUnboundScope
	case errors.Is(err, persistence.ErrUnknownResource):
		return service.ErrInvalidInput
	}
	return err
}

func toResource(kind service.Kind, rec persistence.ResourceRecord) service.Resource {
	return service.Resource{
		ID:        rec.ID,
		CompanyID: rec.CompanyID,
		Kind:      kind,
		Label:     rec.Label,
		CreatedAt: rec.CreatedAt,
	}
}
