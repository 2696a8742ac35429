package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/domains/entitlements/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
)

type postgresCounter struct {
	store *persistence.UsageStore
}

// NewPostgresCounter adapts the resource_usage store.
func NewPostgresCounter(store *persistence.UsageStore) service.Counter {
	if store == nil {
		panic("usage store is required")
	}
	return &postgresCounter{store: store}
}

func (c *postgresCounter) Reserve(ctx context.Context, companyID uuid.UUID, resource string, limit int) (service.Hold, bool, error) {
	hold, reserved, err := c.store.Reserve(ctx, companyID, resource, limit)
	return service.Hold{ID: hold.ID, Used: hold.Used}, reserved, mapError(err)
}

func (c *postgresCounter) Settle(ctx context.Context, holdID uuid.UUID) error {
	return mapError(c.store.Settle(ctx, holdID))
}

func (c *postgresCounter) ReleaseHold(ctx context.Context, companyID uuid.UUID, resource string, holdID uuid.UUID) error {
	return mapError(c.store.ReleaseHold(ctx, companyID, resource, holdID))
}

func (c *postgresCounter) Release(ctx context.Context, companyID uuid.UUID, resource string) error {
	return mapError(c.store.Release(ctx, companyID, resource))
}

func (c *postgresCounter) Usage(ctx context.Context, companyID uuid.UUID) (map[string]int, error) {
	used, err := c.store.Usage(ctx, companyID)
	return used, mapError(err)
}

func (c *postgresCounter) Reconcile(ctx context.Context, companyID uuid.UUID) (map[string]int, error) {
	used, err := c.store.Reconcile(ctx, companyID)
	return used, mapError(err)
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case persistence.IsTransactionConflict(err):
		return errors.Join(service.ErrConflict, err)
	case errors.Is(err, persistence.ErrUnknownResource):
		return service.ErrUnknownResource
	case errors.Is(err, persistence.ErrCompanyNotFound):
		return service.ErrCompanyNotFound
	}
	return err
}
