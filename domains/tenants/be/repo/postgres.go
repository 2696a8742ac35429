package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/domains/tenants/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// PostgresRepository implements the company repository using the shared persistence layer.
type PostgresRepository struct {
	store *persistence.CompanyStore
}

// NewPostgresRepository constructs a repository backed by CompanyStore.
func NewPostgresRepository(store *persistence.CompanyStore) *PostgresRepository {
	if store == nil {
		panic("company store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) List(ctx context.Context, scope tenant.Scope, opts service.ListOptions) (service.ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	var statusStr *string
	if opts.Status != nil {
		s := string(*opts.Status)
		statusStr = &s
	}

	rows, total, err := r.store.List(ctx, scope, persistence.ListCompaniesParams{Status: statusStr, Page: page, PageSize: size})
	if err != nil {
		return service.ListResult{}, err
	}

	companies := make([]service.Company, 0, len(rows))
	for _, rec := range rows {
		companies = append(companies, toServiceCompany(rec))
	}

	totalPages := (total + size - 1) / size
	return service.ListResult{Companies: companies, Page: page, PageSize: size, TotalItems: total, TotalPages: totalPages}, nil
}

func (r *PostgresRepository) Create(ctx context.Context, c service.Company) (service.Company, error) {
	out, err := r.store.Create(ctx, persistence.CompanyRecord{
		CompanyID:    c.ID,
		Name:         c.Name,
		ContactEmail: c.ContactEmail,
		ContactPhone: c.ContactPhone,
		Address:      c.Address,
		Status:       string(c.Status),
	})
	if err != nil {
		return service.Company{}, mapError(err)
	}
	return toServiceCompany(out), nil
}

func (r *PostgresRepository) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (service.Company, error) {
	rec, err := r.store.Get(ctx, scope, id)
	if err != nil {
		return service.Company{}, mapError(err)
	}
	return toServiceCompany(rec), nil
}

func (r *PostgresRepository) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, input service.UpdateInput) (service.Company, error) {
	params := persistence.UpdateCompanyParams{
		Name:         input.Name,
		ContactEmail: input.ContactEmail,
		ContactPhone: input.ContactPhone,
		Address:      input.Address,
	}
	if input.Status != nil {
		s := string(*input.Status)
		params.Status = &s
	}

	rec, err := r.store.Update(ctx, scope, id, params)
	if err != nil {
		return service.Company{}, mapError(err)
	}
	return toServiceCompany(rec), nil
}

func (r *PostgresRepository) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	return mapError(r.store.Delete(ctx, scope, id))
}

func mapError(err error) error {
	var depErr *persistence.DependentsError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &depErr):
		return &service.DependentsError{Dependents: service.Dependents(depErr.Dependents)}
	case errors.Is(err, persistence.ErrCompanyNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrCompanyConflict):
		return service.ErrConflictName
	case errors.Is(err, persistence.ErrCompanyHasDependents):
		return service.ErrHasDependents
	}
	return err
}

func toServiceCompany(rec persistence.CompanyRecord) service.Company {
	return service.Company{
		ID:           rec.CompanyID,
		Name:         rec.Name,
		ContactEmail: rec.ContactEmail,
		ContactPhone: rec.ContactPhone,
		Address:      rec.Address,
		Status:       service.Status(rec.Status),
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
