package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

// CompaniesTable is the tenant registry.
const CompaniesTable = "companies"

// CompanyRecord represents a row in the companies table.
type CompanyRecord struct {
	CompanyID    uuid.UUID `db:"company_id"`
	Name         string    `db:"name"`
	ContactEmail *string   `db:"contact_email"`
	ContactPhone *string   `db:"contact_phone"`
	Address      *string   `db:"address"`
	Status       string    `db:"status"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// CompanyDependents counts the rows still referencing a company.
type CompanyDependents struct {
	Employees int
	Vehicles  int
	Users     int
}

// Any reports whether at least one dependent row exists.
func (d CompanyDependents) Any() bool {
	return d.Employees > 0 || d.Vehicles > 0 || d.Users > 0
}

var (
	// ErrCompanyNotFound indicates a missing company or one outside the caller scope.
	ErrCompanyNotFound = errors.New("company not found")
	// ErrCompanyConflict indicates a duplicated company name.
	ErrCompanyConflict = errors.New("company conflict")
	// ErrCompanyHasDependents is returned when deleting a company that still owns data.
	ErrCompanyHasDependents = errors.New("company has dependents")
)

// DependentsError carries the counts that blocked a delete.
type DependentsError struct {
	Dependents CompanyDependents
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("company has %d employees, %d vehicles and %d users",
		e.Dependents.Employees, e.Dependents.Vehicles, e.Dependents.Users)
}

func (e *DependentsError) Unwrap() error { return ErrCompanyHasDependents }

// CompanyStore provides access to the companies table.
type CompanyStore struct {
	pool *pgxpool.Pool
}

// NewCompanyStore creates a store; assumes BootstrapSchema already ran.
func NewCompanyStore(pool *pgxpool.Pool) (*CompanyStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &CompanyStore{pool: pool}, nil
}

const companyColumns = `company_id, name, contact_email, contact_phone, address, status, created_at, updated_at`

// Create inserts a new company.
func (s *CompanyStore) Create(ctx context.Context, rec CompanyRecord) (CompanyRecord, error) {
	if rec.CompanyID == uuid.Nil {
		return CompanyRecord{}, errors.New("company id is required")
	}
	if rec.Status == "" {
		rec.Status = "active"
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (company_id, name, contact_email, contact_phone, address, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, CompaniesTable, companyColumns),
		rec.CompanyID, strings.TrimSpace(rec.Name), rec.ContactEmail, rec.ContactPhone, rec.Address, rec.Status,
	)

	out, err := scanCompany(row)
	if err != nil {
		if isUniqueViolation(err) {
			return CompanyRecord{}, ErrCompanyConflict
		}
		return CompanyRecord{}, err
	}
	return out, nil
}

// Get returns a company visible to scope.
func (s *CompanyStore) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (CompanyRecord, error) {
	predicate, args, err := scopePredicate(scope, "company_id", []any{id})
	if err != nil {
		return CompanyRecord{}, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE company_id = $1 AND %s`, companyColumns, CompaniesTable, predicate)
	return scanCompany(s.pool.QueryRow(ctx, query, args...))
}

// ListCompaniesParams captures filters and pagination for List.
type ListCompaniesParams struct {
	Status   *string
	Page     int
	PageSize int
}

// List returns the companies visible to scope, newest first.
func (s *CompanyStore) List(ctx context.Context, scope tenant.Scope, params ListCompaniesParams) ([]CompanyRecord, int, error) {
	page, pageSize := normalizePage(params.Page, params.PageSize)

	predicate, args, err := scopePredicate(scope, "company_id", nil)
	if err != nil {
		return nil, 0, err
	}
	where := "WHERE " + predicate
	if params.Status != nil {
		args = append(args, *params.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s %s", CompaniesTable, where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count companies: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		companyColumns, CompaniesTable, where, pageSize, (page-1)*pageSize)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	records := make([]CompanyRecord, 0)
	for rows.Next() {
		rec, err := scanCompany(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// UpdateCompanyParams represents editable company fields; nil leaves a column untouched.
type UpdateCompanyParams struct {
	Name         *string
	ContactEmail *string
	ContactPhone *string
	Address      *string
	Status       *string
}

// Update applies params to a company visible to scope.
func (s *CompanyStore) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, params UpdateCompanyParams) (CompanyRecord, error) {
	var setParts []string
	args := []any{id}

	set := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, strings.TrimSpace(*value))
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	set("name", params.Name)
	set("contact_email", params.ContactEmail)
	set("contact_phone", params.ContactPhone)
	set("address", params.Address)
	set("status", params.Status)

	if len(setParts) == 0 {
		return s.Get(ctx, scope, id)
	}

	predicate, args, err := scopePredicate(scope, "company_id", args)
	if err != nil {
		return CompanyRecord{}, err
	}

	query := fmt.Sprintf(`
        UPDATE %s SET %s, updated_at = NOW()
        WHERE company_id = $1 AND %s
        RETURNING %s
    `, CompaniesTable, strings.Join(setParts, ", "), predicate, companyColumns)

	out, err := scanCompany(s.pool.QueryRow(ctx, query, args...))
	if err != nil && isUniqueViolation(err) {
		return CompanyRecord{}, ErrCompanyConflict
	}
	return out, err
}

// Dependents counts the employees, vehicles and users owned by a company.
func (s *CompanyStore) Dependents(ctx context.Context, id uuid.UUID) (CompanyDependents, error) {
	return countDependents(ctx, s.pool, id)
}

// Delete removes a company that owns no employees, vehicles or users. Subscriptions,
// notifications and usage counters cascade.
func (s *CompanyStore) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	predicate, args, err := scopePredicate(scope, "company_id", []any{id})
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row lock keeps concurrent inserts (which reference the company) from slipping past the count.
	lock := fmt.Sprintf(`SELECT company_id FROM %s WHERE company_id = $1 AND %s FOR UPDATE`, CompaniesTable, predicate)
	var locked uuid.UUID
	if err := tx.QueryRow(ctx, lock, args...).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCompanyNotFound
		}
		return err
	}

	deps, err := countDependents(ctx, tx, id)
	if err != nil {
		return err
	}
	if deps.Any() {
		return &DependentsError{Dependents: deps}
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE company_id = $1`, CompaniesTable), id); err != nil {
		if isForeignKeyViolation(err) {
			return ErrCompanyHasDependents
		}
		return fmt.Errorf("delete company: %w", err)
	}

	return tx.Commit(ctx)
}

func countDependents(ctx context.Context, q querier, id uuid.UUID) (CompanyDependents, error) {
	var deps CompanyDependents
	err := q.QueryRow(ctx, `
        SELECT
            (SELECT COUNT(*) FROM employees WHERE company_id = $1),
            (SELECT COUNT(*) FROM vehicles WHERE company_id = $1),
            (SELECT COUNT(*) FROM users WHERE company_id = $1)
    `, id).Scan(&deps.Employees, &deps.Vehicles, &deps.Users)
	if err != nil {
		return CompanyDependents{}, fmt.Errorf("count dependents: %w", err)
	}
	return deps, nil
}

func scanCompany(row pgx.Row) (CompanyRecord, error) {
	var rec CompanyRecord
	if err := row.Scan(&rec.CompanyID, &rec.Name, &rec.ContactEmail, &rec.ContactPhone, &rec.Address, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CompanyRecord{}, ErrCompanyNotFound
		}
		return CompanyRecord{}, err
	}
	return rec, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
