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

// ResourceRecord is a minimal tenant-owned row (an employee or a vehicle).
type ResourceRecord struct {
	ID        uuid.UUID `db:"id"`
	CompanyID uuid.UUID `db:"company_id"`
	Label     string    `db:"label"`
	CreatedAt time.Time `db:"created_at"`
}

// ErrResourceNotFound indicates a missing resource or one outside the caller scope.
var ErrResourceNotFound = errors.New("resource not found")

type resourceTable struct {
	name     string
	idColumn string
}

var resourceTables = map[string]resourceTable{
	"employees": {name: "employees", idColumn: "employee_id"},
	"vehicles":  {name: "vehicles", idColumn: "vehicle_id"},
}

// ResourceStore provides access to the employees and vehicles tables.
type ResourceStore struct {
	pool *pgxpool.Pool
}

// NewResourceStore creates a store; assumes BootstrapSchema already ran.
func NewResourceStore(pool *pgxpool.Pool) (*ResourceStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ResourceStore{pool: pool}, nil
}

func lookupResource(kind string) (resourceTable, error) {
	t, ok := resourceTables[kind]
	if !ok {
		return resourceTable{}, fmt.Errorf("%w: %s", ErrUnknownResource, kind)
	}
	return t, nil
}

// Insert stores a resource owned by the scope's company.
func (s *ResourceStore) Insert(ctx context.Context, scope tenant.Scope, kind, label string) (ResourceRecord, error) {
	t, err := lookupResource(kind)
	if err != nil {
		return ResourceRecord{}, err
	}
	scope, err = requireBound(scope)
	if err != nil {
		return ResourceRecord{}, err
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (%s, company_id, label) VALUES ($1, $2, $3)
        RETURNING %s, company_id, label, created_at
    `, t.name, t.idColumn, t.idColumn), uuid.New(), scope.CompanyID, strings.TrimSpace(label))

	rec, err := scanResource(row)
	if err != nil && isForeignKeyViolation(err) {
		return ResourceRecord{}, ErrCompanyNotFound
	}
	return rec, err
}

// List returns the resources visible to scope, newest first.
func (s *ResourceStore) List(ctx context.Context, scope tenant.Scope, kind string, page, pageSize int) ([]ResourceRecord, int, error) {
	t, err := lookupResource(kind)
	if err != nil {
		return nil, 0, err
	}
	predicate, args, err := scopePredicate(scope, "company_id", nil)
	if err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)

	var total int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, t.name, predicate), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", kind, err)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s, company_id, label, created_at FROM %s
        WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d
    `, t.idColumn, t.name, predicate, pageSize, (page-1)*pageSize), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	out := make([]ResourceRecord, 0)
	for rows.Next() {
		rec, err := scanResource(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// Delete removes a resource visible to scope and returns the deleted row.
func (s *ResourceStore) Delete(ctx context.Context, scope tenant.Scope, kind string, id uuid.UUID) (ResourceRecord, error) {
	t, err := lookupResource(kind)
	if err != nil {
		return ResourceRecord{}, err
	}
	predicate, args, err := scopePredicate(scope, "company_id", []any{id})
	if err != nil {
		return ResourceRecord{}, err
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        DELETE FROM %s WHERE %s = $1 AND %s
        RETURNING %s, company_id, label, created_at
    `, t.name, t.idColumn, predicate, t.idColumn), args...)
	return scanResource(row)
}

func scanResource(row pgx.Row) (ResourceRecord, error) {
	var rec ResourceRecord
	if err := row.Scan(&rec.ID, &rec.CompanyID, &rec.Label, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ResourceRecord{}, ErrResourceNotFound
		}
		return ResourceRecord{}, err
	}
	return rec, nil
}
