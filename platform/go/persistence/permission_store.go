package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

const PermissionsTable = "company_permissions"

// PermissionRecord is one (user, module) grant.
type PermissionRecord struct {
	UserID    uuid.UUID `db:"user_id"`
	Module    string    `db:"module"`
	CanView   bool      `db:"can_view"`
	CanCreate bool      `db:"can_create"`
	CanEdit   bool      `db:"can_edit"`
	CanDelete bool      `db:"can_delete"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PermissionStore provides access to company_permissions.
type PermissionStore struct {
	pool *pgxpool.Pool
	tx   *TxRunner
}

// NewPermissionStore creates a store; assumes BootstrapSchema already ran.
func NewPermissionStore(pool *pgxpool.Pool) (*PermissionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &PermissionStore{pool: pool, tx: NewTxRunner(pool)}, nil
}

// Get returns the grant of a user on a module; the boolean is false when no row exists.
func (s *PermissionStore) Get(ctx context.Context, userID uuid.UUID, module string) (PermissionRecord, bool, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT user_id, module, can_view, can_create, can_edit, can_delete, updated_at
        FROM %s WHERE user_id = $1 AND module = $2
    `, PermissionsTable), userID, module)

	rec, err := scanPermission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PermissionRecord{}, false, nil
	}
	if err != nil {
		return PermissionRecord{}, false, err
	}
	return rec, true, nil
}

// List returns every grant of a user visible to scope.
func (s *PermissionStore) List(ctx context.Context, scope tenant.Scope, userID uuid.UUID) ([]PermissionRecord, error) {
	predicate, args, err := scopePredicate(scope, "u.company_id", []any{userID})
	if err != nil {
		return nil, err
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s u WHERE u.user_id = $1 AND %s)`, UsersTable, predicate), args...).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT user_id, module, can_view, can_create, can_edit, can_delete, updated_at
        FROM %s WHERE user_id = $1 ORDER BY module
    `, PermissionsTable), userID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	out := make([]PermissionRecord, 0)
	for rows.Next() {
		rec, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Replace swaps the full grant set of a user in one transaction.
func (s *PermissionStore) Replace(ctx context.Context, scope tenant.Scope, userID uuid.UUID, grants []PermissionRecord) ([]PermissionRecord, error) {
	predicate, args, err := scopePredicate(scope, "company_id", []any{userID})
	if err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var locked uuid.UUID
		lock := fmt.Sprintf(`SELECT user_id FROM %s WHERE user_id = $1 AND %s FOR UPDATE`, UsersTable, predicate)
		if err := tx.QueryRow(ctx, lock, args...).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return err
		}

		batch := &pgx.Batch{}
		batch.Queue(fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, PermissionsTable), userID)
		for _, g := range grants {
			batch.Queue(fmt.Sprintf(`
                INSERT INTO %s (user_id, module, can_view, can_create, can_edit, can_delete)
                VALUES ($1, $2, $3, $4, $5, $6)
            `, PermissionsTable), userID, g.Module, g.CanView, g.CanCreate, g.CanEdit, g.CanDelete)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, err
	}

	return s.List(ctx, scope, userID)
}

func scanPermission(row pgx.Row) (PermissionRecord, error) {
	var rec PermissionRecord
	err := row.Scan(&rec.UserID, &rec.Module, &rec.CanView, &rec.CanCreate, &rec.CanEdit, &rec.CanDelete, &rec.UpdatedAt)
	return rec, err
}
