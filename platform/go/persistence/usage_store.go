package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const UsageTable = "resource_usage"

// ErrUnknownResource is returned for a resource kind without a counted table.
var ErrUnknownResource = errors.New("unknown resource kind")

// countedTables maps a quota-bearing resource kind to the table whose rows it counts.
var countedTables = map[string]string{
	"employees": "employees",
	"vehicles":  "vehicles",
	"users":     UsersTable,
}

// ResourceKinds lists the quota-bearing resource kinds in stable order.
func ResourceKinds() []string {
	return []string{"employees", "vehicles", "users"}
}

// DefaultHoldTTL bounds how long an unsettled reservation is counted by Reconcile.
const DefaultHoldTTL = 10 * time.Minute

// Hold is a slot taken by Reserve whose resource row is not committed yet.
type Hold struct {
	ID   uuid.UUID
	Used int
}

// UsageStore keeps one counter row per (company, resource kind). Counters are seeded from the
// real row count on first use and then moved only by Reserve and Release, so a reservation is a
// single conditional UPDATE that cannot overshoot the limit under concurrency. Every granted
// slot is backed by a quota_holds row until the caller settles or releases it.
type UsageStore struct {
	pool    *pgxpool.Pool
	tx      *TxRunner
	holdTTL time.Duration
}

// NewUsageStore creates a store; assumes BootstrapSchema already ran.
func NewUsageStore(pool *pgxpool.Pool) (*UsageStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &UsageStore{pool: pool, tx: NewTxRunner(pool), holdTTL: DefaultHoldTTL}, nil
}

// Reserve takes one slot of kind for company when fewer than limit are in use. It returns the
// hold backing the slot (or the observed usage when denied) and whether the slot was granted.
func (s *UsageStore) Reserve(ctx context.Context, companyID uuid.UUID, kind string, limit int) (Hold, bool, error) {
	table, ok := countedTables[kind]
	if !ok {
		return Hold{}, false, fmt.Errorf("%w: %s", ErrUnknownResource, kind)
	}

	var (
		hold     Hold
		reserved bool
	)
	err := s.tx.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := seedCounter(ctx, tx, table, companyID, kind); err != nil {
			return err
		}

		err := tx.QueryRow(ctx, fmt.Sprintf(`
            UPDATE %s SET used = used + 1, updated_at = NOW()
            WHERE company_id = $1 AND resource_kind = $2 AND used < $3
            RETURNING used
        `, UsageTable), companyID, kind, limit).Scan(&hold.Used)
		if errors.Is(err, pgx.ErrNoRows) {
			return tx.QueryRow(ctx, fmt.Sprintf(`SELECT used FROM %s WHERE company_id = $1 AND resource_kind = $2`, UsageTable), companyID, kind).Scan(&hold.Used)
		}
		if err != nil {
			return fmt.Errorf("reserve %s: %w", kind, err)
		}

		hold.ID = uuid.New()
		if _, err := tx.Exec(ctx, `
            INSERT INTO quota_holds (hold_id, company_id, resource_kind, expires_at)
            VALUES ($1, $2, $3, NOW() + make_interval(secs => $4))
        `, hold.ID, companyID, kind, s.holdTTL.Seconds()); err != nil {
			return fmt.Errorf("record %s hold: %w", kind, err)
		}
		reserved = true
		return nil
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return Hold{}, false, ErrCompanyNotFound
		}
		return Hold{}, false, err
	}
	return hold, reserved, nil
}

// Settle drops the hold once its resource row is committed; the slot stays counted.
func (s *UsageStore) Settle(ctx context.Context, holdID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM quota_holds WHERE hold_id = $1`, holdID); err != nil {
		return fmt.Errorf("settle hold: %w", err)
	}
	return nil
}

// ReleaseHold gives back the slot of a hold whose resource was never created. A hold that is
// already gone (settled, released, or expired and reconciled) leaves the counter untouched.
func (s *UsageStore) ReleaseHold(ctx context.Context, companyID uuid.UUID, kind string, holdID uuid.UUID) error {
	if _, ok := countedTables[kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, kind)
	}
	return s.tx.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM quota_holds WHERE hold_id = $1 AND company_id = $2 AND resource_kind = $3`, holdID, companyID, kind)
		if err != nil {
			return fmt.Errorf("release %s hold: %w", kind, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return decrement(ctx, tx, companyID, kind)
	})
}

// Release gives back one slot after a committed row was deleted; the counter never drops below zero.
func (s *UsageStore) Release(ctx context.Context, companyID uuid.UUID, kind string) error {
	if _, ok := countedTables[kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, kind)
	}
	return decrement(ctx, s.pool, companyID, kind)
}

func decrement(ctx context.Context, db querier, companyID uuid.UUID, kind string) error {
	_, err := db.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET used = GREATEST(used - 1, 0), updated_at = NOW()
        WHERE company_id = $1 AND resource_kind = $2
    `, UsageTable), companyID, kind)
	if err != nil {
		return fmt.Errorf("release %s: %w", kind, err)
	}
	return nil
}

// Usage returns the current count per resource kind. Kinds without a counter row fall back
// to the live row count.
func (s *UsageStore) Usage(ctx context.Context, companyID uuid.UUID) (map[string]int, error) {
	out := make(map[string]int, len(countedTables))
	for _, kind := range ResourceKinds() {
		var used int
		err := s.pool.QueryRow(ctx, fmt.Sprintf(`
            SELECT COALESCE(
                (SELECT used FROM %s WHERE company_id = $1 AND resource_kind = $2),
                (SELECT COUNT(*) FROM %s WHERE company_id = $1)
            )
        `, UsageTable, countedTables[kind]), companyID, kind).Scan(&used)
		if err != nil {
			return nil, fmt.Errorf("usage %s: %w", kind, err)
		}
		out[kind] = used
	}
	return out, nil
}

// Reconcile resets every counter of a company to its live row count plus the unexpired holds
// and returns the result. Expired holds are dropped, which repairs slots whose release never ran.
// The counter rows are locked first so reservations in flight either finish before the recount
// or start after it.
func (s *UsageStore) Reconcile(ctx context.Context, companyID uuid.UUID) (map[string]int, error) {
	out := make(map[string]int, len(countedTables))
	err := s.tx.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, kind := range ResourceKinds() {
			if err := seedCounter(ctx, tx, countedTables[kind], companyID, kind); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE company_id = $1 FOR UPDATE`, UsageTable), companyID); err != nil {
			return fmt.Errorf("lock counters: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM quota_holds WHERE company_id = $1 AND expires_at <= NOW()`, companyID); err != nil {
			return fmt.Errorf("drop expired holds: %w", err)
		}

		for _, kind := range ResourceKinds() {
			var used int
			err := tx.QueryRow(ctx, fmt.Sprintf(`
                UPDATE %s
                SET used = (SELECT COUNT(*) FROM %s WHERE company_id = $1)
                         + (SELECT COUNT(*) FROM quota_holds WHERE company_id = $1 AND resource_kind = $2),
                    updated_at = NOW()
                WHERE company_id = $1 AND resource_kind = $2
                RETURNING used
            `, UsageTable, countedTables[kind]), companyID, kind).Scan(&used)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", kind, err)
			}
			out[kind] = used
		}
		return nil
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}
	return out, nil
}

func seedCounter(ctx context.Context, tx pgx.Tx, table string, companyID uuid.UUID, kind string) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (company_id, resource_kind, used)
        VALUES ($1, $2, (SELECT COUNT(*) FROM %s WHERE company_id = $1))
        ON CONFLICT (company_id, resource_kind) DO NOTHING
    `, UsageTable, table), companyID, kind)
	if err != nil {
		return fmt.Errorf("seed %s counter: %w", kind, err)
	}
	return nil
}
