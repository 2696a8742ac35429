package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// SubscriptionsTable holds every subscription row ever created; at most one per company is active.
const SubscriptionsTable = "subscriptions"

// SubscriptionRecord represents a row in the subscriptions table.
type SubscriptionRecord struct {
	SubscriptionID uuid.UUID           `db:"subscription_id"`
	CompanyID      uuid.UUID           `db:"company_id"`
	PlanType       string              `db:"plan_type"`
	IsTrial        bool                `db:"is_trial"`
	TrialStart     *time.Time          `db:"trial_start"`
	TrialEnd       *time.Time          `db:"trial_end"`
	StartDate      time.Time           `db:"start_date"`
	EndDate        *time.Time          `db:"end_date"`
	IsActive       bool                `db:"is_active"`
	AutoRenew      bool                `db:"auto_renew"`
	QuotedPrice    decimal.NullDecimal `db:"quoted_price"`
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"`
}

// ErrSubscriptionNotFound indicates the company never had a subscription.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionStore provides access to the subscriptions table.
type SubscriptionStore struct {
	pool *pgxpool.Pool
	tx   *TxRunner
}

// NewSubscriptionStore creates a store; assumes BootstrapSchema already ran.
func NewSubscriptionStore(pool *pgxpool.Pool) (*SubscriptionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SubscriptionStore{pool: pool, tx: NewTxRunner(pool)}, nil
}

const subscriptionColumns = `subscription_id, company_id, plan_type, is_trial, trial_start, trial_end,
        start_date, end_date, is_active, auto_renew, quoted_price, created_at, updated_at`

// Current returns the active subscription of a company, or its most recent row when none is active.
func (s *SubscriptionStore) Current(ctx context.Context, companyID uuid.UUID) (SubscriptionRecord, error) {
	return currentSubscription(ctx, s.pool, companyID, false)
}

// History returns every subscription row of a company, newest first.
func (s *SubscriptionStore) History(ctx context.Context, companyID uuid.UUID) ([]SubscriptionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE company_id = $1 ORDER BY created_at DESC`, subscriptionColumns, SubscriptionsTable)
	return collectSubscriptions(s.pool.Query(ctx, query, companyID))
}

// ListActiveEndingBetween returns the active subscriptions whose end date falls in [from, to].
func (s *SubscriptionStore) ListActiveEndingBetween(ctx context.Context, from, to time.Time) ([]SubscriptionRecord, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE is_active AND end_date IS NOT NULL AND end_date >= $1 AND end_date <= $2
        ORDER BY end_date ASC
    `, subscriptionColumns, SubscriptionsTable)
	return collectSubscriptions(s.pool.Query(ctx, query, from, to))
}

// WithCompanyLock runs fn in a transaction holding the company row lock, which serializes every
// lifecycle write for that company. Returns ErrCompanyNotFound when the company does not exist.
func (s *SubscriptionStore) WithCompanyLock(ctx context.Context, companyID uuid.UUID, fn func(tx *SubscriptionTx) error) error {
	return s.tx.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT company_id FROM %s WHERE company_id = $1 FOR UPDATE`, CompaniesTable), companyID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCompanyNotFound
			}
			return fmt.Errorf("lock company: %w", err)
		}
		return fn(&SubscriptionTx{tx: tx})
	})
}

// SubscriptionTx exposes the subscription writes allowed while the company lock is held.
type SubscriptionTx struct {
	tx pgx.Tx
}

// Current is Current within the locked transaction.
func (t *SubscriptionTx) Current(ctx context.Context, companyID uuid.UUID) (SubscriptionRecord, error) {
	return currentSubscription(ctx, t.tx, companyID, true)
}

// DeactivateActive clears is_active on the company's active row, if any.
func (t *SubscriptionTx) DeactivateActive(ctx context.Context, companyID uuid.UUID) (int64, error) {
	tag, err := t.tx.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET is_active = FALSE, updated_at = NOW()
        WHERE company_id = $1 AND is_active
    `, SubscriptionsTable), companyID)
	if err != nil {
		return 0, fmt.Errorf("deactivate subscription: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Insert stores a new subscription row.
func (t *SubscriptionTx) Insert(ctx context.Context, rec SubscriptionRecord) (SubscriptionRecord, error) {
	if rec.SubscriptionID == uuid.Nil {
		return SubscriptionRecord{}, errors.New("subscription id is required")
	}

	row := t.tx.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (
            subscription_id, company_id, plan_type, is_trial, trial_start, trial_end,
            start_date, end_date, is_active, auto_renew, quoted_price
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING %s
    `, SubscriptionsTable, subscriptionColumns),
		rec.SubscriptionID, rec.CompanyID, rec.PlanType, rec.IsTrial, rec.TrialStart, rec.TrialEnd,
		rec.StartDate, rec.EndDate, rec.IsActive, rec.AutoRenew, rec.QuotedPrice,
	)
	return scanSubscription(row)
}

// Update rewrites the mutable lifecycle columns of an existing row.
func (t *SubscriptionTx) Update(ctx context.Context, rec SubscriptionRecord) (SubscriptionRecord, error) {
	row := t.tx.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET end_date = $2, is_active = $3, auto_renew = $4, updated_at = NOW()
        WHERE subscription_id = $1
        RETURNING %s
    `, SubscriptionsTable, subscriptionColumns), rec.SubscriptionID, rec.EndDate, rec.IsActive, rec.AutoRenew)
	return scanSubscription(row)
}

func currentSubscription(ctx context.Context, q querier, companyID uuid.UUID, forUpdate bool) (SubscriptionRecord, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE company_id = $1
        ORDER BY is_active DESC, created_at DESC
        LIMIT 1
    `, subscriptionColumns, SubscriptionsTable)
	if forUpdate {
		query += " FOR UPDATE"
	}
	return scanSubscription(q.QueryRow(ctx, query, companyID))
}

func collectSubscriptions(rows pgx.Rows, err error) ([]SubscriptionRecord, error) {
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	out := make([]SubscriptionRecord, 0)
	for rows.Next() {
		rec, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSubscription(row pgx.Row) (SubscriptionRecord, error) {
	var rec SubscriptionRecord
	err := row.Scan(
		&rec.SubscriptionID, &rec.CompanyID, &rec.PlanType, &rec.IsTrial, &rec.TrialStart, &rec.TrialEnd,
		&rec.StartDate, &rec.EndDate, &rec.IsActive, &rec.AutoRenew, &rec.QuotedPrice, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SubscriptionRecord{}, ErrSubscriptionNotFound
		}
		return SubscriptionRecord{}, err
	}
	return rec, nil
}
