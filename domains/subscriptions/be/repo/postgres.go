package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/plans"
	"github.com/zenGate-Global/nuzum-saas/domains/subscriptions/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
)

// PostgresRepository implements the subscription repository on the shared persistence layer.
type PostgresRepository struct {
	store *persistence.SubscriptionStore
}

// NewPostgresRepository constructs a repository backed by SubscriptionStore.
func NewPostgresRepository(store *persistence.SubscriptionStore) *PostgresRepository {
	if store == nil {
		panic("subscription store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Current(ctx context.Context, companyID uuid.UUID) (service.Subscription, error) {
	rec, err := r.store.Current(ctx, companyID)
	if err != nil {
		return service.Subscription{}, mapError(err)
	}
	return toService(rec), nil
}

func (r *PostgresRepository) History(ctx context.Context, companyID uuid.UUID) ([]service.Subscription, error) {
	recs, err := r.store.History(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return toServiceList(recs), nil
}

func (r *PostgresRepository) ListActiveEndingBetween(ctx context.Context, from, to time.Time) ([]service.Subscription, error) {
	recs, err := r.store.ListActiveEndingBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return toServiceList(recs), nil
}

func (r *PostgresRepository) WithCompanyLock(ctx context.Context, companyID uuid.UUID, fn func(tx service.Tx) error) error {
	err := r.store.WithCompanyLock(ctx, companyID, func(tx *persistence.SubscriptionTx) error {
		return fn(postgresTx{tx: tx})
	})
	return mapError(err)
}

type postgresTx struct {
	tx *persistence.SubscriptionTx
}

func (t postgresTx) Current(ctx context.Context, companyID uuid.UUID) (service.Subscription, error) {
	rec, err := t.tx.Current(ctx, companyID)
	if err != nil {
		return service.Subscription{}, mapError(err)
	}
	return toService(rec), nil
}

func (t postgresTx) DeactivateActive(ctx context.Context, companyID uuid.UUID) error {
	_, err := t.tx.DeactivateActive(ctx, companyID)
	return err
}

func (t postgresTx) Insert(ctx context.Context, sub service.Subscription) (service.Subscription, error) {
	rec, err := t.tx.Insert(ctx, toRecord(sub))
	if err != nil {
		return service.Subscription{}, mapError(err)
	}
	return toService(rec), nil
}

func (t postgresTx) Update(ctx context.Context, sub service.Subscription) (service.Subscription, error) {
	rec, err := t.tx.Update(ctx, toRecord(sub))
	if err != nil {
		return service.Subscription{}, mapError(err)
	}
	return toService(rec), nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrSubscriptionNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrCompanyNotFound):
		return service.ErrCompanyNotFound
	}
	return err
}

func toRecord(sub service.Subscription) persistence.SubscriptionRecord {
	rec := persistence.SubscriptionRecord{
		SubscriptionID: sub.ID,
		CompanyID:      sub.CompanyID,
		PlanType:       string(sub.PlanType),
		IsTrial:        sub.IsTrial,
		TrialStart:     sub.TrialStart,
		TrialEnd:       sub.TrialEnd,
		StartDate:      sub.StartDate,
		EndDate:        sub.EndDate,
		IsActive:       sub.IsActive,
		AutoRenew:      sub.AutoRenew,
	}
	if sub.QuotedPrice != nil {
		rec.QuotedPrice = decimal.NewNullDecimal(*sub.QuotedPrice)
	}
	return rec
}

func toService(rec persistence.SubscriptionRecord) service.Subscription {
	sub := service.Subscription{
		ID:         rec.SubscriptionID,
		CompanyID:  rec.CompanyID,
		PlanType:   plans.Type(rec.PlanType),
		IsTrial:    rec.IsTrial,
		TrialStart: rec.TrialStart,
		TrialEnd:   rec.TrialEnd,
		StartDate:  rec.StartDate,
		EndDate:    rec.EndDate,
		IsActive:   rec.IsActive,
		AutoRenew:  rec.AutoRenew,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	if rec.QuotedPrice.Valid {
		price := rec.QuotedPrice.Decimal
		sub.QuotedPrice = &price
	}
	return sub
}

func toServiceList(recs []persistence.SubscriptionRecord) []service.Subscription {
	out := make([]service.Subscription, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toService(rec))
	}
	return out
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
