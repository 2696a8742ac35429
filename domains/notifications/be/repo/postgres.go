package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/nuzum-saas/domains/notifications/be/service"
	"github.com/zenGate-Global/nuzum-saas/platform/go/persistence"
	"github.com/zenGate-Global/nuzum-saas/platform/go/tenant"
)

type postgresRepository struct {
	store *persistence.NotificationStore
}

// NewPostgresRepository adapts the shared notification store.
func NewPostgresRepository(store *persistence.NotificationStore) service.Repository {
	if store == nil {
		panic("notification store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) AppendIfNoneSince(ctx context.Context, n service.Notification, since time.Time) (service.Notification, bool, error) {
	rec, written, err := r.store.AppendIfNoneSince(ctx, persistence.NotificationRecord{
		NotificationID:   n.ID,
		CompanyID:        n.CompanyID,
		NotificationType: n.Type,
		Title:            n.Title,
		Message:          n.Message,
		CreatedAt:        n.CreatedAt,
	}, since)
	if err != nil || !written {
		return service.Notification{}, written, err
	}
	return toNotification(rec), true, nil
}

func (r *postgresRepository) List(ctx context.Context, scope tenant.Scope, unreadOnly bool, limit int) ([]service.Notification, error) {
	recs, err := r.store.List(ctx, scope, persistence.ListNotificationsParams{UnreadOnly: unreadOnly, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]service.Notification, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toNotification(rec))
	}
	return out, nil
}

func (r *postgresRepository) MarkRead(ctx context.Context, scope tenant.Scope, id uuid.UUID) (service.Notification, error) {
	rec, err := r.store.MarkRead(ctx, scope, id)
	if errors.Is(err, persistence.ErrNotificationNotFound) {
		return service.Notification{}, service.ErrNotFound
	}
	if err != nil {
		return service.Notification{}, err
	}
	return toNotification(rec), nil
}

func toNotification(rec persistence.NotificationRecord) service.Notification {
	return service.Notification{
		ID:        rec.NotificationID,
		CompanyID: rec.CompanyID,
		Type:      rec.NotificationType,
		Title:     rec.Title,
		Message:   rec.Message,
		IsRead:    rec.IsRead,
		CreatedAt: rec.CreatedAt,
	}
}
